// internal/discovery/bluetooth/bluetooth.go
package bluetooth

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

// Config for the Bluetooth scanners and pairer
type Config struct {
	ScanWindow time.Duration `json:"scan_window"`
	// NameFilters keeps devices whose name contains one of the entries,
	// case-insensitively. Empty keeps every device.
	NameFilters []string `json:"name_filters"`
	// SerialPrefixes selects serial ports bound to Bluetooth printers
	SerialPrefixes []string      `json:"serial_prefixes"`
	PairTimeout    time.Duration `json:"pair_timeout"`
}

// DefaultConfig returns the built-in Bluetooth settings
func DefaultConfig() Config {
	return Config{
		ScanWindow:     5 * time.Second,
		NameFilters:    []string{"TM-", "TS-", "EPSON"},
		SerialPrefixes: []string{"/dev/rfcomm", "/dev/tty.TM", "COM"},
		PairTimeout:    30 * time.Second,
	}
}

// CommandRunner runs an external tool and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// bluezDevice is one "Device <mac> <name>" line of bluetoothctl output
type bluezDevice struct {
	MAC  string
	Name string
}

var deviceLine = regexp.MustCompile(`^Device\s+([0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5})\s*(.*)$`)

// parseDevices extracts devices from bluetoothctl output. Prompts and
// change notifications are ignored.
func parseDevices(out []byte) []bluezDevice {
	var devices []bluezDevice
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		m := deviceLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		devices = append(devices, bluezDevice{MAC: strings.ToUpper(m[1]), Name: strings.TrimSpace(m[2])})
	}
	return devices
}

// listBluez runs "bluetoothctl devices <kind>", falling back to the
// "paired-devices" command of older BlueZ releases for Paired.
func listBluez(ctx context.Context, run CommandRunner, kind string) ([]bluezDevice, error) {
	out, err := run(ctx, "bluetoothctl", "devices", kind)
	if err != nil && kind == "Paired" && ctx.Err() == nil {
		out, err = run(ctx, "bluetoothctl", "paired-devices")
	}
	if err != nil {
		return nil, err
	}
	return parseDevices(out), nil
}

// matchesName applies the configured name filters
func matchesName(name string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	upper := strings.ToUpper(name)
	for _, f := range filters {
		if f != "" && strings.Contains(upper, strings.ToUpper(f)) {
			return true
		}
	}
	return false
}

func macDescriptor(mac, name string) model.DeviceDescriptor {
	return model.DeviceDescriptor{
		Identifier:      model.TargetPrefixBluetooth + mac,
		DisplayName:     name,
		Transport:       model.TransportBluetooth,
		HardwareAddress: mac,
	}
}

// logConnected lists the currently connected accessories at debug level
func logConnected(ctx context.Context, run CommandRunner, logger *zap.Logger) {
	if !logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	devices, err := listBluez(ctx, run, "Connected")
	if err != nil {
		logger.Debug("Could not list connected Bluetooth accessories", zap.Error(err))
		return
	}
	for _, d := range devices {
		logger.Debug("Connected Bluetooth accessory", zap.String("mac", d.MAC), zap.String("name", d.Name))
	}
}
