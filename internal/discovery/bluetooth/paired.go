// internal/discovery/bluetooth/paired.go
package bluetooth

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

// PortLister lists serial ports with their details
type PortLister func() ([]*enumerator.PortDetails, error)

// PairedScanner finds printers already paired with the host: BlueZ
// devices by MAC and serial ports bound to a Bluetooth printer by path
type PairedScanner struct {
	config Config
	run    CommandRunner
	ports  PortLister
	logger *zap.Logger
}

// NewPairedScanner creates a paired-device scanner
func NewPairedScanner(logger *zap.Logger, config Config) *PairedScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PairedScanner{
		config: config,
		run:    execRunner,
		ports:  enumerator.GetDetailedPortsList,
		logger: logger.With(zap.String("scanner", "bluetooth_paired")),
	}
}

// WithRunner replaces the external command runner
func (s *PairedScanner) WithRunner(run CommandRunner) *PairedScanner {
	s.run = run
	return s
}

// WithPortLister replaces serial port enumeration
func (s *PairedScanner) WithPortLister(ports PortLister) *PairedScanner {
	s.ports = ports
	return s
}

// Filter returns the discovery filter served by the scanner
func (s *PairedScanner) Filter() model.DiscoveryFilter {
	return model.FilterBluetoothPaired
}

// IsAvailable reports true; missing tools only yield fewer results
func (s *PairedScanner) IsAvailable() bool {
	return true
}

// Scan lists paired printers. It fails only when neither source works.
func (s *PairedScanner) Scan(ctx context.Context) ([]model.DeviceDescriptor, error) {
	logConnected(ctx, s.run, s.logger)

	var devices []model.DeviceDescriptor

	paired, bluezErr := listBluez(ctx, s.run, "Paired")
	if bluezErr != nil {
		s.logger.Debug("BlueZ paired device listing unavailable", zap.Error(bluezErr))
	}
	for _, d := range paired {
		if d.Name == "" || !matchesName(d.Name, s.config.NameFilters) {
			continue
		}
		devices = append(devices, macDescriptor(d.MAC, d.Name))
	}

	ports, portErr := s.ports()
	if portErr != nil {
		s.logger.Debug("Serial port listing unavailable", zap.Error(portErr))
	}
	for _, p := range ports {
		if p == nil || p.IsUSB || !s.boundPort(p.Name) {
			continue
		}
		devices = append(devices, model.DeviceDescriptor{
			Identifier:  model.TargetPrefixBluetooth + p.Name,
			DisplayName: portName(p),
			Transport:   model.TransportBluetooth,
		})
	}

	if bluezErr != nil && portErr != nil {
		return nil, errors.Join(bluezErr, portErr)
	}

	sort.SliceStable(devices, func(i, j int) bool { return devices[i].Identifier < devices[j].Identifier })
	s.logger.Info("Paired Bluetooth scan completed", zap.Int("devices_found", len(devices)))
	return devices, nil
}

func (s *PairedScanner) boundPort(name string) bool {
	for _, prefix := range s.config.SerialPrefixes {
		if prefix != "" && strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(prefix)) {
			return true
		}
	}
	return false
}

func portName(p *enumerator.PortDetails) string {
	if p.Product != "" {
		return p.Product
	}
	return filepath.Base(p.Name)
}
