// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
	"printer-bridge/internal/protocol"
)

// DeviceInfo is one enumerated USB device
type DeviceInfo struct {
	VendorID     gousb.ID
	ProductID    gousb.ID
	Bus          int
	Address      int
	Class        gousb.Class
	Printer      bool // exposes a printer-class interface
	Manufacturer string
	Product      string
	Serial       string
}

// ToMap renders the device for diagnostics output
func (d DeviceInfo) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"vendor_id":    fmt.Sprintf("%04X", uint16(d.VendorID)),
		"product_id":   fmt.Sprintf("%04X", uint16(d.ProductID)),
		"bus":          d.Bus,
		"address":      d.Address,
		"class":        d.Class.String(),
		"printer":      d.Printer,
		"manufacturer": d.Manufacturer,
		"product":      d.Product,
		"serial":       d.Serial,
		"location":     fmt.Sprintf("USB-Bus%d-Port%d", d.Bus, d.Address),
	}
}

// Enumerator lists the USB devices visible to the process. open decides
// which devices are opened to read their string descriptors.
type Enumerator func(ctx context.Context, open func(*gousb.DeviceDesc) bool) ([]DeviceInfo, error)

// Scanner implements USB device scanning
type Scanner struct {
	logger       *zap.Logger
	knownDevices *DeviceDatabase
	config       *Config
	enumerate    Enumerator
}

// Config for USB scanner
type Config struct {
	// VendorIDs restricts discovery to these vendors. Empty allows any
	// vendor with a printer-class interface.
	VendorIDs   []gousb.ID `json:"vendor_ids"`
	EnableDebug bool       `json:"enable_debug"`
}

// NewScanner creates a new USB scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{VendorIDs: []gousb.ID{EpsonVendorID}}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scanner{
		logger:       logger.With(zap.String("scanner", "usb")),
		knownDevices: NewDeviceDatabase(),
		config:       config,
	}
	s.enumerate = s.enumerateDevices
	return s
}

// WithEnumerator replaces libusb enumeration
func (s *Scanner) WithEnumerator(e Enumerator) *Scanner {
	s.enumerate = e
	return s
}

// Filter returns the discovery filter served by the scanner
func (s *Scanner) Filter() model.DiscoveryFilter {
	return model.FilterUSB
}

// IsAvailable checks if USB scanning is available on this system
func (s *Scanner) IsAvailable() bool {
	switch runtime.GOOS {
	case "linux", "windows", "darwin":
		return true
	default:
		s.logger.Warn("USB scanning support unknown for OS", zap.String("os", runtime.GOOS))
		return false
	}
}

// Scan returns the printers attached over USB
func (s *Scanner) Scan(ctx context.Context) ([]model.DeviceDescriptor, error) {
	s.logger.Info("Starting USB device scan")

	infos, err := s.enumerate(ctx, s.shouldExamineDevice)
	if err != nil && len(infos) == 0 {
		return nil, fmt.Errorf("device enumeration failed: %w", err)
	}

	var devices []model.DeviceDescriptor
	for _, info := range infos {
		if !s.isPrinter(info) {
			continue
		}
		devices = append(devices, s.describe(info))
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Identifier < devices[j].Identifier })

	s.logger.Info("USB scan completed", zap.Int("devices_found", len(devices)))
	return devices, nil
}

// Diagnose lists every visible USB device without filtering
func (s *Scanner) Diagnose(ctx context.Context) ([]DeviceInfo, error) {
	infos, err := s.enumerate(ctx, func(*gousb.DeviceDesc) bool { return true })
	if err != nil && len(infos) == 0 {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("Some USB devices could not be opened", zap.Error(err))
	}
	return infos, nil
}

func (s *Scanner) vendorAllowed(vendor gousb.ID) bool {
	if len(s.config.VendorIDs) == 0 {
		return true
	}
	for _, id := range s.config.VendorIDs {
		if id == vendor {
			return true
		}
	}
	return false
}

// shouldExamineDevice decides which devices are opened during a scan
func (s *Scanner) shouldExamineDevice(desc *gousb.DeviceDesc) bool {
	if !s.vendorAllowed(desc.Vendor) {
		return false
	}
	return s.knownDevices.IsKnownVendor(desc.Vendor) || hasPrinterInterface(desc)
}

func (s *Scanner) isPrinter(info DeviceInfo) bool {
	if !s.vendorAllowed(info.VendorID) {
		return false
	}
	return info.Printer || s.knownDevices.Lookup(info.VendorID, info.ProductID) != nil
}

func (s *Scanner) describe(info DeviceInfo) model.DeviceDescriptor {
	target := protocol.Target{
		Kind:      model.TransportUSB,
		VendorID:  uint16(info.VendorID),
		ProductID: uint16(info.ProductID),
		Serial:    info.Serial,
	}
	return model.DeviceDescriptor{
		Identifier:      target.String(),
		DisplayName:     s.displayName(info),
		Transport:       model.TransportUSB,
		HardwareAddress: fmt.Sprintf("%d:%d", info.Bus, info.Address),
	}
}

// displayName prefers the known model, then the product string, then VID:PID
func (s *Scanner) displayName(info DeviceInfo) string {
	if product := s.knownDevices.Lookup(info.VendorID, info.ProductID); product != nil {
		return product.Model
	}
	if p := strings.TrimSpace(info.Product); p != "" {
		return p
	}
	return fmt.Sprintf("USB-%04X:%04X", uint16(info.VendorID), uint16(info.ProductID))
}

// enumerateDevices walks the bus with libusb
func (s *Scanner) enumerateDevices(ctx context.Context, open func(*gousb.DeviceDesc) bool) ([]DeviceInfo, error) {
	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()
	if s.config.EnableDebug {
		usbCtx.Debug(3)
	}

	var infos []DeviceInfo
	index := make(map[[2]int]int)
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		index[[2]int{desc.Bus, desc.Address}] = len(infos)
		infos = append(infos, DeviceInfo{
			VendorID:  desc.Vendor,
			ProductID: desc.Product,
			Bus:       desc.Bus,
			Address:   desc.Address,
			Class:     desc.Class,
			Printer:   hasPrinterInterface(desc),
		})
		return open(desc)
	})
	if err != nil {
		s.logger.Debug("USB enumeration reported an error", zap.Error(err))
	}

	for _, dev := range devices {
		if ctx.Err() == nil {
			if i, ok := index[[2]int{dev.Desc.Bus, dev.Desc.Address}]; ok {
				infos[i].Manufacturer = s.readString(dev.Manufacturer)
				infos[i].Product = s.readString(dev.Product)
				infos[i].Serial = s.readString(dev.SerialNumber)
			}
		}
		if cerr := dev.Close(); cerr != nil {
			s.logger.Warn("Failed to close USB device", zap.Error(cerr))
		}
	}

	if ctx.Err() != nil {
		return infos, ctx.Err()
	}
	return infos, err
}

func (s *Scanner) readString(read func() (string, error)) string {
	v, err := read()
	if err != nil {
		s.logger.Debug("Failed to get string descriptor", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(v)
}

// hasPrinterInterface reports whether the device or any of its interfaces
// is printer class
func hasPrinterInterface(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassPrinter {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

// ParseVendorIDs parses hex vendor ids such as "04B8" or "0x04b8"
func ParseVendorIDs(values []string) ([]gousb.ID, error) {
	ids := make([]gousb.ID, 0, len(values))
	for _, v := range values {
		hex := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(v), "0x"), "0X")
		n, err := strconv.ParseUint(hex, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid USB vendor id %q: %w", v, err)
		}
		ids = append(ids, gousb.ID(n))
	}
	return ids, nil
}
