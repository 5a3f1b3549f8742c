// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

// USBConnection implements Transport for USB printer-class devices
type USBConnection struct {
	config   *USBConfig
	ctx      *gousb.Context
	device   *gousb.Device
	intf     *gousb.Interface
	release  func()
	outEndpt *gousb.OutEndpoint
	inEndpt  *gousb.InEndpoint
	logger   *zap.Logger
	mutex    sync.RWMutex
	isOpen   bool
	stats    statsRecorder
}

// NewUSBConnection creates a new USB connection
func NewUSBConnection(config *USBConfig, logger *zap.Logger) *USBConnection {
	return &USBConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "usb"),
			zap.String("vendor_id", fmt.Sprintf("%04X", config.VendorID)),
			zap.String("product_id", fmt.Sprintf("%04X", config.ProductID)),
		),
	}
}

// Open claims the default interface of the matching device
func (uc *USBConnection) Open(ctx context.Context) error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.isOpen {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	uc.logger.Debug("Opening USB connection")

	uc.ctx = gousb.NewContext()

	device, err := uc.findAndOpenDevice(gousb.ID(uc.config.VendorID), gousb.ID(uc.config.ProductID))
	if err != nil {
		uc.ctx.Close()
		uc.ctx = nil
		return fmt.Errorf("failed to find USB device: %w", err)
	}
	device.SetAutoDetach(true)

	intf, done, err := device.DefaultInterface()
	if err != nil {
		device.Close()
		uc.ctx.Close()
		uc.ctx = nil
		return fmt.Errorf("failed to claim interface: %w", err)
	}

	outEndpt, inEndpt, err := uc.findEndpoints(intf)
	if err != nil {
		done()
		device.Close()
		uc.ctx.Close()
		uc.ctx = nil
		return err
	}

	uc.device = device
	uc.intf = intf
	uc.release = done
	uc.outEndpt = outEndpt
	uc.inEndpt = inEndpt
	uc.isOpen = true
	uc.stats.setConnected(true)

	uc.logger.Info("USB connection opened")
	return nil
}

// findEndpoints picks the bulk endpoints of the interface. A configured
// endpoint number takes precedence for the OUT direction.
func (uc *USBConnection) findEndpoints(intf *gousb.Interface) (*gousb.OutEndpoint, *gousb.InEndpoint, error) {
	var outNum, inNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionOut && outNum == 0 {
			outNum = ep.Number
		}
		if ep.Direction == gousb.EndpointDirectionIn && inNum == 0 {
			inNum = ep.Number
		}
	}
	if uc.config.Endpoint > 0 {
		outNum = uc.config.Endpoint
	}
	if outNum == 0 {
		return nil, nil, fmt.Errorf("no bulk out endpoint on USB interface")
	}

	outEndpt, err := intf.OutEndpoint(outNum)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get out endpoint: %w", err)
	}

	var inEndpt *gousb.InEndpoint
	if inNum != 0 {
		if inEndpt, err = intf.InEndpoint(inNum); err != nil {
			// Some printers are write-only
			uc.logger.Warn("No in endpoint found", zap.Error(err))
			inEndpt = nil
		}
	}
	return outEndpt, inEndpt, nil
}

// Close releases the interface and device
func (uc *USBConnection) Close() error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if !uc.isOpen {
		return nil
	}

	if uc.release != nil {
		uc.release()
		uc.release = nil
	}
	uc.intf = nil

	var err error
	if uc.device != nil {
		err = uc.device.Close()
		uc.device = nil
	}
	if uc.ctx != nil {
		uc.ctx.Close()
		uc.ctx = nil
	}

	uc.outEndpt = nil
	uc.inEndpt = nil
	uc.isOpen = false
	uc.stats.setConnected(false)

	if err != nil {
		return fmt.Errorf("failed to close USB device: %w", err)
	}
	uc.logger.Info("USB connection closed")
	return nil
}

// IsOpen returns whether the connection is open
func (uc *USBConnection) IsOpen() bool {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.isOpen && uc.device != nil && uc.outEndpt != nil
}

// Write writes data to the bulk out endpoint
func (uc *USBConnection) Write(ctx context.Context, data []byte) error {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()

	if !uc.isOpen || uc.outEndpt == nil {
		return fmt.Errorf("USB connection not open")
	}

	if uc.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.config.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	n, err := uc.outEndpt.WriteContext(ctx, data)
	if err != nil {
		uc.stats.recordError()
		return fmt.Errorf("failed to write to USB device: %w", err)
	}
	if n != len(data) {
		uc.stats.recordError()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	uc.stats.recordWrite(n, time.Since(startTime))
	uc.logger.Debug("USB write completed", zap.Int("bytes", n))
	return nil
}

// Read reads from the bulk in endpoint
func (uc *USBConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()

	if !uc.isOpen || uc.inEndpt == nil {
		return nil, fmt.Errorf("USB connection not open or no in endpoint")
	}

	if uc.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.config.Timeout)
		defer cancel()
	}

	buffer := make([]byte, maxBytes)
	n, err := uc.inEndpt.ReadContext(ctx, buffer)
	if err != nil && n == 0 {
		uc.stats.recordError()
		return nil, fmt.Errorf("failed to read from USB device: %w", err)
	}

	uc.stats.recordRead(n)
	return buffer[:n], nil
}

// Kind returns the transport kind
func (uc *USBConnection) Kind() model.TransportKind {
	return model.TransportUSB
}

// Target returns the USB target
func (uc *USBConnection) Target() Target {
	return Target{
		Kind:      model.TransportUSB,
		VendorID:  uc.config.VendorID,
		ProductID: uc.config.ProductID,
		Serial:    uc.config.SerialNumber,
	}
}

// Stats returns a snapshot of the connection statistics
func (uc *USBConnection) Stats() ProtocolStats {
	return uc.stats.snapshot()
}

// findAndOpenDevice finds and opens the USB device
func (uc *USBConnection) findAndOpenDevice(vendorID, productID gousb.ID) (*gousb.Device, error) {
	devices, err := uc.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendorID && desc.Product == productID
	})
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("USB device not found (VID: %04X, PID: %04X)", vendorID, productID)
	}

	var chosen *gousb.Device
	for _, dev := range devices {
		if chosen != nil {
			dev.Close()
			continue
		}
		if uc.config.SerialNumber != "" {
			serial, err := dev.SerialNumber()
			if err != nil || serial != uc.config.SerialNumber {
				dev.Close()
				continue
			}
		}
		chosen = dev
	}

	if chosen == nil {
		return nil, fmt.Errorf("USB device with serial %q not found", uc.config.SerialNumber)
	}
	if len(devices) > 1 && uc.config.SerialNumber == "" {
		uc.logger.Warn("Multiple matching USB devices found, using first one")
	}
	return chosen, nil
}
