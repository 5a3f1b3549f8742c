// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

// Defaults holds per-transport settings applied to every connection the
// factory creates
type Defaults struct {
	TCPKeepAlive    bool
	TCPReadTimeout  time.Duration
	TCPWriteTimeout time.Duration
	SerialBaudRate  int
	SerialDataBits  int
	SerialStopBits  int
	SerialParity    string
	SerialTimeout   time.Duration
	RFCOMMChannel   int
	RFCOMMTimeout   time.Duration
	USBEndpoint     int
	USBTimeout      time.Duration
}

// DefaultDefaults returns the built-in transport settings
func DefaultDefaults() Defaults {
	return Defaults{
		TCPKeepAlive:    true,
		TCPReadTimeout:  5 * time.Second,
		TCPWriteTimeout: 30 * time.Second,
		SerialBaudRate:  115200,
		SerialDataBits:  8,
		SerialStopBits:  1,
		SerialParity:    "none",
		SerialTimeout:   5 * time.Second,
		RFCOMMChannel:   1,
		RFCOMMTimeout:   10 * time.Second,
		USBTimeout:      10 * time.Second,
	}
}

// Factory creates transports for parsed targets
type Factory struct {
	defaults Defaults
	logger   *zap.Logger
}

// NewFactory creates a transport factory
func NewFactory(defaults Defaults, logger *zap.Logger) *Factory {
	return &Factory{defaults: defaults, logger: logger}
}

// Create returns an unopened transport for the target
func (f *Factory) Create(target Target) (Transport, error) {
	switch target.Kind {
	case model.TransportTCP:
		return f.createTCP(target), nil
	case model.TransportBluetooth:
		return f.createBluetooth(target)
	case model.TransportUSB:
		return f.createUSB(target), nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", target.Kind)
	}
}

func (f *Factory) createTCP(target Target) Transport {
	port := target.Port
	if port == 0 {
		port = DefaultTCPPort
	}
	return NewTCPConnection(&TCPConfig{
		Host:         target.Host,
		Port:         port,
		KeepAlive:    f.defaults.TCPKeepAlive,
		ReadTimeout:  f.defaults.TCPReadTimeout,
		WriteTimeout: f.defaults.TCPWriteTimeout,
	}, f.logger)
}

func (f *Factory) createBluetooth(target Target) (Transport, error) {
	if target.MAC != "" {
		channel := f.defaults.RFCOMMChannel
		if channel == 0 {
			channel = 1
		}
		return NewRFCOMMConnection(&RFCOMMConfig{
			MAC:     target.MAC,
			Channel: channel,
			Timeout: f.defaults.RFCOMMTimeout,
		}, f.logger), nil
	}
	if target.Path == "" {
		return nil, fmt.Errorf("bluetooth target has neither address nor port")
	}
	return NewSerialConnection(&SerialConfig{
		Port:     target.Path,
		BaudRate: f.defaults.SerialBaudRate,
		DataBits: f.defaults.SerialDataBits,
		StopBits: f.defaults.SerialStopBits,
		Parity:   f.defaults.SerialParity,
		Timeout:  f.defaults.SerialTimeout,
	}, f.logger), nil
}

func (f *Factory) createUSB(target Target) Transport {
	return NewUSBConnection(&USBConfig{
		VendorID:     target.VendorID,
		ProductID:    target.ProductID,
		SerialNumber: target.Serial,
		Endpoint:     f.defaults.USBEndpoint,
		Timeout:      f.defaults.USBTimeout,
	}, f.logger)
}
