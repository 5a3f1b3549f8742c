// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"printer-bridge/internal/driver/epson"
	"printer-bridge/internal/protocol"
	"printer-bridge/pkg/driver"
)

// VendorEpson is the default driver vendor
const VendorEpson = "epson"

// RegisterDefaultDrivers registers all built-in session drivers
func RegisterDefaultDrivers(registry *Registry, logger *zap.Logger) {
	registerEPSONDrivers(registry, logger)
}

// registerEPSONDrivers registers the ESC/POS driver for every TM series
func registerEPSONDrivers(registry *Registry, logger *zap.Logger) {
	registry.Register(VendorEpson, SeriesAny, newEPSONSession)

	logger.Info("EPSON printer drivers registered")
}

func newEPSONSession(transport protocol.Transport, opts driver.SessionOptions, logger *zap.Logger) driver.PrinterSession {
	return epson.NewDriver(transport, opts, logger)
}
