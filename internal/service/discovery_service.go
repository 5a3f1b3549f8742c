// internal/service/discovery_service.go
package service

import (
	"context"

	"go.uber.org/zap"

	"printer-bridge/internal/config"
	"printer-bridge/internal/discovery"
	"printer-bridge/internal/discovery/bluetooth"
	"printer-bridge/internal/discovery/tcp"
	"printer-bridge/internal/discovery/usb"
	"printer-bridge/internal/model"
	"printer-bridge/internal/utils"
)

// DiscoveryService owns the scanners, the Bluetooth pairer and USB
// diagnostics
type DiscoveryService struct {
	scannerManager *discovery.ScannerManager
	pairer         *bluetooth.Pairer
	usbScanner     *usb.Scanner
	config         *config.Config
	logger         *utils.ServiceLogger
}

// NewDiscoveryService creates a discovery service with every scanner the
// configuration describes
func NewDiscoveryService(cfg *config.Config, events model.EventPublisher, logger *zap.Logger) (*DiscoveryService, error) {
	serviceLogger := utils.NewServiceLogger(logger, "discovery-service")

	vendorIDs, err := usb.ParseVendorIDs(cfg.Discovery.USB.VendorIDs)
	if err != nil {
		return nil, err
	}

	btConfig := bluetooth.Config{
		ScanWindow:     cfg.Discovery.Bluetooth.ScanWindow,
		NameFilters:    cfg.Discovery.Bluetooth.NameFilters,
		SerialPrefixes: cfg.Discovery.Bluetooth.SerialPrefix,
		PairTimeout:    cfg.Discovery.Bluetooth.PairTimeout,
	}

	ds := &DiscoveryService{
		scannerManager: discovery.NewScannerManager(cfg.Discovery.ScanTimeout, events, logger),
		pairer:         bluetooth.NewPairer(logger, btConfig),
		usbScanner:     usb.NewScanner(logger, &usb.Config{VendorIDs: vendorIDs, EnableDebug: cfg.App.Debug}),
		config:         cfg,
		logger:         serviceLogger,
	}

	ds.initializeScanners(btConfig)
	return ds, nil
}

// initializeScanners registers all available scanners
func (ds *DiscoveryService) initializeScanners(btConfig bluetooth.Config) {
	tcpConfig := ds.config.Discovery.TCP
	ds.scannerManager.RegisterScanner(tcp.NewScanner(ds.logger.Logger, &tcp.Config{
		Subnets:      tcpConfig.Subnets,
		Ports:        tcpConfig.Ports,
		ProbeTimeout: tcpConfig.ProbeTimeout,
		Concurrency:  tcpConfig.Concurrency,
		QueryName:    tcpConfig.QueryName,
	}))

	ds.scannerManager.RegisterScanner(bluetooth.NewPairedScanner(ds.logger.Logger, btConfig))
	ds.scannerManager.RegisterScanner(bluetooth.NewUnpairedScanner(ds.logger.Logger, btConfig))
	ds.scannerManager.RegisterScanner(ds.usbScanner)

	available := ds.scannerManager.AvailableFilters()
	names := make([]string, len(available))
	for i, f := range available {
		names[i] = string(f)
	}
	ds.logger.Info("Discovery scanners initialized", zap.Strings("available_scanners", names))
}

// Manager exposes the scanner manager
func (ds *DiscoveryService) Manager() *discovery.ScannerManager {
	return ds.scannerManager
}

// Discover runs one filter
func (ds *DiscoveryService) Discover(ctx context.Context, filter model.DiscoveryFilter) ([]model.DeviceDescriptor, error) {
	return ds.scannerManager.Discover(ctx, filter)
}

// Pair pairs a Bluetooth printer
func (ds *DiscoveryService) Pair(ctx context.Context, address string) bluetooth.PairResult {
	return ds.pairer.Pair(ctx, address)
}

// USBDiagnostics lists every visible USB device
func (ds *DiscoveryService) USBDiagnostics(ctx context.Context) ([]map[string]interface{}, error) {
	infos, err := ds.usbScanner.Diagnose(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.ToMap())
	}
	return out, nil
}
