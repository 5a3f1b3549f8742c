// internal/discovery/bluetooth/unpaired.go
package bluetooth

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

// Advertisement is one device heard during a radio scan
type Advertisement struct {
	Name    string
	Address string
	RSSI    int
}

// AdvertisementSource listens for nearby devices for at most window
type AdvertisementSource func(ctx context.Context, window time.Duration) ([]Advertisement, error)

// UnpairedScanner finds nearby printers that are not paired yet
type UnpairedScanner struct {
	config Config
	listen AdvertisementSource
	run    CommandRunner
	logger *zap.Logger
}

// NewUnpairedScanner creates a scanner backed by the host's BLE radio
func NewUnpairedScanner(logger *zap.Logger, config Config) *UnpairedScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ScanWindow <= 0 {
		config.ScanWindow = DefaultConfig().ScanWindow
	}
	return &UnpairedScanner{
		config: config,
		listen: scanBLE,
		run:    execRunner,
		logger: logger.With(zap.String("scanner", "bluetooth_unpaired")),
	}
}

// WithSource replaces the radio scan
func (s *UnpairedScanner) WithSource(listen AdvertisementSource) *UnpairedScanner {
	s.listen = listen
	return s
}

// WithRunner replaces the external command runner
func (s *UnpairedScanner) WithRunner(run CommandRunner) *UnpairedScanner {
	s.run = run
	return s
}

// Filter returns the discovery filter served by the scanner
func (s *UnpairedScanner) Filter() model.DiscoveryFilter {
	return model.FilterBluetoothUnpaired
}

// IsAvailable reports whether the platform has a radio scanner
func (s *UnpairedScanner) IsAvailable() bool {
	return bleSupported
}

// ScanWindow is how long Scan listens for advertisements
func (s *UnpairedScanner) ScanWindow() time.Duration {
	return s.config.ScanWindow
}

// Scan listens for advertisements and keeps named printers that are not
// already paired
func (s *UnpairedScanner) Scan(ctx context.Context) ([]model.DeviceDescriptor, error) {
	logConnected(ctx, s.run, s.logger)

	paired := make(map[string]bool)
	if devices, err := listBluez(ctx, s.run, "Paired"); err == nil {
		for _, d := range devices {
			paired[d.MAC] = true
		}
	}

	s.logger.Info("Starting Bluetooth scan", zap.Duration("window", s.config.ScanWindow))
	ads, err := s.listen(ctx, s.config.ScanWindow)
	if err != nil && len(ads) == 0 {
		return nil, err
	}

	seen := make(map[string]bool)
	var devices []model.DeviceDescriptor
	for _, ad := range ads {
		mac := strings.ToUpper(ad.Address)
		name := strings.TrimSpace(ad.Name)
		if mac == "" || name == "" || seen[mac] || paired[mac] {
			continue
		}
		if !matchesName(name, s.config.NameFilters) {
			continue
		}
		seen[mac] = true
		devices = append(devices, macDescriptor(mac, name))
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Identifier < devices[j].Identifier })

	s.logger.Info("Bluetooth scan completed", zap.Int("devices_found", len(devices)))
	return devices, nil
}
