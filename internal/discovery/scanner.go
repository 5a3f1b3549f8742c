// internal/discovery/scanner.go
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

const (
	// DefaultScanTimeout bounds a discovery call when none is configured
	DefaultScanTimeout = 8 * time.Second
	// ScanMargin is added to a windowed scanner's listening window
	ScanMargin = 2 * time.Second
	// DefaultScanGrace is how long a timed-out scan may take to hand back
	// the devices it found
	DefaultScanGrace = 500 * time.Millisecond
)

// DeviceScanner enumerates printers for one discovery filter
type DeviceScanner interface {
	Scan(ctx context.Context) ([]model.DeviceDescriptor, error)
	Filter() model.DiscoveryFilter
	IsAvailable() bool
}

// WindowedScanner is a scanner that listens for a fixed window. Its scan
// budget is never shorter than the window plus ScanMargin.
type WindowedScanner interface {
	ScanWindow() time.Duration
}

// ScannerManager runs discovery per filter. Calls for the same filter are
// exclusive; different filters run independently.
type ScannerManager struct {
	scanners map[model.DiscoveryFilter]DeviceScanner
	timeout  time.Duration
	grace    time.Duration
	events   model.EventPublisher
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[model.DiscoveryFilter]bool
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(timeout time.Duration, events model.EventPublisher, logger *zap.Logger) *ScannerManager {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	if events == nil {
		events = model.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScannerManager{
		scanners: make(map[model.DiscoveryFilter]DeviceScanner),
		timeout:  timeout,
		grace:    DefaultScanGrace,
		events:   events,
		logger:   logger.With(zap.String("component", "discovery")),
		inFlight: make(map[model.DiscoveryFilter]bool),
	}
}

// RegisterScanner registers a device scanner, replacing any scanner for the
// same filter
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	sm.mu.Lock()
	sm.scanners[scanner.Filter()] = scanner
	sm.mu.Unlock()
	sm.logger.Info("Scanner registered", zap.String("filter", string(scanner.Filter())))
}

// Discover scans for printers matching filter. Scanner failures and an
// elapsed scan timeout yield the devices found so far, never an error. The
// only errors are INVALID_ARGUMENT for an unknown filter and BUSY while a
// scan of the same filter is still running, including one abandoned after
// its timeout.
func (sm *ScannerManager) Discover(ctx context.Context, filter model.DiscoveryFilter) ([]model.DeviceDescriptor, error) {
	if !filter.Valid() {
		return nil, model.InvalidArgument("unknown discovery filter %q", filter)
	}

	sm.mu.Lock()
	if sm.inFlight[filter] {
		sm.mu.Unlock()
		return nil, model.Busy("discovery for %s is already running", filter)
	}
	sm.inFlight[filter] = true
	scanner := sm.scanners[filter]
	sm.mu.Unlock()

	release := func() {
		sm.mu.Lock()
		delete(sm.inFlight, filter)
		sm.mu.Unlock()
	}

	logger := sm.logger.With(zap.String("filter", string(filter)))
	start := time.Now()

	var devices []model.DeviceDescriptor
	switch {
	case scanner == nil:
		release()
		logger.Debug("No scanner registered for filter")
	case !scanner.IsAvailable():
		release()
		logger.Debug("Scanner not available, skipping")
	default:
		devices = sm.scan(ctx, scanner, release, logger)
	}

	devices = Dedupe(devices)
	logger.Info("Discovery completed",
		zap.Int("devices_found", len(devices)),
		zap.Duration("scan_duration", time.Since(start)),
	)
	sm.events.Publish(model.NewEvent(model.EventDiscoveryCompleted, "", map[string]interface{}{
		"filter":        string(filter),
		"devices_found": len(devices),
	}))

	return devices, nil
}

// Budget returns the scan timeout applied to scanner
func (sm *ScannerManager) Budget(scanner DeviceScanner) time.Duration {
	budget := sm.timeout
	if w, ok := scanner.(WindowedScanner); ok {
		if b := w.ScanWindow() + ScanMargin; b > budget {
			budget = b
		}
	}
	return budget
}

// scan runs scanner under its budget. release is called once Scan returns,
// even when the caller stopped waiting.
func (sm *ScannerManager) scan(ctx context.Context, scanner DeviceScanner, release func(), logger *zap.Logger) []model.DeviceDescriptor {
	budget := sm.Budget(scanner)
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type scanResult struct {
		devices []model.DeviceDescriptor
		err     error
	}
	done := make(chan scanResult, 1)
	go func() {
		devices, err := scanner.Scan(ctx)
		release()
		done <- scanResult{devices: devices, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			logger.Warn("Scanner failed", zap.Error(r.err))
		}
		return r.devices
	case <-ctx.Done():
	}

	grace := time.NewTimer(sm.grace)
	defer grace.Stop()
	select {
	case r := <-done:
		logger.Warn("Scan timeout elapsed, returning partial results",
			zap.Duration("timeout", budget),
			zap.Int("devices_found", len(r.devices)),
		)
		return r.devices
	case <-grace.C:
		logger.Warn("Scanner did not finish before the scan timeout", zap.Duration("timeout", budget))
		return nil
	}
}

// AvailableFilters returns the filters whose scanners can run on this host
func (sm *ScannerManager) AvailableFilters() []model.DiscoveryFilter {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var available []model.DiscoveryFilter
	for filter, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, filter)
		}
	}
	sort.Slice(available, func(i, j int) bool { return available[i] < available[j] })
	return available
}

// Dedupe drops descriptors without an identifier and keeps the first
// descriptor per identifier. The result is never nil.
func Dedupe(devices []model.DeviceDescriptor) []model.DeviceDescriptor {
	seen := make(map[string]bool, len(devices))
	unique := make([]model.DeviceDescriptor, 0, len(devices))
	for _, d := range devices {
		if d.Identifier == "" || seen[d.Identifier] {
			continue
		}
		seen[d.Identifier] = true
		unique = append(unique, d)
	}
	return unique
}
