// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"printer-bridge/internal/model"
	"printer-bridge/internal/protocol"
	"printer-bridge/pkg/driver"
)

// SeriesAny registers a factory for every series of a vendor
const SeriesAny model.DeviceSeries = -1

// Registry manages session factory registration and creation
type Registry struct {
	drivers map[DriverKey]driver.SessionFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// DriverKey uniquely identifies a driver
type DriverKey struct {
	Vendor string
	Series model.DeviceSeries
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers: make(map[DriverKey]driver.SessionFactory),
		logger:  logger,
	}
}

// Register registers a session factory
func (r *Registry) Register(vendor string, series model.DeviceSeries, factory driver.SessionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := DriverKey{Vendor: strings.ToLower(vendor), Series: series}
	r.drivers[key] = factory

	r.logger.Debug("Driver registered",
		zap.String("vendor", key.Vendor),
		zap.Int("series", int(series)),
	)
}

// CreateSession creates a session for an open transport. An exact series
// match wins over the vendor wildcard.
func (r *Registry) CreateSession(vendor string, transport protocol.Transport, opts driver.SessionOptions) (driver.PrinterSession, error) {
	factory, ok := r.lookup(vendor, opts.Series)
	if !ok {
		return nil, fmt.Errorf("no driver found for vendor=%s, series=%s", vendor, opts.Series)
	}
	return factory(transport, opts, r.logger), nil
}

// IsSupported checks if a series is supported by the vendor
func (r *Registry) IsSupported(vendor string, series model.DeviceSeries) bool {
	_, ok := r.lookup(vendor, series)
	return ok
}

// ListDrivers returns all registered drivers
func (r *Registry) ListDrivers() []DriverKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]DriverKey, 0, len(r.drivers))
	for key := range r.drivers {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Vendor != keys[j].Vendor {
			return keys[i].Vendor < keys[j].Vendor
		}
		return keys[i].Series < keys[j].Series
	})
	return keys
}

func (r *Registry) lookup(vendor string, series model.DeviceSeries) (driver.SessionFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := DriverKey{Vendor: strings.ToLower(vendor), Series: series}
	if factory, exists := r.drivers[key]; exists {
		return factory, true
	}

	key.Series = SeriesAny
	factory, exists := r.drivers[key]
	return factory, exists
}
