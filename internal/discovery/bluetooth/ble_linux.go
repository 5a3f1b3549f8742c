//go:build linux

// internal/discovery/bluetooth/ble_linux.go
package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

const bleSupported = true

// scanBLE listens on the default HCI device
func scanBLE(ctx context.Context, window time.Duration) ([]Advertisement, error) {
	dev, err := linux.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to open HCI device: %w", err)
	}
	defer dev.Stop()

	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	var mu sync.Mutex
	var ads []Advertisement
	err = dev.Scan(ctx, false, func(a ble.Advertisement) {
		mu.Lock()
		ads = append(ads, Advertisement{Name: a.LocalName(), Address: a.Addr().String(), RSSI: a.RSSI()})
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return ads, fmt.Errorf("BLE scan failed: %w", err)
	}
	return ads, nil
}
