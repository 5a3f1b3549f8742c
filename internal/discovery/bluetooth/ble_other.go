//go:build !linux

// internal/discovery/bluetooth/ble_other.go
package bluetooth

import (
	"context"
	"errors"
	"time"
)

const bleSupported = false

func scanBLE(ctx context.Context, window time.Duration) ([]Advertisement, error) {
	return nil, errors.New("BLE scanning is only supported on linux")
}
