//go:build !linux

// internal/protocol/rfcomm_other.go
package protocol

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

// RFCOMMConnection is unavailable off Linux. Paired devices are reached
// through their serial port instead (BT:COMn).
type RFCOMMConnection struct {
	config *RFCOMMConfig
	stats  statsRecorder
}

// NewRFCOMMConnection creates a connection whose Open always fails
func NewRFCOMMConnection(config *RFCOMMConfig, logger *zap.Logger) *RFCOMMConnection {
	return &RFCOMMConnection{config: config}
}

func (rc *RFCOMMConnection) Open(ctx context.Context) error {
	return fmt.Errorf("RFCOMM sockets are not supported on this platform, use the serial port path")
}

func (rc *RFCOMMConnection) Close() error { return nil }
func (rc *RFCOMMConnection) IsOpen() bool { return false }

func (rc *RFCOMMConnection) Write(ctx context.Context, data []byte) error {
	return fmt.Errorf("RFCOMM connection not open")
}

func (rc *RFCOMMConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	return nil, fmt.Errorf("RFCOMM connection not open")
}

func (rc *RFCOMMConnection) Kind() model.TransportKind { return model.TransportBluetooth }

func (rc *RFCOMMConnection) Target() Target {
	return Target{Kind: model.TransportBluetooth, MAC: rc.config.MAC}
}

func (rc *RFCOMMConnection) Stats() ProtocolStats { return rc.stats.snapshot() }
