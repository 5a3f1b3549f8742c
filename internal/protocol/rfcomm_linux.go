//go:build linux

// internal/protocol/rfcomm_linux.go
package protocol

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"printer-bridge/internal/model"
)

// RFCOMMConnection implements Transport over a Bluetooth RFCOMM socket
type RFCOMMConnection struct {
	config *RFCOMMConfig
	file   *os.File
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  statsRecorder
}

// NewRFCOMMConnection creates a new RFCOMM connection
func NewRFCOMMConnection(config *RFCOMMConfig, logger *zap.Logger) *RFCOMMConnection {
	return &RFCOMMConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "rfcomm"),
			zap.String("mac", config.MAC),
			zap.Int("channel", config.Channel),
		),
	}
}

// parseBDAddr converts "AA:BB:CC:DD:EE:FF" into the little-endian bdaddr
// layout the kernel expects
func parseBDAddr(mac string) ([6]uint8, error) {
	var addr [6]uint8
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return addr, fmt.Errorf("invalid bluetooth address %q", mac)
	}
	for i, p := range parts {
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return addr, fmt.Errorf("invalid bluetooth address %q: %w", mac, err)
		}
		addr[5-i] = uint8(b)
	}
	return addr, nil
}

// Open connects the socket. A connect abandoned through ctx closes the fd.
func (rc *RFCOMMConnection) Open(ctx context.Context) error {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if rc.isOpen {
		return nil
	}

	addr, err := parseBDAddr(rc.config.MAC)
	if err != nil {
		return err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return fmt.Errorf("failed to create RFCOMM socket: %w", err)
	}

	sa := &unix.SockaddrRFCOMM{Addr: addr, Channel: uint8(rc.config.Channel)}
	done := make(chan error, 1)
	go func() {
		done <- unix.Connect(fd, sa)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		unix.Close(fd)
		return ctx.Err()
	}
	if err != nil {
		unix.Close(fd)
		rc.stats.recordError()
		return fmt.Errorf("failed to connect to %s: %w", rc.config.MAC, err)
	}

	if rc.config.Timeout > 0 {
		tv := unix.NsecToTimeval(rc.config.Timeout.Nanoseconds())
		unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
		unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
	}

	rc.file = os.NewFile(uintptr(fd), "rfcomm:"+rc.config.MAC)
	rc.isOpen = true
	rc.stats.setConnected(true)

	rc.logger.Info("RFCOMM connection opened")
	return nil
}

// Close closes the socket
func (rc *RFCOMMConnection) Close() error {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if !rc.isOpen || rc.file == nil {
		return nil
	}

	err := rc.file.Close()
	rc.file = nil
	rc.isOpen = false
	rc.stats.setConnected(false)

	if err != nil {
		return fmt.Errorf("failed to close RFCOMM socket: %w", err)
	}
	rc.logger.Info("RFCOMM connection closed")
	return nil
}

// IsOpen returns whether the connection is open
func (rc *RFCOMMConnection) IsOpen() bool {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()
	return rc.isOpen && rc.file != nil
}

// Write writes data to the socket
func (rc *RFCOMMConnection) Write(ctx context.Context, data []byte) error {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()

	if !rc.isOpen || rc.file == nil {
		return fmt.Errorf("RFCOMM connection not open")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	startTime := time.Now()
	n, err := rc.file.Write(data)
	if err != nil {
		rc.stats.recordError()
		return fmt.Errorf("failed to write to RFCOMM socket: %w", err)
	}

	rc.stats.recordWrite(n, time.Since(startTime))
	rc.logger.Debug("RFCOMM write completed", zap.Int("bytes", n))
	return nil
}

// Read reads from the socket
func (rc *RFCOMMConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()

	if !rc.isOpen || rc.file == nil {
		return nil, fmt.Errorf("RFCOMM connection not open")
	}

	data, err := readAsync(ctx, maxBytes, rc.file.Read)
	if err != nil {
		rc.stats.recordError()
		return nil, fmt.Errorf("failed to read from RFCOMM socket: %w", err)
	}

	rc.stats.recordRead(len(data))
	return data, nil
}

// Kind returns the transport kind
func (rc *RFCOMMConnection) Kind() model.TransportKind {
	return model.TransportBluetooth
}

// Target returns the bluetooth target
func (rc *RFCOMMConnection) Target() Target {
	return Target{Kind: model.TransportBluetooth, MAC: rc.config.MAC}
}

// Stats returns a snapshot of the connection statistics
func (rc *RFCOMMConnection) Stats() ProtocolStats {
	return rc.stats.snapshot()
}
