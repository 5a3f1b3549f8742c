// internal/connection/manager.go
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"printer-bridge/internal/model"
	"printer-bridge/internal/protocol"
	"printer-bridge/pkg/driver"
)

// ErrNotConnected is returned when an operation needs an open session
var ErrNotConnected = errors.New("printer is not connected")

// TransportFactory creates unopened transports
type TransportFactory interface {
	Create(target protocol.Target) (protocol.Transport, error)
}

// SessionFactory wraps an open transport in a printer session
type SessionFactory interface {
	CreateSession(vendor string, transport protocol.Transport, opts driver.SessionOptions) (driver.PrinterSession, error)
}

// Options configures the manager
type Options struct {
	Vendor        string
	Handshake     bool
	StatusTimeout time.Duration
}

// ConnectRequest carries the per-call connection parameters
type ConnectRequest struct {
	Target   string
	Series   model.DeviceSeries
	Language model.CommandLanguage
	Timeout  time.Duration
}

// Manager owns the single printer session.
// States: DISCONNECTED -> CONNECTING -> CONNECTED | DISCONNECTED.
type Manager struct {
	transports TransportFactory
	sessions   SessionFactory
	opts       Options
	events     model.EventPublisher
	logger     *zap.Logger

	mu      sync.RWMutex
	state   model.ConnectionState
	handle  *model.ConnectionHandle
	session driver.PrinterSession
}

// NewManager creates a disconnected manager
func NewManager(transports TransportFactory, sessions SessionFactory, opts Options, events model.EventPublisher, logger *zap.Logger) *Manager {
	if events == nil {
		events = model.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		transports: transports,
		sessions:   sessions,
		opts:       opts,
		events:     events,
		logger:     logger.With(zap.String("component", "connection_manager")),
		state:      model.StateDisconnected,
	}
}

type openResult struct {
	transport protocol.Transport
	session   driver.PrinterSession
	err       error
}

// Connect opens a session to req.Target. A session that is already open is
// released first. The call fails with BUSY while another connect is in
// progress and with CONNECTION_FAILED when the transport refuses, the
// handshake fails or req.Timeout elapses.
func (m *Manager) Connect(ctx context.Context, req ConnectRequest) (*model.ConnectionHandle, error) {
	target, err := protocol.ParseTarget(req.Target)
	if err != nil {
		return nil, model.NewError(model.ErrCodeInvalidArgument, "invalid target", err)
	}
	if !req.Series.Valid() {
		return nil, model.InvalidArgument("unknown printer series %d", req.Series)
	}
	if !req.Language.Valid() {
		return nil, model.InvalidArgument("unknown command language %d", req.Language)
	}
	if req.Timeout < 0 {
		return nil, model.InvalidArgument("timeout must not be negative")
	}
	if req.Timeout == 0 {
		req.Timeout = model.DefaultTimeout
	}

	m.mu.Lock()
	if m.state == model.StateConnecting {
		m.mu.Unlock()
		return nil, model.Busy("a connection attempt is already in progress")
	}
	previous, previousHandle := m.session, m.handle
	m.state = model.StateConnecting
	m.session, m.handle = nil, nil
	m.mu.Unlock()

	if previous != nil {
		m.release(previous, previousHandle, "replaced by new connection")
	}

	logger := m.logger.With(zap.String("target", target.String()))
	logger.Info("Connecting to printer",
		zap.String("series", req.Series.String()),
		zap.String("language", req.Language.String()),
		zap.Duration("timeout", req.Timeout),
	)

	start := time.Now()
	session, err := m.open(ctx, target, req)
	if err != nil {
		m.mu.Lock()
		m.state = model.StateDisconnected
		m.mu.Unlock()

		logger.Warn("Printer connection failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		m.events.Publish(model.NewEvent(model.EventPrinterError, target.String(), map[string]interface{}{
			"action": "connect",
			"error":  err.Error(),
		}))
		return nil, err
	}

	handle := &model.ConnectionHandle{
		Target:      target.String(),
		Transport:   target.Kind,
		Series:      req.Series,
		Language:    req.Language,
		Timeout:     req.Timeout,
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.state = model.StateConnected
	m.session = session
	m.handle = handle
	m.mu.Unlock()

	logger.Info("Printer connected", zap.Duration("elapsed", time.Since(start)))
	m.events.Publish(model.NewEvent(model.EventPrinterConnected, handle.Target, map[string]interface{}{
		"series":    req.Series.String(),
		"transport": string(handle.Transport),
	}))

	copied := *handle
	return &copied, nil
}

// open runs the blocking transport open and handshake off the caller and
// gives up when the timeout elapses. A late result is closed.
func (m *Manager) open(ctx context.Context, target protocol.Target, req ConnectRequest) (driver.PrinterSession, error) {
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	done := make(chan openResult, 1)
	go func() {
		done <- m.openSession(ctx, target, req)
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.session, nil
	case <-ctx.Done():
		go func() {
			r := <-done
			switch {
			case r.session != nil:
				r.session.Close()
			case r.transport != nil:
				r.transport.Close()
			}
		}()
		return nil, model.NewError(model.ErrCodeConnectionFailed,
			fmt.Sprintf("connection to %s timed out after %s", target, req.Timeout), ctx.Err())
	}
}

func (m *Manager) openSession(ctx context.Context, target protocol.Target, req ConnectRequest) openResult {
	transport, err := m.transports.Create(target)
	if err != nil {
		return openResult{err: model.NewError(model.ErrCodeConnectionFailed, "transport unavailable", err)}
	}

	if err := transport.Open(ctx); err != nil {
		return openResult{err: model.NewError(model.ErrCodeConnectionFailed,
			fmt.Sprintf("failed to open %s", target), err)}
	}

	session, err := m.sessions.CreateSession(m.opts.Vendor, transport, driver.SessionOptions{
		Series:        req.Series,
		Language:      req.Language,
		StatusTimeout: m.opts.StatusTimeout,
	})
	if err != nil {
		transport.Close()
		return openResult{err: model.NewError(model.ErrCodeConnectionFailed, "no driver for printer", err)}
	}

	if err := session.Handshake(ctx, m.opts.Handshake); err != nil {
		session.Close()
		return openResult{err: model.WithCode(model.ErrCodeConnectionFailed, "handshake failed", err)}
	}

	return openResult{transport: transport, session: session}
}

// Disconnect closes the open session. Without one it is a no-op.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	session, handle := m.session, m.handle
	if session == nil {
		m.mu.Unlock()
		return nil
	}
	m.session, m.handle = nil, nil
	m.state = model.StateDisconnected
	m.mu.Unlock()

	m.release(session, handle, "disconnect requested")
	return nil
}

func (m *Manager) release(session driver.PrinterSession, handle *model.ConnectionHandle, reason string) {
	target := ""
	if handle != nil {
		target = handle.Target
	}

	if err := session.Close(); err != nil {
		m.logger.Warn("Error closing printer session", zap.String("target", target), zap.Error(err))
	}

	m.logger.Info("Printer disconnected", zap.String("target", target), zap.String("reason", reason))
	m.events.Publish(model.NewEvent(model.EventPrinterDisconnected, target, map[string]interface{}{
		"reason": reason,
	}))
}

// IsConnected reports whether a session is open
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == model.StateConnected && m.session != nil
}

// Info returns the state and a copy of the open handle
func (m *Manager) Info() model.ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := model.ConnectionInfo{State: m.state}
	if m.handle != nil {
		copied := *m.handle
		info.Handle = &copied
	}
	return info
}

// TransportStats returns the open transport's counters, or nil without a
// session
func (m *Manager) TransportStats() *protocol.ProtocolStats {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()

	if session == nil {
		return nil
	}
	stats := session.Transport().Stats()
	return &stats
}

// Session returns the open session. A non-empty target must name the open
// handle's target.
func (m *Manager) Session(target string) (driver.PrinterSession, *model.ConnectionHandle, error) {
	m.mu.RLock()
	session, handle := m.session, m.handle
	m.mu.RUnlock()

	if session == nil {
		return nil, nil, ErrNotConnected
	}
	if target != "" {
		parsed, err := protocol.ParseTarget(target)
		if err != nil {
			return nil, nil, model.NewError(model.ErrCodeInvalidArgument, "invalid target", err)
		}
		if parsed.String() != handle.Target {
			return nil, nil, model.InvalidArgument("target %s is not the connected printer %s", parsed, handle.Target)
		}
	}

	copied := *handle
	return session, &copied, nil
}

// Close releases the open session
func (m *Manager) Close() error {
	return m.Disconnect(context.Background())
}
