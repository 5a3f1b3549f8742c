// pkg/driver/interfaces.go
package driver

import (
	"context"

	"go.uber.org/zap"

	"printer-bridge/internal/model"
	"printer-bridge/internal/protocol"
)

// PrinterSession is an initialized conversation with one printer over an
// open transport. Implementations serialize their own device I/O.
type PrinterSession interface {
	// Session setup
	Handshake(ctx context.Context, verify bool) error

	// Printing operations
	Print(ctx context.Context, commands []model.CommandSpec) (*PrintResult, error)
	KickDrawer(ctx context.Context, pin model.DrawerPin, pulseMillis int) error

	// Printer status
	ReadStatus(ctx context.Context) model.PrinterStatus
	PrinterName(ctx context.Context) (string, error)

	// Cleanup
	Transport() protocol.Transport
	Close() error
}

// SessionFactory creates a session for an already open transport
type SessionFactory func(transport protocol.Transport, opts SessionOptions, logger *zap.Logger) PrinterSession
