// internal/driver/epson/epson_driver.go
package epson

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
	"printer-bridge/internal/protocol"
	"printer-bridge/internal/utils"
	"printer-bridge/pkg/driver"
)

var _ driver.PrinterSession = (*Driver)(nil)

// DefaultStatusTimeout bounds each DLE EOT reply
const DefaultStatusTimeout = 2 * time.Second

// Driver speaks ESC/POS over an open transport. It does not open the
// transport; it closes it on Close.
type Driver struct {
	transport     protocol.Transport
	encoder       *Encoder
	profile       model.SeriesProfile
	charset       charset
	statusTimeout time.Duration
	logger        *utils.DeviceLogger
	mutex         sync.Mutex
}

// NewDriver creates a driver for an already open transport
func NewDriver(transport protocol.Transport, opts driver.SessionOptions, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = DefaultStatusTimeout
	}

	deviceLogger := utils.NewDeviceLogger(logger, transport.Target().String(), string(transport.Kind()))

	return &Driver{
		transport:     transport,
		encoder:       NewEncoder(opts.Series, opts.Language, logger),
		profile:       opts.Series.Profile(),
		charset:       charsetFor(opts.Language),
		statusTimeout: opts.StatusTimeout,
		logger:        deviceLogger,
	}
}

// Transport returns the underlying transport
func (d *Driver) Transport() protocol.Transport {
	return d.transport
}

// Handshake initializes the printer and, when verify is set, requires a
// well-formed DLE EOT 1 reply
func (d *Driver) Handshake(ctx context.Context, verify bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.initializePrinter(ctx); err != nil {
		return model.NewError(model.ErrCodeConnectionFailed, "printer initialization failed", err)
	}
	if !verify {
		return nil
	}

	reply, err := d.query(ctx, ESC_POS_COMMANDS.STATUS_PRINTER)
	if err != nil {
		return model.NewError(model.ErrCodeConnectionFailed, "printer did not answer status request", err)
	}
	if !ValidStatusByte(reply) {
		return model.NewError(model.ErrCodeConnectionFailed,
			fmt.Sprintf("unexpected status reply 0x%02X", reply), nil)
	}

	d.logger.Debug("Handshake completed", zap.String("status", FormatStatusByte(&reply)))
	return nil
}

// Print encodes the commands and transmits them in order. Skipped commands
// are reported in the result. Encoding and transmission failures are
// PRINT_FAILED.
func (d *Driver) Print(ctx context.Context, specs []model.CommandSpec) (*driver.PrintResult, error) {
	encoded, err := d.encoder.Encode(specs)
	if err != nil {
		return nil, model.NewError(model.ErrCodePrintFailed, "print job could not be encoded", err)
	}
	return d.send(ctx, encoded)
}

// PrintCommands transmits already typed commands
func (d *Driver) PrintCommands(ctx context.Context, cmds []model.PrintCommand) (*driver.PrintResult, error) {
	encoded, err := d.encoder.EncodeCommands(cmds)
	if err != nil {
		return nil, model.NewError(model.ErrCodePrintFailed, "print job could not be encoded", err)
	}
	return d.send(ctx, encoded)
}

func (d *Driver) send(ctx context.Context, encoded *Encoded) (*driver.PrintResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	jobID := uuid.New().String()
	start := time.Now()

	chunks := make([][]byte, 0, len(encoded.Segments)+1)
	chunks = append(chunks, encoded.Preamble)
	for _, s := range encoded.Segments {
		chunks = append(chunks, s.Bytes)
	}

	sent, err := d.sendCommands(ctx, chunks)
	duration := time.Since(start)
	d.logger.LogOperation(string(model.OperationPrint), jobID, duration, err)
	if err != nil {
		return nil, model.NewError(model.ErrCodePrintFailed, "print transmission failed", err)
	}

	return &driver.PrintResult{
		JobID:     jobID,
		Segments:  len(encoded.Segments),
		BytesSent: sent,
		Skipped:   encoded.Skipped,
		Duration:  duration,
	}, nil
}

// KickDrawer pulses the drawer kick connector
func (d *Driver) KickDrawer(ctx context.Context, pin model.DrawerPin, pulseMillis int) error {
	if !d.profile.HasDrawer {
		return model.NewError(model.ErrCodeDrawerFailed,
			fmt.Sprintf("%s has no drawer kick connector", d.profile.Name), nil)
	}
	if pin != model.DrawerPin2 && pin != model.DrawerPin5 {
		return model.NewError(model.ErrCodeDrawerFailed, fmt.Sprintf("invalid drawer pin: %d", pin), nil)
	}
	if pulseMillis <= 0 {
		pulseMillis = model.DefaultPulseMillis
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	start := time.Now()
	_, err := d.sendCommands(ctx, [][]byte{DrawerKickCommand(pin, pulseMillis)})
	d.logger.LogOperation(string(model.OperationOpenCashDrawer), "", time.Since(start), err)
	if err != nil {
		return model.NewError(model.ErrCodeDrawerFailed, "failed to send drawer command", err)
	}
	return nil
}

// ReadStatus requests DLE EOT 1 to 4 and decodes the replies. A printer that
// does not answer yields a status carrying COMMUNICATION_ERR rather than an
// error.
func (d *Driver) ReadStatus(ctx context.Context) model.PrinterStatus {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var raw model.RawStatus
	requests := []struct {
		cmd  []byte
		dest **byte
	}{
		{ESC_POS_COMMANDS.STATUS_PRINTER, &raw.Printer},
		{ESC_POS_COMMANDS.STATUS_OFFLINE, &raw.Offline},
		{ESC_POS_COMMANDS.STATUS_ERROR, &raw.Error},
		{ESC_POS_COMMANDS.STATUS_ROLL_PAPER, &raw.RollPaper},
	}

	for i, req := range requests {
		reply, err := d.query(ctx, req.cmd)
		if err != nil {
			d.logger.Debug("Status request unanswered", zap.Int("n", i+1), zap.Error(err))
			if i == 0 {
				// Nothing else will answer either
				break
			}
			continue
		}
		b := reply
		*req.dest = &b
	}

	status := DecodeStatus(raw)
	d.logger.Debug("Printer status",
		zap.String("printer", FormatStatusByte(raw.Printer)),
		zap.String("offline", FormatStatusByte(raw.Offline)),
		zap.String("error", FormatStatusByte(raw.Error)),
		zap.String("roll_paper", FormatStatusByte(raw.RollPaper)),
		zap.String("error_code", status.ErrorCode),
	)
	return status
}

// PrinterName asks for the model name with GS I. Older series do not answer.
func (d *Driver) PrinterName(ctx context.Context) (string, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, err := d.sendCommands(ctx, [][]byte{ESC_POS_COMMANDS.PRINTER_NAME}); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, d.statusTimeout)
	defer cancel()

	var buf []byte
	for len(buf) < maxNameReply {
		chunk, err := d.transport.Read(ctx, maxNameReply)
		if err != nil {
			return "", fmt.Errorf("read printer name: %w", err)
		}
		buf = append(buf, chunk...)
		if bytes.IndexByte(buf, 0x00) >= 0 {
			break
		}
	}
	name, ok := ParsePrinterName(buf)
	if !ok {
		return "", fmt.Errorf("unexpected printer name reply")
	}
	return name, nil
}

const maxNameReply = 80

// ParsePrinterName extracts the model name from a GS I reply block:
// 0x5F, name, NUL.
func ParsePrinterName(reply []byte) (string, bool) {
	end := bytes.IndexByte(reply, 0x00)
	if end < 0 {
		end = len(reply)
	}
	if end < 2 || reply[0] != 0x5F {
		return "", false
	}
	return string(reply[1:end]), true
}

// Close closes the transport
func (d *Driver) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.transport.IsOpen() {
		return nil
	}
	err := d.transport.Close()
	d.logger.LogConnection("close", err)
	return err
}

// sendCommands writes each chunk in order and returns the bytes written
func (d *Driver) sendCommands(ctx context.Context, commands [][]byte) (int, error) {
	if !d.transport.IsOpen() {
		return 0, fmt.Errorf("no open connection")
	}

	sent := 0
	for _, cmd := range commands {
		if len(cmd) == 0 {
			continue
		}
		if err := d.transport.Write(ctx, cmd); err != nil {
			return sent, fmt.Errorf("failed to send command: %w", err)
		}
		sent += len(cmd)
	}
	return sent, nil
}

// query sends a real-time request and returns the reply byte. When the
// printer sends more than one byte the last well-formed one wins.
func (d *Driver) query(ctx context.Context, cmd []byte) (byte, error) {
	if _, err := d.sendCommands(ctx, [][]byte{cmd}); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.statusTimeout)
	defer cancel()

	reply, err := d.transport.Read(ctx, 8)
	if err != nil {
		return 0, err
	}
	if len(reply) == 0 {
		return 0, fmt.Errorf("empty status reply")
	}
	for i := len(reply) - 1; i >= 0; i-- {
		if ValidStatusByte(reply[i]) {
			return reply[i], nil
		}
	}
	return reply[0], nil
}

// initializePrinter resets the printer and selects the language's code page
func (d *Driver) initializePrinter(ctx context.Context) error {
	commands := [][]byte{
		ESC_POS_COMMANDS.INITIALIZE,
		d.charset.selectCmd,
	}
	_, err := d.sendCommands(ctx, commands)
	return err
}
