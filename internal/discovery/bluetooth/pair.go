// internal/discovery/bluetooth/pair.go
package bluetooth

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"printer-bridge/internal/protocol"
)

// Pairing result codes, numbered like the vendor SDK's Bluetooth results
const (
	PairSuccess          = 0
	PairErrParam         = 1
	PairErrUnsupported   = 2
	PairErrCancel        = 3
	PairErrAlreadyPaired = 4
	PairErrIllegalDevice = 5
	PairErrFailure       = 255
)

// PairResult is returned by pairBluetoothDevice. Target is nil when the
// address could not be parsed.
type PairResult struct {
	Target     *string `json:"target"`
	ResultCode int     `json:"resultCode"`
}

// Pairer pairs and trusts printers through bluetoothctl
type Pairer struct {
	config Config
	run    CommandRunner
	logger *zap.Logger
}

// NewPairer creates a pairer
func NewPairer(logger *zap.Logger, config Config) *Pairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PairTimeout <= 0 {
		config.PairTimeout = DefaultConfig().PairTimeout
	}
	return &Pairer{
		config: config,
		run:    execRunner,
		logger: logger.With(zap.String("component", "bluetooth_pairer")),
	}
}

// WithRunner replaces the external command runner
func (p *Pairer) WithRunner(run CommandRunner) *Pairer {
	p.run = run
	return p
}

// Pair pairs the device at address ("BT:<mac>" or a bare MAC) and marks it
// trusted. Failures are reported through the result code.
func (p *Pairer) Pair(ctx context.Context, address string) PairResult {
	address = strings.TrimSpace(address)
	if address == "" {
		p.logger.Warn("Pair called without an address")
		return PairResult{ResultCode: PairErrParam}
	}
	if !strings.HasPrefix(strings.ToUpper(address), "BT:") {
		address = "BT:" + address
	}
	target, err := protocol.ParseTarget(address)
	if err != nil || target.MAC == "" {
		p.logger.Warn("Invalid Bluetooth address", zap.String("address", address))
		return PairResult{ResultCode: PairErrParam}
	}
	targetString := target.String()
	result := PairResult{Target: &targetString}
	logger := p.logger.With(zap.String("target", targetString))

	ctx, cancel := context.WithTimeout(ctx, p.config.PairTimeout)
	defer cancel()

	seconds := strconv.Itoa(int(p.config.PairTimeout.Seconds()))
	out, err := p.run(ctx, "bluetoothctl", "--timeout", seconds, "pair", target.MAC)
	result.ResultCode = classifyPair(ctx, out, err)

	switch result.ResultCode {
	case PairSuccess, PairErrAlreadyPaired:
		if _, err := p.run(ctx, "bluetoothctl", "trust", target.MAC); err != nil {
			logger.Warn("Failed to trust paired device", zap.Error(err))
		}
		logger.Info("Bluetooth device paired", zap.Int("result_code", result.ResultCode))
	default:
		logger.Warn("Bluetooth pairing failed",
			zap.Int("result_code", result.ResultCode),
			zap.String("output", strings.TrimSpace(string(out))),
			zap.Error(err),
		)
	}
	return result
}

func classifyPair(ctx context.Context, out []byte, err error) int {
	text := string(out)
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return PairErrUnsupported
	case strings.Contains(text, "AlreadyExists"):
		return PairErrAlreadyPaired
	case strings.Contains(text, "Pairing successful"):
		return PairSuccess
	case ctx.Err() != nil:
		return PairErrCancel
	case strings.Contains(text, "not available"):
		return PairErrIllegalDevice
	case err == nil && !strings.Contains(text, "Failed"):
		return PairSuccess
	}
	return PairErrFailure
}
