// internal/service/printer_service.go
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"printer-bridge/internal/config"
	"printer-bridge/internal/connection"
	"printer-bridge/internal/discovery/bluetooth"
	"printer-bridge/internal/dispatch"
	"printer-bridge/internal/model"
	"printer-bridge/internal/protocol"
	"printer-bridge/internal/repository"
	"printer-bridge/internal/utils"
	"printer-bridge/pkg/driver"
)

// Discoverer runs discovery scans, Bluetooth pairing and USB diagnostics
type Discoverer interface {
	Discover(ctx context.Context, filter model.DiscoveryFilter) ([]model.DeviceDescriptor, error)
	Pair(ctx context.Context, address string) bluetooth.PairResult
	USBDiagnostics(ctx context.Context) ([]map[string]interface{}, error)
}

// PrinterService is the facade every caller goes through. Operations that
// touch the printer run one at a time on the dispatcher's worker; the rest
// run concurrently. Every call returns a future that completes exactly
// once.
type PrinterService struct {
	connections *connection.Manager
	discovery   Discoverer
	dispatcher  *dispatch.Dispatcher
	config      *config.Config
	logger      *utils.ServiceLogger
}

// NewPrinterService creates a new printer service
func NewPrinterService(
	connections *connection.Manager,
	discovery Discoverer,
	dispatcher *dispatch.Dispatcher,
	cfg *config.Config,
	logger *zap.Logger,
) *PrinterService {
	return &PrinterService{
		connections: connections,
		discovery:   discovery,
		dispatcher:  dispatcher,
		config:      cfg,
		logger:      utils.NewServiceLogger(logger, "printer-service"),
	}
}

// Discover scans one transport. Scanner failures yield an empty result.
func (s *PrinterService) Discover(filter model.DiscoveryFilter) *dispatch.Future[[]model.DeviceDescriptor] {
	opType := discoveryOperation(filter)
	return dispatch.Go(s.dispatcher, opType, "", func(ctx context.Context) ([]model.DeviceDescriptor, error) {
		return s.discovery.Discover(ctx, filter)
	})
}

// DiscoverPrinters scans the network
func (s *PrinterService) DiscoverPrinters() *dispatch.Future[[]model.DeviceDescriptor] {
	return s.Discover(model.FilterTCP)
}

// DiscoverBluetooth scans for advertising, unpaired Bluetooth printers
func (s *PrinterService) DiscoverBluetooth() *dispatch.Future[[]model.DeviceDescriptor] {
	return s.Discover(model.FilterBluetoothUnpaired)
}

// FindPairedBluetooth lists Bluetooth printers already paired with the host
func (s *PrinterService) FindPairedBluetooth() *dispatch.Future[[]model.DeviceDescriptor] {
	return s.Discover(model.FilterBluetoothPaired)
}

// DiscoverUsb lists attached USB printers
func (s *PrinterService) DiscoverUsb() *dispatch.Future[[]model.DeviceDescriptor] {
	return s.Discover(model.FilterUSB)
}

// PairBluetooth pairs and trusts a Bluetooth printer. The outcome is
// reported in the result code, never as an error.
func (s *PrinterService) PairBluetooth(req *PairRequest) *dispatch.Future[bluetooth.PairResult] {
	if req == nil || strings.TrimSpace(req.Address) == "" {
		return dispatch.Completed(bluetooth.PairResult{ResultCode: bluetooth.PairErrParam}, nil)
	}
	return dispatch.Go(s.dispatcher, model.OperationPair, req.Address, func(ctx context.Context) (bluetooth.PairResult, error) {
		return s.discovery.Pair(ctx, req.Address), nil
	})
}

// UsbDiagnostics lists every USB device visible to the host
func (s *PrinterService) UsbDiagnostics() *dispatch.Future[[]map[string]interface{}] {
	return dispatch.Go(s.dispatcher, model.OperationUsbDiagnostics, "", func(ctx context.Context) ([]map[string]interface{}, error) {
		devices, err := s.discovery.USBDiagnostics(ctx)
		if err != nil {
			s.logger.Warn("USB diagnostics failed", zap.Error(err))
			return []map[string]interface{}{}, nil
		}
		return devices, nil
	})
}

// Connect opens the printer connection, replacing any open one
func (s *PrinterService) Connect(req *ConnectRequest) *dispatch.Future[*model.ConnectionHandle] {
	connReq, err := s.connectRequest(req)
	if err != nil {
		return dispatch.Completed[*model.ConnectionHandle](nil, err)
	}

	return dispatch.Submit(s.dispatcher, model.OperationConnect, req.TargetString, func(ctx context.Context) (*model.ConnectionHandle, error) {
		return s.connections.Connect(ctx, connReq)
	})
}

func (s *PrinterService) connectRequest(req *ConnectRequest) (connection.ConnectRequest, error) {
	if req == nil || req.TargetString == "" {
		return connection.ConnectRequest{}, model.InvalidArgument("targetString is required")
	}

	out := connection.ConnectRequest{
		Target:   req.TargetString,
		Series:   model.DeviceSeries(s.config.Printer.DefaultSeries),
		Language: model.CommandLanguage(s.config.Printer.DefaultLanguage),
		Timeout:  s.config.Printer.ConnectTimeout,
	}
	if req.PrinterSeries != nil {
		out.Series = model.DeviceSeries(*req.PrinterSeries)
	}
	if req.PrinterLanguage != nil {
		out.Language = model.CommandLanguage(*req.PrinterLanguage)
	}
	if req.Timeout != nil {
		if *req.Timeout <= 0 {
			return connection.ConnectRequest{}, model.InvalidArgument("timeout must be positive, got %d", *req.Timeout)
		}
		out.Timeout = time.Duration(*req.Timeout) * time.Millisecond
	}
	return out, nil
}

// Disconnect closes the open connection. Without one it succeeds.
func (s *PrinterService) Disconnect() *dispatch.Future[bool] {
	return dispatch.Submit(s.dispatcher, model.OperationDisconnect, s.currentTarget(), func(ctx context.Context) (bool, error) {
		if err := s.connections.Disconnect(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Print sends a print job to the connected printer
func (s *PrinterService) Print(req *PrintRequest) *dispatch.Future[*driver.PrintResult] {
	if req == nil || len(req.Commands) == 0 {
		return dispatch.Completed[*driver.PrintResult](nil, model.InvalidArgument("commands must not be empty"))
	}

	target := req.Target
	if target == "" {
		target = s.currentTarget()
	}

	return dispatch.Submit(s.dispatcher, model.OperationPrint, target, func(ctx context.Context) (*driver.PrintResult, error) {
		session, _, err := s.connections.Session(req.Target)
		if err != nil {
			return nil, sessionError(model.ErrCodePrintFailed, err)
		}
		return session.Print(ctx, req.Commands)
	})
}

// OpenCashDrawer pulses the drawer kick connector
func (s *PrinterService) OpenCashDrawer(req *OpenCashDrawerRequest) *dispatch.Future[bool] {
	pin := model.DrawerPin(s.config.Printer.DrawerPin)
	pulse := int(s.config.Printer.DrawerPulse / time.Millisecond)
	if req != nil {
		if req.Pin != nil {
			pin = model.DrawerPin(*req.Pin)
		}
		if req.PulseMillis != nil {
			pulse = *req.PulseMillis
		}
	}
	if pin != model.DrawerPin2 && pin != model.DrawerPin5 {
		return dispatch.Completed(false, model.InvalidArgument("drawer pin must be 2 or 5, got %d", pin))
	}

	return dispatch.Submit(s.dispatcher, model.OperationOpenCashDrawer, s.currentTarget(), func(ctx context.Context) (bool, error) {
		session, _, err := s.connections.Session("")
		if err != nil {
			return false, sessionError(model.ErrCodeDrawerFailed, err)
		}
		if err := session.KickDrawer(ctx, pin, pulse); err != nil {
			return false, err
		}
		return true, nil
	})
}

// GetStatus reads the printer's real-time status. Without a connection it
// reports the disconnected status rather than an error.
func (s *PrinterService) GetStatus() *dispatch.Future[model.PrinterStatus] {
	return dispatch.Submit(s.dispatcher, model.OperationGetStatus, s.currentTarget(), func(ctx context.Context) (model.PrinterStatus, error) {
		session, _, err := s.connections.Session("")
		if err != nil {
			return model.DisconnectedStatus(), nil
		}
		return session.ReadStatus(ctx), nil
	})
}

// IsConnected reports whether a connection is open. It never blocks.
func (s *PrinterService) IsConnected() bool {
	return s.connections.IsConnected()
}

// ConnectionInfo returns the connection state and open handle
func (s *PrinterService) ConnectionInfo() model.ConnectionInfo {
	return s.connections.Info()
}

// TransportStats returns byte and error counters of the open connection
func (s *PrinterService) TransportStats() *protocol.ProtocolStats {
	return s.connections.TransportStats()
}

// Operations returns the dispatched operation history
func (s *PrinterService) Operations() repository.OperationRepository {
	return s.dispatcher.Operations()
}

// Close stops the dispatcher and releases the connection
func (s *PrinterService) Close() error {
	s.dispatcher.Stop()
	return s.connections.Close()
}

func (s *PrinterService) currentTarget() string {
	if info := s.connections.Info(); info.Handle != nil {
		return info.Handle.Target
	}
	return ""
}

// sessionError maps a missing session to the operation's failure code
func sessionError(code model.ErrorCode, err error) error {
	if errors.Is(err, connection.ErrNotConnected) {
		return model.NewError(code, "printer is not connected", err)
	}
	return err
}

func discoveryOperation(filter model.DiscoveryFilter) model.OperationType {
	switch filter {
	case model.FilterBluetoothUnpaired:
		return model.OperationDiscoverBluetooth
	case model.FilterBluetoothPaired:
		return model.OperationFindPairedBluetooth
	case model.FilterUSB:
		return model.OperationDiscoverUsb
	default:
		return model.OperationDiscoverPrinters
	}
}

// LegacyStrings renders descriptors in the "target:deviceName" form,
// skipping entries that lack either part
func LegacyStrings(devices []model.DeviceDescriptor) []string {
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		if !d.Valid() {
			continue
		}
		out = append(out, d.LegacyString())
	}
	return out
}
