package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-bridge/internal/config"
	"printer-bridge/internal/connection"
	"printer-bridge/internal/discovery/bluetooth"
	drivers "printer-bridge/internal/driver"
	"printer-bridge/internal/driver/epson"
	"printer-bridge/internal/dispatch"
	"printer-bridge/internal/model"
	"printer-bridge/internal/protocol"
	"printer-bridge/internal/testutil"
)

type stubDiscoverer struct {
	mu      sync.Mutex
	devices map[model.DiscoveryFilter][]model.DeviceDescriptor
	paired  []string
	usb     []map[string]interface{}
	usbErr  error
}

func (s *stubDiscoverer) Discover(ctx context.Context, filter model.DiscoveryFilter) ([]model.DeviceDescriptor, error) {
	if !filter.Valid() {
		return nil, model.InvalidArgument("unknown discovery filter %q", filter)
	}
	if d, ok := s.devices[filter]; ok {
		return d, nil
	}
	return []model.DeviceDescriptor{}, nil
}

func (s *stubDiscoverer) Pair(ctx context.Context, address string) bluetooth.PairResult {
	s.mu.Lock()
	s.paired = append(s.paired, address)
	s.mu.Unlock()
	return bluetooth.PairResult{Target: strPtr("BT:" + address), ResultCode: bluetooth.PairSuccess}
}

func (s *stubDiscoverer) USBDiagnostics(ctx context.Context) ([]map[string]interface{}, error) {
	return s.usb, s.usbErr
}

func testConfig() *config.Config {
	return &config.Config{
		Printer: config.PrinterConfig{
			Driver:          drivers.VendorEpson,
			DefaultSeries:   int(model.SeriesTMM30III),
			DefaultLanguage: int(model.LanguageANK),
			ConnectTimeout:  2 * time.Second,
			Handshake:       true,
			StatusTimeout:   200 * time.Millisecond,
			DrawerPin:       2,
			DrawerPulse:     50 * time.Millisecond,
		},
	}
}

func newTestService(t *testing.T, discoverer Discoverer) *PrinterService {
	t.Helper()
	cfg := testConfig()
	logger := zap.NewNop()

	registry := drivers.NewRegistry(logger)
	drivers.RegisterDefaultDrivers(registry, logger)

	manager := connection.NewManager(protocol.NewFactory(protocol.DefaultDefaults(), logger), registry, connection.Options{
		Vendor:        cfg.Printer.Driver,
		Handshake:     cfg.Printer.Handshake,
		StatusTimeout: cfg.Printer.StatusTimeout,
	}, nil, logger)

	dispatcher := dispatch.NewDispatcher(dispatch.Options{QueueSize: 8}, nil, nil, logger)
	if discoverer == nil {
		discoverer = &stubDiscoverer{}
	}

	svc := NewPrinterService(manager, discoverer, dispatcher, cfg, logger)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func await[T any](t *testing.T, f *dispatch.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestConnectPrintDisconnect(t *testing.T) {
	printer := testutil.NewFakePrinter(t)
	svc := newTestService(t, nil)

	handle, err := await(t, svc.Connect(&ConnectRequest{TargetString: printer.Target()}))
	require.NoError(t, err)
	assert.Equal(t, printer.Target(), handle.Target)
	assert.Equal(t, model.SeriesTMM30III, handle.Series)
	assert.Equal(t, model.LanguageANK, handle.Language)
	assert.True(t, svc.IsConnected())

	result, err := await(t, svc.Print(&PrintRequest{Commands: []model.CommandSpec{
		{Type: "TEXT", Value: strPtr("Hello")},
		{Type: "CUT"},
	}}))
	require.NoError(t, err)
	assert.Empty(t, result.Skipped)

	cut := []byte{0x1D, 0x56}
	require.True(t, printer.WaitReceived(cut, time.Second))
	received := printer.Received()
	hello := bytes.Index(received, []byte("Hello"))
	require.GreaterOrEqual(t, hello, 0)
	assert.Greater(t, bytes.LastIndex(received, cut), hello)

	ok, err := await(t, svc.Disconnect())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, svc.IsConnected())
}

func TestConnectAppliesRequestOverrides(t *testing.T) {
	printer := testutil.NewFakePrinter(t)
	svc := newTestService(t, nil)

	handle, err := await(t, svc.Connect(&ConnectRequest{
		TargetString:    printer.Target(),
		PrinterSeries:   intPtr(int(model.SeriesTMT88)),
		PrinterLanguage: intPtr(int(model.LanguageJapanese)),
		Timeout:         intPtr(3000),
	}))
	require.NoError(t, err)
	assert.Equal(t, model.SeriesTMT88, handle.Series)
	assert.Equal(t, model.LanguageJapanese, handle.Language)
	assert.Equal(t, 3*time.Second, handle.Timeout)
}

func TestConnectRejectsInvalidArguments(t *testing.T) {
	svc := newTestService(t, nil)

	tests := []struct {
		name string
		req  *ConnectRequest
	}{
		{"missing target", &ConnectRequest{}},
		{"bad target", &ConnectRequest{TargetString: "FOO:bar"}},
		{"bad series", &ConnectRequest{TargetString: "TCP:192.0.2.5", PrinterSeries: intPtr(99)}},
		{"bad language", &ConnectRequest{TargetString: "TCP:192.0.2.5", PrinterLanguage: intPtr(42)}},
		{"zero timeout", &ConnectRequest{TargetString: "TCP:192.0.2.5", Timeout: intPtr(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := await(t, svc.Connect(tt.req))
			assert.Equal(t, model.ErrCodeInvalidArgument, model.CodeOf(err))
			assert.False(t, svc.IsConnected())
		})
	}
}

func TestDisconnectWithoutConnection(t *testing.T) {
	svc := newTestService(t, nil)

	ok, err := await(t, svc.Disconnect())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, svc.IsConnected())
}

func TestPrintRequiresConnection(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := await(t, svc.Print(&PrintRequest{Commands: []model.CommandSpec{{Type: "CUT"}}}))
	assert.Equal(t, model.ErrCodePrintFailed, model.CodeOf(err))

	_, err = await(t, svc.Print(&PrintRequest{}))
	assert.Equal(t, model.ErrCodeInvalidArgument, model.CodeOf(err))
}

func TestPrintRejectsOtherTarget(t *testing.T) {
	printer := testutil.NewFakePrinter(t)
	svc := newTestService(t, nil)

	_, err := await(t, svc.Connect(&ConnectRequest{TargetString: printer.Target()}))
	require.NoError(t, err)

	_, err = await(t, svc.Print(&PrintRequest{
		Target:   "TCP:192.0.2.99",
		Commands: []model.CommandSpec{{Type: "CUT"}},
	}))
	assert.Equal(t, model.ErrCodeInvalidArgument, model.CodeOf(err))

	_, err = await(t, svc.Print(&PrintRequest{
		Target:   printer.Target(),
		Commands: []model.CommandSpec{{Type: "CUT"}},
	}))
	assert.NoError(t, err)
}

func TestOpenCashDrawer(t *testing.T) {
	printer := testutil.NewFakePrinter(t)
	svc := newTestService(t, nil)

	_, err := await(t, svc.OpenCashDrawer(nil))
	assert.Equal(t, model.ErrCodeDrawerFailed, model.CodeOf(err))

	_, err = await(t, svc.Connect(&ConnectRequest{TargetString: printer.Target()}))
	require.NoError(t, err)

	ok, err := await(t, svc.OpenCashDrawer(nil))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, printer.WaitReceived(epson.DrawerKickCommand(model.DrawerPin2, 50), time.Second))

	ok, err = await(t, svc.OpenCashDrawer(&OpenCashDrawerRequest{Pin: intPtr(5), PulseMillis: intPtr(100)}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, printer.WaitReceived(epson.DrawerKickCommand(model.DrawerPin5, 100), time.Second))

	_, err = await(t, svc.OpenCashDrawer(&OpenCashDrawerRequest{Pin: intPtr(3)}))
	assert.Equal(t, model.ErrCodeInvalidArgument, model.CodeOf(err))
}

func TestGetStatus(t *testing.T) {
	printer := testutil.NewFakePrinter(t)
	svc := newTestService(t, nil)

	status, err := await(t, svc.GetStatus())
	require.NoError(t, err)
	assert.Equal(t, model.DisconnectedStatus(), status)

	_, err = await(t, svc.Connect(&ConnectRequest{TargetString: printer.Target()}))
	require.NoError(t, err)

	status, err = await(t, svc.GetStatus())
	require.NoError(t, err)
	assert.True(t, status.Online)
	assert.Empty(t, status.ErrorCode)
}

func TestDiscoveryOperations(t *testing.T) {
	discoverer := &stubDiscoverer{devices: map[model.DiscoveryFilter][]model.DeviceDescriptor{
		model.FilterTCP: {
			{Identifier: "TCP:192.0.2.5", DisplayName: "TM-m30III", Transport: model.TransportTCP},
		},
		model.FilterBluetoothPaired: {
			{Identifier: "BT:00:01:90:AA:BB:CC", DisplayName: "TM-P20", Transport: model.TransportBluetooth},
		},
	}}
	svc := newTestService(t, discoverer)

	devices, err := await(t, svc.DiscoverPrinters())
	require.NoError(t, err)
	assert.Equal(t, []string{"TCP:192.0.2.5:TM-m30III"}, LegacyStrings(devices))

	devices, err = await(t, svc.FindPairedBluetooth())
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	devices, err = await(t, svc.DiscoverBluetooth())
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)

	devices, err = await(t, svc.DiscoverUsb())
	require.NoError(t, err)
	assert.Empty(t, devices)

	_, err = await(t, svc.Discover("SERIAL"))
	assert.Equal(t, model.ErrCodeInvalidArgument, model.CodeOf(err))

	ops, total, err := svc.Operations().List(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, model.OperationDiscoverPrinters, ops[total-1].Type)
}

func TestPairAndUsbDiagnostics(t *testing.T) {
	discoverer := &stubDiscoverer{usb: []map[string]interface{}{{"vendor_id": "04B8"}}}
	svc := newTestService(t, discoverer)

	result, err := await(t, svc.PairBluetooth(&PairRequest{Address: "00:01:90:AA:BB:CC"}))
	require.NoError(t, err)
	assert.Equal(t, bluetooth.PairSuccess, result.ResultCode)
	assert.Equal(t, []string{"00:01:90:AA:BB:CC"}, discoverer.paired)

	for _, req := range []*PairRequest{nil, {}, {Address: " "}} {
		result, err = await(t, svc.PairBluetooth(req))
		require.NoError(t, err)
		assert.Equal(t, bluetooth.PairErrParam, result.ResultCode)
		assert.Nil(t, result.Target)
	}
	assert.Len(t, discoverer.paired, 1)

	devices, err := await(t, svc.UsbDiagnostics())
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	discoverer.usb, discoverer.usbErr = nil, assert.AnError
	devices, err = await(t, svc.UsbDiagnostics())
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestLegacyStringsSkipsIncompleteEntries(t *testing.T) {
	out := LegacyStrings([]model.DeviceDescriptor{
		{Identifier: "TCP:192.0.2.5", DisplayName: "Printer"},
		{Identifier: "", DisplayName: "No target"},
		{Identifier: "BT:00:01:90:AA:BB:CC", DisplayName: ""},
	})
	assert.Equal(t, []string{"TCP:192.0.2.5:Printer"}, out)
	assert.NotNil(t, LegacyStrings(nil))
}
