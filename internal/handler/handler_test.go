package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-bridge/internal/config"
	"printer-bridge/internal/connection"
	"printer-bridge/internal/discovery/bluetooth"
	"printer-bridge/internal/dispatch"
	drivers "printer-bridge/internal/driver"
	"printer-bridge/internal/model"
	"printer-bridge/internal/protocol"
	"printer-bridge/internal/service"
	"printer-bridge/internal/testutil"
	"printer-bridge/internal/utils"
)

type stubDiscoverer struct {
	devices []model.DeviceDescriptor
}

func (s *stubDiscoverer) Discover(ctx context.Context, filter model.DiscoveryFilter) ([]model.DeviceDescriptor, error) {
	if filter == model.FilterTCP {
		return s.devices, nil
	}
	return []model.DeviceDescriptor{}, nil
}

func (s *stubDiscoverer) Pair(ctx context.Context, address string) bluetooth.PairResult {
	target := "BT:" + address
	return bluetooth.PairResult{Target: &target, ResultCode: bluetooth.PairErrAlreadyPaired}
}

func (s *stubDiscoverer) USBDiagnostics(ctx context.Context) ([]map[string]interface{}, error) {
	return []map[string]interface{}{}, nil
}

type stubScanners struct{}

func (stubScanners) AvailableFilters() []model.DiscoveryFilter {
	return []model.DiscoveryFilter{model.FilterTCP, model.FilterUSB}
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
		App: config.AppConfig{Name: "printer-bridge", Version: "test", Environment: "test"},
	}
}

func newTestPrinterService(t *testing.T, events model.EventPublisher) *service.PrinterService {
	t.Helper()
	cfg := testConfig()
	logger := zap.NewNop()

	registry := drivers.NewRegistry(logger)
	drivers.RegisterDefaultDrivers(registry, logger)
	manager := connection.NewManager(protocol.NewFactory(protocol.DefaultDefaults(), logger), registry, connection.Options{
		Vendor:        cfg.Printer.Driver,
		Handshake:     cfg.Printer.Handshake,
		StatusTimeout: cfg.Printer.StatusTimeout,
	}, events, logger)
	dispatcher := dispatch.NewDispatcher(dispatch.Options{}, nil, events, logger)

	discoverer := &stubDiscoverer{devices: []model.DeviceDescriptor{
		{Identifier: "TCP:192.0.2.5", DisplayName: "TM-m30III", Transport: model.TransportTCP},
		{Identifier: "TCP:192.0.2.6", DisplayName: "", Transport: model.TransportTCP},
	}}

	svc := service.NewPrinterService(manager, discoverer, dispatcher, cfg, logger)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func newTestEngine(t *testing.T, svc *service.PrinterService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	calls := NewCallHandler(svc, zap.NewNop())
	printers := NewPrinterHandler(svc, zap.NewNop())
	operations := NewOperationHandler(svc.Operations(), zap.NewNop())
	health := NewHealthHandler(svc, stubScanners{}, testConfig(), zap.NewNop())

	r := gin.New()
	r.GET("/health", health.HealthCheck)
	api := r.Group("/api/v1")
	api.POST("/call", calls.HandleCall)
	api.GET("/printers/discover", printers.Discover)
	api.POST("/printer/connect", printers.Connect)
	api.POST("/printer/print", printers.Print)
	api.GET("/printer/status", printers.GetStatus)
	api.POST("/printer/drawer", printers.OpenCashDrawer)
	api.GET("/printer/connection", printers.GetConnection)
	api.GET("/operations", operations.ListOperations)
	api.GET("/operations/stats", operations.GetOperationStats)
	api.GET("/operations/:operation_id", operations.GetOperation)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp utils.APIResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func call(method string, arguments interface{}) map[string]interface{} {
	m := map[string]interface{}{"method": method}
	if arguments != nil {
		m["arguments"] = arguments
	}
	return m
}

func TestCallIsConnectedAndStatusWithoutPrinter(t *testing.T) {
	r := newTestEngine(t, newTestPrinterService(t, nil))

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodIsConnected, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp.Data)

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodGetStatus, nil))
	require.Equal(t, http.StatusOK, w.Code)
	status := resp.Data.(map[string]interface{})
	assert.Equal(t, false, status["isOnline"])
	assert.Equal(t, "error", status["status"])
	assert.Equal(t, model.StatusErrNotConnected, status["errorStatus"])
}

func TestCallDiscoverReturnsLegacyStrings(t *testing.T) {
	r := newTestEngine(t, newTestPrinterService(t, nil))

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodDiscoverPrinters, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"TCP:192.0.2.5:TM-m30III"}, resp.Data)

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodDiscoverUsb, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, resp.Data)
}

func TestCallPair(t *testing.T) {
	r := newTestEngine(t, newTestPrinterService(t, nil))

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodPairBluetooth, map[string]string{"address": "00:01:90:AA:BB:CC"}))
	require.Equal(t, http.StatusOK, w.Code)
	result := resp.Data.(map[string]interface{})
	assert.Equal(t, "BT:00:01:90:AA:BB:CC", result["target"])
	assert.Equal(t, float64(bluetooth.PairErrAlreadyPaired), result["resultCode"])

	// Called without arguments the result still carries a code
	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodPairBluetooth, nil))
	require.Equal(t, http.StatusOK, w.Code)
	result = resp.Data.(map[string]interface{})
	assert.Contains(t, result, "target")
	assert.Nil(t, result["target"])
	assert.Equal(t, float64(bluetooth.PairErrParam), result["resultCode"])
}

func TestCallValidatesArguments(t *testing.T) {
	r := newTestEngine(t, newTestPrinterService(t, nil))

	tests := []struct {
		name      string
		arguments interface{}
	}{
		{"missing target", map[string]interface{}{}},
		{"series out of range", map[string]interface{}{"targetString": "TCP:192.0.2.5", "printerSeries": 40}},
		{"language out of range", map[string]interface{}{"targetString": "TCP:192.0.2.5", "printerLanguage": 9}},
		{"non-positive timeout", map[string]interface{}{"targetString": "TCP:192.0.2.5", "timeout": 0}},
		{"wrong type", map[string]interface{}{"targetString": 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodConnect, tt.arguments))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(model.ErrCodeInvalidArgument), resp.Error.Code)
		})
	}

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodOpenCashDrawer, map[string]interface{}{"pin": 3}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(model.ErrCodeInvalidArgument), resp.Error.Code)
}

func TestCallUnknownMethod(t *testing.T) {
	r := newTestEngine(t, newTestPrinterService(t, nil))

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/call", call("scanBarcode", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, string(model.ErrCodeNotImplemented), resp.Error.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/call", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallConnectPrintDisconnect(t *testing.T) {
	printer := testutil.NewFakePrinter(t)
	r := newTestEngine(t, newTestPrinterService(t, nil))

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodConnect, map[string]interface{}{
		"targetString": printer.Target(),
		"timeout":      2000,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, resp.Data)

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodPrintReceipt, map[string]interface{}{
		"commands": []map[string]interface{}{
			{"type": "TEXT", "value": "Hello"},
			{"type": "CUT"},
		},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, resp.Data)
	assert.True(t, printer.WaitReceived([]byte("Hello"), time.Second))

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodIsConnected, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp.Data)

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodDisconnect, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp.Data)

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/call", call(MethodPrintReceipt, map[string]interface{}{
		"commands": []map[string]interface{}{{"type": "CUT"}},
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(model.ErrCodePrintFailed), resp.Error.Code)
}

func TestRESTPrinterRoutes(t *testing.T) {
	printer := testutil.NewFakePrinter(t)
	r := newTestEngine(t, newTestPrinterService(t, nil))

	w, _ := doJSON(t, r, http.MethodGet, "/api/v1/printers/discover", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := doJSON(t, r, http.MethodGet, "/api/v1/printers/discover?filter=TCP", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp.Data.(map[string]interface{})["count"])

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/printers/discover?filter=TCP&legacy=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/printer/drawer", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/printer/connect", map[string]interface{}{"targetString": printer.Target()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, printer.Target(), resp.Data.(map[string]interface{})["target"])

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/printer/connection", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["connected"])

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/printer/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["online"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/printer/drawer", map[string]interface{}{"pin": 5})
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/printer/connection", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats, ok := resp.Data.(map[string]interface{})["stats"].(map[string]interface{})
	require.True(t, ok, "connection stats missing")
	assert.Greater(t, stats["bytes_written"].(float64), float64(0))
	assert.Equal(t, true, stats["is_connected"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/printer/print", map[string]interface{}{"commands": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/printer/connect", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOperationRoutes(t *testing.T) {
	svc := newTestPrinterService(t, nil)
	r := newTestEngine(t, svc)

	_, err := svc.GetStatus().Await(context.Background())
	require.NoError(t, err)
	_, err = svc.Print(&service.PrintRequest{Commands: []model.CommandSpec{{Type: "CUT"}}}).Await(context.Background())
	require.Error(t, err)

	w, resp := doJSON(t, r, http.MethodGet, "/api/v1/operations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["pagination"].(map[string]interface{})["total"])
	operations := data["operations"].([]interface{})
	latest := operations[0].(map[string]interface{})
	assert.Equal(t, string(model.OperationPrint), latest["operation_type"])
	assert.Equal(t, string(model.ErrCodePrintFailed), latest["error_code"])

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/operations?status=FAILED", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/operations/"+latest["id"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, latest["id"], resp.Data.(map[string]interface{})["id"])

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/operations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/operations/00000000-0000-0000-0000-000000000001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/operations/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp.Data.(map[string]interface{})["total_operations"])
}

func TestHealthCheck(t *testing.T) {
	r := newTestEngine(t, newTestPrinterService(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, string(model.StateDisconnected), health.Checks["printer"].Message)
	assert.Equal(t, []interface{}{"TCP", "USB"}, health.Checks["discovery"].Data["available"])
}

func TestEventBusDistributes(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	go bus.Start()
	defer bus.Stop()

	all, unsubscribeAll := bus.Subscribe(AllEvents)
	connected, unsubscribe := bus.Subscribe(model.EventPrinterConnected)
	defer unsubscribeAll()

	bus.Publish(model.NewEvent(model.EventPrinterConnected, "TCP:192.0.2.5", nil))

	for _, ch := range []<-chan model.PrinterEvent{all, connected} {
		select {
		case e := <-ch:
			assert.Equal(t, model.EventPrinterConnected, e.EventType)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	unsubscribe()
	bus.Publish(model.NewEvent(model.EventPrinterConnected, "TCP:192.0.2.5", nil))
	select {
	case <-all:
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case <-connected:
		t.Fatal("unsubscribed channel received an event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebSocketEventsAndCalls(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bus := NewEventBus(zap.NewNop())
	go bus.Start()
	defer bus.Stop()

	svc := newTestPrinterService(t, bus)
	ws := NewWebSocketHandler(bus, NewCallHandler(svc, zap.NewNop()), []string{"*"}, zap.NewNop())
	go ws.Start()
	defer ws.Stop()

	r := gin.New()
	r.GET("/ws/events", ws.HandleEventConnection)
	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]interface{} {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping", "request_id": "p1"}))
	msg := read()
	assert.Equal(t, "pong", msg["type"])
	assert.Equal(t, "p1", msg["request_id"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":       "call",
		"request_id": "c1",
		"data":       map[string]interface{}{"method": MethodIsConnected},
	}))
	msg = read()
	assert.Equal(t, "call_result", msg["type"])
	assert.Equal(t, "c1", msg["request_id"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, true, data["success"])
	assert.Equal(t, false, data["result"])

	tests := []struct {
		method  string
		success bool
		code    interface{}
	}{
		{MethodPairBluetooth, true, nil},
		{"printImage", false, string(model.ErrCodeNotImplemented)},
	}
	for i, tt := range tests {
		requestID := "c" + strconv.Itoa(i+2)
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"type":       "call",
			"request_id": requestID,
			"data":       map[string]interface{}{"method": tt.method},
		}))
		msg = read()
		assert.Equal(t, "call_result", msg["type"], tt.method)
		assert.Equal(t, requestID, msg["request_id"], tt.method)
		data = msg["data"].(map[string]interface{})
		assert.Equal(t, tt.success, data["success"], tt.method)
		assert.Equal(t, tt.code, data["code"], tt.method)
	}

	bus.Publish(model.NewEvent(model.EventDiscoveryCompleted, "", map[string]interface{}{"filter": "TCP"}))
	msg = read()
	assert.Equal(t, "printer_event", msg["type"])
	event := msg["data"].(map[string]interface{})
	assert.Equal(t, string(model.EventDiscoveryCompleted), event["event_type"])
}
