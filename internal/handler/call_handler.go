// internal/handler/call_handler.go
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"printer-bridge/internal/dispatch"
	"printer-bridge/internal/model"
	"printer-bridge/internal/service"
	"printer-bridge/internal/utils"
)

// MethodCall is one {method, arguments} call in the form the mobile
// plugins received it
type MethodCall struct {
	Method    string          `json:"method" binding:"required"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Method names accepted by Call
const (
	MethodDiscoverPrinters    = "discoverPrinters"
	MethodDiscoverBluetooth   = "discoverBluetoothPrinters"
	MethodFindPairedBluetooth = "findPairedBluetoothPrinters"
	MethodDiscoverUsb         = "discoverUsbPrinters"
	MethodPairBluetooth       = "pairBluetoothDevice"
	MethodUsbDiagnostics      = "usbDiagnostics"
	MethodConnect             = "connect"
	MethodDisconnect          = "disconnect"
	MethodPrintReceipt        = "printReceipt"
	MethodGetStatus           = "getStatus"
	MethodOpenCashDrawer      = "openCashDrawer"
	MethodIsConnected         = "isConnected"
)

// CallHandler decodes method calls into typed requests, validates them and
// runs them through the printer service
type CallHandler struct {
	printerService *service.PrinterService
	logger         *utils.ServiceLogger
}

// NewCallHandler creates a new call handler
func NewCallHandler(printerService *service.PrinterService, logger *zap.Logger) *CallHandler {
	return &CallHandler{
		printerService: printerService,
		logger:         utils.NewServiceLogger(logger, "call-handler"),
	}
}

// HandleCall executes one method call
func (h *CallHandler) HandleCall(c *gin.Context) {
	var call MethodCall
	if err := c.ShouldBindJSON(&call); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", model.NewError(model.ErrCodeInvalidArgument, "invalid call", err))
		return
	}

	result, err := h.Invoke(c.Request.Context(), call.Method, call.Arguments)
	if err != nil {
		h.logger.Warn("Method call failed", zap.String("method", call.Method), zap.Error(err))
		utils.PrinterErrorResponse(c, "Method call failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, call.Method, result)
}

// Invoke runs method with its raw arguments and waits for the result.
// Giving up on ctx does not cancel the call.
func (h *CallHandler) Invoke(ctx context.Context, method string, arguments json.RawMessage) (interface{}, error) {
	return h.Call(method, arguments).Await(ctx)
}

// Call starts method with its raw arguments. The result takes the shape the
// mobile plugins returned.
func (h *CallHandler) Call(method string, arguments json.RawMessage) *dispatch.Future[interface{}] {
	svc := h.printerService

	switch method {
	case MethodDiscoverPrinters:
		return legacyDevices(svc.DiscoverPrinters())
	case MethodDiscoverBluetooth:
		return legacyDevices(svc.DiscoverBluetooth())
	case MethodFindPairedBluetooth:
		return legacyDevices(svc.FindPairedBluetooth())
	case MethodDiscoverUsb:
		return legacyDevices(svc.DiscoverUsb())

	case MethodPairBluetooth:
		var req service.PairRequest
		if err := decodeArguments(arguments, &req); err != nil {
			return failed(err)
		}
		return asResult(svc.PairBluetooth(&req))

	case MethodUsbDiagnostics:
		return asResult(svc.UsbDiagnostics())

	case MethodConnect:
		var req service.ConnectRequest
		if err := decodeArguments(arguments, &req); err != nil {
			return failed(err)
		}
		return succeeded(svc.Connect(&req))

	case MethodDisconnect:
		return asResult(svc.Disconnect())

	case MethodPrintReceipt:
		var req service.PrintRequest
		if err := decodeArguments(arguments, &req); err != nil {
			return failed(err)
		}
		return succeeded(svc.Print(&req))

	case MethodGetStatus:
		return dispatch.Map(svc.GetStatus(), func(status model.PrinterStatus, err error) (interface{}, error) {
			if err != nil {
				return nil, err
			}
			return status.ToMap(), nil
		})

	case MethodOpenCashDrawer:
		var req service.OpenCashDrawerRequest
		if err := decodeArguments(arguments, &req); err != nil {
			return failed(err)
		}
		return asResult(svc.OpenCashDrawer(&req))

	case MethodIsConnected:
		return dispatch.Completed[interface{}](svc.IsConnected(), nil)

	default:
		return failed(model.NewError(model.ErrCodeNotImplemented, "unknown method "+method, nil))
	}
}

func failed(err error) *dispatch.Future[interface{}] {
	return dispatch.Completed[interface{}](nil, err)
}

func asResult[T any](f *dispatch.Future[T]) *dispatch.Future[interface{}] {
	return dispatch.Map(f, func(v T, err error) (interface{}, error) {
		if err != nil {
			return nil, err
		}
		return v, nil
	})
}

// succeeded reports a write operation as a boolean
func succeeded[T any](f *dispatch.Future[T]) *dispatch.Future[interface{}] {
	return dispatch.Map(f, func(_ T, err error) (interface{}, error) {
		return err == nil, err
	})
}

func legacyDevices(f *dispatch.Future[[]model.DeviceDescriptor]) *dispatch.Future[interface{}] {
	return dispatch.Map(f, func(devices []model.DeviceDescriptor, err error) (interface{}, error) {
		if err != nil {
			return nil, err
		}
		return service.LegacyStrings(devices), nil
	})
}

// decodeArguments decodes arguments into req and runs the binding
// validator over it. Missing arguments decode as an empty object.
func decodeArguments(arguments json.RawMessage, req interface{}) error {
	raw := bytes.TrimSpace(arguments)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, req); err != nil {
		return model.NewError(model.ErrCodeInvalidArgument, "malformed arguments", err)
	}
	if err := binding.Validator.ValidateStruct(req); err != nil {
		return model.NewError(model.ErrCodeInvalidArgument, "invalid arguments", err)
	}
	return nil
}
