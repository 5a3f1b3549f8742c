// internal/handler/printer_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
	"printer-bridge/internal/service"
	"printer-bridge/internal/utils"
)

// PrinterHandler exposes the printer operations as REST routes
type PrinterHandler struct {
	printerService *service.PrinterService
	logger         *utils.ServiceLogger
}

// NewPrinterHandler creates a new printer handler
func NewPrinterHandler(printerService *service.PrinterService, logger *zap.Logger) *PrinterHandler {
	return &PrinterHandler{
		printerService: printerService,
		logger:         utils.NewServiceLogger(logger, "printer-handler"),
	}
}

// DiscoverRequest is the query of a discovery call
type DiscoverRequest struct {
	Filter string `form:"filter" binding:"required,oneof=TCP BLUETOOTH_PAIRED BLUETOOTH_UNPAIRED USB"`
	Legacy bool   `form:"legacy"`
}

// Discover scans one transport
func (h *PrinterHandler) Discover(c *gin.Context) {
	var req DiscoverRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"filter": err.Error()})
		return
	}

	devices, err := h.printerService.Discover(model.DiscoveryFilter(req.Filter)).Await(c.Request.Context())
	if err != nil {
		utils.PrinterErrorResponse(c, "Discovery failed", err)
		return
	}

	if req.Legacy {
		utils.SuccessResponse(c, http.StatusOK, "Discovery completed", service.LegacyStrings(devices))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Discovery completed", gin.H{
		"filter":  req.Filter,
		"devices": devices,
		"count":   len(devices),
	})
}

// Pair pairs a Bluetooth printer
func (h *PrinterHandler) Pair(c *gin.Context) {
	var req service.PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.printerService.PairBluetooth(&req).Await(c.Request.Context())
	if err != nil {
		utils.PrinterErrorResponse(c, "Pairing failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Pairing finished", result)
}

// UsbDiagnostics lists every visible USB device
func (h *PrinterHandler) UsbDiagnostics(c *gin.Context) {
	devices, err := h.printerService.UsbDiagnostics().Await(c.Request.Context())
	if err != nil {
		utils.PrinterErrorResponse(c, "USB diagnostics failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "USB devices listed", devices)
}

// Connect opens the printer connection
func (h *PrinterHandler) Connect(c *gin.Context) {
	var req service.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	handle, err := h.printerService.Connect(&req).Await(c.Request.Context())
	if err != nil {
		h.logger.Warn("Connect failed", zap.String("target", req.TargetString), zap.Error(err))
		utils.PrinterErrorResponse(c, "Failed to connect printer", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Printer connected", handle)
}

// Disconnect closes the printer connection
func (h *PrinterHandler) Disconnect(c *gin.Context) {
	if _, err := h.printerService.Disconnect().Await(c.Request.Context()); err != nil {
		utils.PrinterErrorResponse(c, "Failed to disconnect printer", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Printer disconnected", nil)
}

// Print sends a print job
func (h *PrinterHandler) Print(c *gin.Context) {
	var req service.PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.printerService.Print(&req).Await(c.Request.Context())
	if err != nil {
		h.logger.Warn("Print failed", zap.Error(err))
		utils.PrinterErrorResponse(c, "Print failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Print job sent", result)
}

// OpenCashDrawer kicks the cash drawer
func (h *PrinterHandler) OpenCashDrawer(c *gin.Context) {
	var req service.OpenCashDrawerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	if _, err := h.printerService.OpenCashDrawer(&req).Await(c.Request.Context()); err != nil {
		utils.PrinterErrorResponse(c, "Failed to open drawer", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Drawer opened", nil)
}

// GetStatus reads the printer status
func (h *PrinterHandler) GetStatus(c *gin.Context) {
	status, err := h.printerService.GetStatus().Await(c.Request.Context())
	if err != nil {
		utils.PrinterErrorResponse(c, "Failed to read status", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved", status)
}

// GetConnection reports the connection state
func (h *PrinterHandler) GetConnection(c *gin.Context) {
	info := h.printerService.ConnectionInfo()
	utils.SuccessResponse(c, http.StatusOK, "Connection state", gin.H{
		"connected": info.State == model.StateConnected,
		"state":     info.State,
		"handle":    info.Handle,
		"stats":     h.printerService.TransportStats(),
	})
}
