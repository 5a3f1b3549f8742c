// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"printer-bridge/internal/config"
	"printer-bridge/internal/model"
	"printer-bridge/internal/utils"
)

// ConnectionReporter reports the printer connection state
type ConnectionReporter interface {
	ConnectionInfo() model.ConnectionInfo
}

// ScannerReporter lists the discovery filters whose scanners can run
type ScannerReporter interface {
	AvailableFilters() []model.DiscoveryFilter
}

// HealthHandler handles health check requests
type HealthHandler struct {
	connections ConnectionReporter
	scanners    ScannerReporter
	config      *config.Config
	startedAt   time.Time
	logger      *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(connections ConnectionReporter, scanners ScannerReporter, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		connections: connections,
		scanners:    scanners,
		config:      config,
		startedAt:   time.Now(),
		logger:      utils.NewServiceLogger(logger, "health-handler"),
	}
}

// HealthCheck reports service health with the printer connection and the
// available scanners
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	info := h.connections.ConnectionInfo()
	printer := CheckResult{
		Status:  "healthy",
		Message: string(info.State),
	}
	if info.Handle != nil {
		printer.Data = map[string]interface{}{
			"target":    info.Handle.Target,
			"transport": string(info.Handle.Transport),
			"series":    info.Handle.Series.String(),
		}
	}
	health.Checks["printer"] = printer

	filters := h.scanners.AvailableFilters()
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = string(f)
	}
	discovery := CheckResult{
		Status: "healthy",
		Data:   map[string]interface{}{"available": names},
	}
	if len(names) == 0 {
		discovery.Status = "degraded"
		discovery.Message = "no discovery scanner available"
	}
	health.Checks["discovery"] = discovery

	c.JSON(http.StatusOK, health)
}

// ReadinessCheck for Kubernetes readiness probe
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	// Simple liveness check - service is alive if it can respond
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
