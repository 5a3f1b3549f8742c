// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"printer-bridge/internal/config"
	"printer-bridge/internal/handler"
	"printer-bridge/internal/middleware"
	"printer-bridge/internal/service"
	"printer-bridge/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config         *config.Config
	logger         *zap.Logger
	printerService *service.PrinterService
	scanners       handler.ScannerReporter
	eventBus       *handler.EventBus
	wsHandler      *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	printerService *service.PrinterService,
	scanners handler.ScannerReporter,
	eventBus *handler.EventBus,
) *Router {
	return &Router{
		config:         config,
		logger:         logger,
		printerService: printerService,
		scanners:       scanners,
		eventBus:       eventBus,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Create Gin engine
	router := gin.New()

	// Add middleware
	r.addMiddleware(router)

	// Add routes
	r.addRoutes(router)

	return router
}

// WebSocketHandler returns the handler created by SetupRouter
func (r *Router) WebSocketHandler() *handler.WebSocketHandler {
	return r.wsHandler
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	// Request ID first so recovery and logging can report it
	router.Use(middleware.RequestIDMiddleware())

	// Recovery middleware
	router.Use(middleware.RecoveryMiddleware(r.logger))

	// Logging middleware
	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	// CORS middleware
	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	// Create handlers
	healthHandler := handler.NewHealthHandler(r.printerService, r.scanners, r.config, r.logger)
	printerHandler := handler.NewPrinterHandler(r.printerService, r.logger)
	callHandler := handler.NewCallHandler(r.printerService, r.logger)
	operationHandler := handler.NewOperationHandler(r.printerService.Operations(), r.logger)
	r.wsHandler = handler.NewWebSocketHandler(r.eventBus, callHandler, r.config.Security.AllowedOrigins, r.logger)

	// Health check routes
	r.addHealthRoutes(router, healthHandler)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	apiV1.POST("/call", callHandler.HandleCall)
	r.addDiscoveryRoutes(apiV1, printerHandler)
	r.addPrinterRoutes(apiV1, printerHandler)
	r.addOperationRoutes(apiV1, operationHandler)
	apiV1.GET("/ws/stats", r.wsHandler.GetConnectionStats)

	// WebSocket routes
	r.addWebSocketRoutes(router, r.wsHandler)

	r.logger.Info("All routes configured successfully")
}

// addHealthRoutes sets up health check routes
func (r *Router) addHealthRoutes(router *gin.Engine, handler *handler.HealthHandler) {
	health := router.Group("")
	{
		health.GET("/health", handler.HealthCheck)
		health.GET("/ready", handler.ReadinessCheck)
		health.GET("/live", handler.LivenessCheck)
	}
}

// addDiscoveryRoutes sets up discovery and pairing routes
func (r *Router) addDiscoveryRoutes(api *gin.RouterGroup, handler *handler.PrinterHandler) {
	printers := api.Group("/printers")
	{
		printers.GET("/discover", handler.Discover)
		printers.POST("/pair", handler.Pair)
		printers.GET("/usb/diagnostics", handler.UsbDiagnostics)
	}
}

// addPrinterRoutes sets up routes for the connected printer
func (r *Router) addPrinterRoutes(api *gin.RouterGroup, handler *handler.PrinterHandler) {
	printer := api.Group("/printer")
	{
		printer.GET("/connection", handler.GetConnection)
		printer.POST("/connect", handler.Connect)
		printer.POST("/disconnect", handler.Disconnect)
		printer.POST("/print", handler.Print)
		printer.GET("/status", handler.GetStatus)
		printer.POST("/drawer", handler.OpenCashDrawer)
	}
}

// addOperationRoutes sets up operation history routes
func (r *Router) addOperationRoutes(api *gin.RouterGroup, handler *handler.OperationHandler) {
	operations := api.Group("/operations")
	{
		operations.GET("", handler.ListOperations)
		operations.GET("/stats", handler.GetOperationStats)
		operations.GET("/:operation_id", handler.GetOperation)
	}
}

// addWebSocketRoutes sets up WebSocket routes
func (r *Router) addWebSocketRoutes(router *gin.Engine, handler *handler.WebSocketHandler) {
	ws := router.Group("/ws")
	{
		ws.GET("/events", handler.HandleEventConnection)
		ws.GET("/operations", handler.HandleOperationConnection)
	}
}
