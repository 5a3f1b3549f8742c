// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"printer-bridge/internal/config"
	"printer-bridge/internal/connection"
	"printer-bridge/internal/dispatch"
	"printer-bridge/internal/driver"
	"printer-bridge/internal/handler"
	"printer-bridge/internal/protocol"
	"printer-bridge/internal/repository"
	"printer-bridge/internal/routes"
	"printer-bridge/internal/service"
	"printer-bridge/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	// Events
	eventBus  *handler.EventBus
	wsHandler *handler.WebSocketHandler

	// Services
	discoveryService *service.DiscoveryService
	printerService   *service.PrinterService

	// Core components
	driverRegistry *driver.Registry
	connections    *connection.Manager
	operationRepo  repository.OperationRepository
	dispatcher     *dispatch.Dispatcher
}

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML configuration file")
	pflag.Parse()

	// Initialize application
	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Start the application
	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "printer-bridge")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config:   cfg,
		logger:   logger,
		eventBus: handler.NewEventBus(logger),
	}

	if err := app.initializeDriverRegistry(); err != nil {
		return nil, fmt.Errorf("failed to initialize driver registry: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDriverRegistry sets up the printer driver registry
func (app *Application) initializeDriverRegistry() error {
	app.driverRegistry = driver.NewRegistry(app.logger)

	// Register all supported drivers
	driver.RegisterDefaultDrivers(app.driverRegistry, app.logger)

	app.logger.Info("Driver registry initialized successfully",
		zap.Int("registered_drivers", len(app.driverRegistry.ListDrivers())),
	)
	return nil
}

// initializeServices creates the connection manager, discovery, dispatcher
// and the printer service on top of them
func (app *Application) initializeServices() error {
	cfg := app.config

	transports := protocol.NewFactory(transportDefaults(cfg), app.logger)
	app.connections = connection.NewManager(transports, app.driverRegistry, connection.Options{
		Vendor:        cfg.Printer.Driver,
		Handshake:     cfg.Printer.Handshake,
		StatusTimeout: cfg.Printer.StatusTimeout,
	}, app.eventBus, app.logger)

	discoveryService, err := service.NewDiscoveryService(cfg, app.eventBus, app.logger)
	if err != nil {
		return err
	}
	app.discoveryService = discoveryService

	app.operationRepo = repository.NewOperationRepository(repository.DefaultHistorySize, app.logger)
	app.dispatcher = dispatch.NewDispatcher(dispatch.Options{
		QueueSize:         cfg.Dispatch.QueueSize,
		CallbackQueueSize: cfg.Dispatch.CallbackQueueSize,
	}, app.operationRepo, app.eventBus, app.logger)

	app.printerService = service.NewPrinterService(
		app.connections,
		app.discoveryService,
		app.dispatcher,
		cfg,
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
	return nil
}

func transportDefaults(cfg *config.Config) protocol.Defaults {
	t := cfg.Transport
	return protocol.Defaults{
		TCPKeepAlive:    t.TCP.KeepAlive,
		TCPReadTimeout:  t.TCP.ReadTimeout,
		TCPWriteTimeout: t.TCP.WriteTimeout,
		SerialBaudRate:  t.Serial.BaudRate,
		SerialDataBits:  t.Serial.DataBits,
		SerialStopBits:  t.Serial.StopBits,
		SerialParity:    t.Serial.Parity,
		SerialTimeout:   t.Serial.Timeout,
		RFCOMMChannel:   t.Bluetooth.Channel,
		RFCOMMTimeout:   t.Bluetooth.Timeout,
		USBEndpoint:     t.USB.Endpoint,
		USBTimeout:      t.USB.Timeout,
	}
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.printerService,
		app.discoveryService.Manager(),
		app.eventBus,
	)

	// Setup router with all routes
	router := routerManager.SetupRouter()
	app.wsHandler = routerManager.WebSocketHandler()

	// Create HTTP server
	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)

	return nil
}

// startBackgroundServices starts event distribution
func (app *Application) startBackgroundServices() {
	go app.eventBus.Start()
	go app.wsHandler.Start()

	app.logger.Info("Background services started")
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "printer-bridge")
	serviceLogger.LogServiceStop("shutdown signal received")

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		utils.LogError(app.logger, "HTTP server shutdown error", err)
	} else {
		app.logger.Info("HTTP server stopped")
	}

	app.wsHandler.Stop()

	// Finish queued operations and release the printer
	if err := app.printerService.Close(); err != nil {
		utils.LogError(app.logger, "Printer service close error", err)
	} else {
		app.logger.Info("Printer connection released")
	}

	app.eventBus.Stop()

	app.logger.Info("Application shutdown completed")

	// Flush logger
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start serves HTTP until a shutdown signal arrives
func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()

	app.waitForShutdown()

	return nil
}
