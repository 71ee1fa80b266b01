// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "siggen-service/docs"
	"siggen-service/internal/app"
	"siggen-service/internal/config"
	"siggen-service/internal/handler"
	"siggen-service/internal/protocol"
	"siggen-service/internal/routes"
	"siggen-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	eventBus *handler.EventBus
	device   *app.Device

	ctx    context.Context
	cancel context.CancelFunc
}

// @title Signal Generator Service API
// @version 1.0.0
// @description Serial control plane for FY-series bench signal generators

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8084
// @BasePath /api/v1
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	application, err := NewApplication(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := application.Start(); err != nil {
		application.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "siggen-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	application := &Application{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := application.initializeDevice(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}

	if err := application.initializeServer(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return application, nil
}

// initializeDevice wires the event bus, registry, discovery and session
func (a *Application) initializeDevice() error {
	a.eventBus = handler.NewEventBus(a.config.Events.BufferSize, a.logger)
	go a.eventBus.Start(a.ctx)

	device, err := app.NewDevice(a.config, protocol.SerialOpener(a.logger), a.eventBus, a.logger)
	if err != nil {
		return err
	}
	a.device = device

	a.logger.Info("Device session initialized successfully",
		zap.String("profile", device.Encoder.Profile().Name),
		zap.Int("baud_rate", a.config.Device.BaudRate),
	)
	return nil
}

// initializeServer sets up HTTP server and routes
func (a *Application) initializeServer() error {
	routerManager := routes.NewRouter(a.config, a.logger, a.device.Session, a.eventBus)
	router := routerManager.SetupRouter(a.ctx)

	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	a.logger.Info("HTTP server initialized",
		zap.String("address", a.config.GetServerAddr()),
		zap.Bool("tls_enabled", a.config.Server.TLS.Enabled),
	)

	return nil
}

// startBackgroundServices runs the startup reconnect
func (a *Application) startBackgroundServices() {
	if !a.config.Device.ReconnectOnStart {
		a.logger.Info("Startup reconnect disabled, simulated port stays selected")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, a.config.Device.OperationTimeout)
		defer cancel()

		result, err := a.device.Session.Reconnect(ctx, a.config.Device.BaudRate)
		if err != nil {
			utils.LogError(a.logger, "Startup reconnect failed", err,
				zap.Int("baud_rate", a.config.Device.BaudRate),
			)
			return
		}
		a.logger.Info("Startup reconnect finished",
			zap.String("port", result.Port),
			zap.String("state", string(result.State)),
			zap.Int("attempts", len(result.Attempts)),
		)
	}()
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (a *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	a.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	a.shutdown()
}

// shutdown performs graceful shutdown
func (a *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(a.logger, "siggen-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}

	// Stops the event bus and WebSocket fan-out
	a.cancel()

	if evicted := a.device.Registry.EvictAll(); len(evicted) > 0 {
		a.logger.Info("Ports closed", zap.Strings("ports", evicted))
	}

	a.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(a.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start serves HTTP until a shutdown signal arrives
func (a *Application) Start() error {
	go func() {
		a.logger.Info("Starting HTTP server",
			zap.String("address", a.server.Addr),
		)

		var err error
		if a.config.Server.TLS.Enabled {
			err = a.server.ListenAndServeTLS(
				a.config.Server.TLS.CertFile,
				a.config.Server.TLS.KeyFile,
			)
		} else {
			err = a.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	a.startBackgroundServices()
	a.waitForShutdown()

	return nil
}
