package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/vertextoedge/download-controller/internal/adapter/filesystem"
	"github.com/vertextoedge/download-controller/internal/adapter/page"
	"github.com/vertextoedge/download-controller/internal/adapter/session"
	"github.com/vertextoedge/download-controller/internal/adapter/sqlite"
	"github.com/vertextoedge/download-controller/internal/config"
	"github.com/vertextoedge/download-controller/internal/domain/event"
	"github.com/vertextoedge/download-controller/internal/logger"
	"github.com/vertextoedge/download-controller/internal/port"
	"github.com/vertextoedge/download-controller/internal/service/controller"
	"github.com/vertextoedge/download-controller/internal/service/maintenance"
	"github.com/vertextoedge/download-controller/internal/service/server"
	"github.com/vertextoedge/download-controller/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults and DLCTL_* env when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Error("application stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	sessionKey := uuid.NewString()
	zapLogger.Info("starting download-controller",
		zap.String("version", version),
		zap.String("session", sessionKey),
		zap.Bool("manager_enabled", cfg.DownloadManager.Enabled),
	)

	// Metrics
	tel, err := telemetry.New(telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// Transfer history (optional)
	var history port.HistoryRepository
	var ping func() error
	if cfg.Database.Path != "" {
		store, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
		}
		defer store.Close()
		history = store
		ping = store.Ping
	}

	// Notification fan-out
	dispatcher := event.NewInMemoryDispatcher(false)
	dispatcher.SetErrorHandler(func(e event.DomainEvent, err error) {
		zapLogger.Warn("event handler failed", zap.String("event", e.EventName()), zap.Error(err))
	})
	metrics := event.NewMetricsHandler()
	telHandler := telemetry.NewEventHandler(tel)
	dispatcher.Subscribe(event.NewLoggingHandler(zapLogger))
	dispatcher.Subscribe(metrics)
	dispatcher.Subscribe(telHandler)
	if history != nil {
		dispatcher.Subscribe(event.NewHistoryHandler(history, sessionKey))
	}

	// Backend selection
	backend := controller.Unavailable()
	var fsManager *filesystem.Manager
	if cfg.DownloadManager.Enabled {
		fsManager, err = filesystem.NewManager(cfg.DownloadManager.DownloadDir)
		if err != nil {
			return fmt.Errorf("failed to create filesystem manager: %w", err)
		}
		factory := session.Factory(&session.Config{
			ConcurrentDownloads:   cfg.DownloadManager.ConcurrentDownloads,
			ProgressInterval:      cfg.DownloadManager.GetProgressInterval(),
			RateLimitKBps:         cfg.DownloadManager.RateLimitKBps,
			ConnectTimeout:        cfg.DownloadManager.GetConnectTimeout(),
			ResponseHeaderTimeout: cfg.DownloadManager.GetResponseHeaderTimeout(),
			UserAgent:             cfg.DownloadManager.UserAgent,
		}, fsManager, zapLogger)
		backend = controller.Active(factory, cfg.Client.ID, cfg.Proxy.Proxy())
	}

	ctrl, err := controller.New(backend, zapLogger,
		controller.WithDispatcher(dispatcher),
		controller.WithUnhandledHook(telHandler.RecordUnhandled),
	)
	if err != nil {
		return fmt.Errorf("failed to create download controller: %w", err)
	}
	defer ctrl.Close()

	// Page host
	var pages server.PageOpener
	if cfg.Page.Enabled {
		nav := page.NewNavigator(&page.Config{
			RenderableTypes: cfg.Page.RenderableTypes,
			MaxPageBytes:    cfg.Page.MaxPageBytes,
			UserAgent:       cfg.DownloadManager.UserAgent,
			HeaderTimeout:   cfg.DownloadManager.GetResponseHeaderTimeout(),
		}, nil, zapLogger)
		defer nav.Close()

		if !ctrl.HandlePage(nav) {
			zapLogger.Warn("page host not fully connected to the download controller")
		}
		pages = nav
	}

	httpServer := server.New(&server.Config{
		BindAddr:          cfg.HTTP.BindAddr,
		DownloadDir:       cfg.DownloadManager.DownloadDir,
		AdminUsername:     cfg.HTTP.AdminUsername,
		AdminPassword:     cfg.HTTP.AdminPassword,
		EnableFileBrowser: cfg.HTTP.EnableFileBrowser,
		ReadTimeout:       cfg.HTTP.GetReadTimeout(),
		WriteTimeout:      cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:       cfg.HTTP.GetIdleTimeout(),
	}, server.Deps{
		Controller: ctrl,
		Pages:      pages,
		History:    history,
		Metrics:    metrics,
		Telemetry:  tel,
		Ping:       ping,
	}, zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	var maintenanceService *maintenance.Service
	if fsManager != nil {
		maintenanceService = maintenance.New(&maintenance.Config{
			CleanupInterval:   cfg.Maintenance.GetCleanupInterval(),
			HistoryRetention:  cfg.Maintenance.GetHistoryRetention(),
			TempFileMaxAge:    cfg.Maintenance.GetTempFileMaxAge(),
			DiskCheckInterval: cfg.Maintenance.GetDiskCheckInterval(),
			DiskWarnPercent:   cfg.Maintenance.DiskWarnPercent,
		}, history, fsManager, zapLogger)

		g.Go(func() error {
			if err := maintenanceService.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("maintenance service failed: %w", err)
			}
			return nil
		})
	}

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("backend", ctrl.Backend()),
		zap.String("download_dir", cfg.DownloadManager.DownloadDir),
	)

	// Shutdown when a signal arrives or any component fails
	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("shutdown signal received, stopping services...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if maintenanceService != nil {
			maintenanceService.Stop()
		}
		if err := httpServer.Stop(shutdownCtx); err != nil {
			zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
		}
		if err := tel.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("failed to shut down telemetry", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	zapLogger.Info("application stopped successfully")
	return nil
}
