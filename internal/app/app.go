// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jobrunner/archivesync/internal/adapters/archive"
	"github.com/jobrunner/archivesync/internal/adapters/failurelog"
	httpAdapter "github.com/jobrunner/archivesync/internal/adapters/http"
	"github.com/jobrunner/archivesync/internal/adapters/metrics"
	"github.com/jobrunner/archivesync/internal/adapters/storage"
	"github.com/jobrunner/archivesync/internal/adapters/watcher"
	"github.com/jobrunner/archivesync/internal/application"
	"github.com/jobrunner/archivesync/internal/config"
	"github.com/jobrunner/archivesync/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Storage       output.ObjectStorage
	Archive       *archive.Archive
	FailureLog    output.FailureLog
	Reconciler    *application.Reconciler
	SyncService   *application.SyncService
	HealthService *application.HealthService
	HTTPServer    *httpAdapter.Server
	Watcher       *watcher.Watcher
	Metrics       *metrics.Collector
	Registry      *prometheus.Registry
}

// New creates and initializes a new application. The HTTP server, sync
// loop and watcher are built but only started by Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.Metrics = metrics.NewCollector("archivesync", app.Registry)
		metricsCollector = app.Metrics
	}

	// Initialize storage adapter
	store, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = store

	// Initialize failure log
	failures, err := initFailureLog(ctx, cfg.FailureLog)
	if err != nil {
		return nil, fmt.Errorf("initializing failure log: %w", err)
	}
	app.FailureLog = failures

	// Initialize local archive
	app.Archive = archive.New(archive.Config{
		Root:           cfg.Archive.Root,
		VariantPattern: cfg.Archive.VariantPattern,
	}, logger)

	// Initialize reconciliation services
	remote := application.NewRemoteStore(app.Storage, cfg.Archive.KeyLayout(), metricsCollector)
	uploader := application.NewUploader(
		app.Archive,
		remote,
		app.FailureLog,
		metricsCollector,
		logger,
		cfg.Archive.RequiredVariants,
	)
	pruner := application.NewPruner(metricsCollector, logger)
	app.Reconciler = application.NewReconciler(
		app.Archive,
		remote,
		uploader,
		pruner,
		metricsCollector,
		logger,
		application.ReconcilerConfig{
			Workers:        cfg.Sync.Workers,
			MostRecentOnly: cfg.Archive.MostRecentOnly,
			Retry: application.RetryPolicy{
				MaxAttempts: cfg.Sync.Retry.MaxAttempts,
				Delay:       cfg.Sync.Retry.Delay,
				MaxDelay:    cfg.Sync.Retry.MaxDelay,
				Multiplier:  cfg.Sync.Retry.Multiplier,
				Logger:      logger,
			},
		},
	)

	// Initialize sync and health services
	app.SyncService = application.NewSyncService(app.Reconciler, cfg.Sync.Interval, logger)
	app.HealthService = application.NewHealthService(app.SyncService)

	// Initialize HTTP server
	var opts []httpAdapter.Option
	if app.Metrics != nil {
		opts = append(opts, httpAdapter.WithMetrics(
			cfg.Metrics.Path,
			metrics.Handler(app.Registry),
			app.Metrics.Middleware,
		))
	}
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		app.Reconciler,
		app.HealthService,
		app.SyncService,
		logger,
		opts...,
	)

	// Initialize archive watcher
	if cfg.Sync.Watch {
		w, err := watcher.New(
			watcher.Config{Root: cfg.Archive.Root},
			app.handleMarkerEvents,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize archive watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start starts the sync loop, the watcher and the HTTP server. It blocks
// until the server stops.
func (a *App) Start(ctx context.Context) error {
	// Run a pass right away; the archive may have changed while stopped
	a.SyncService.Start(ctx, true)

	// Start archive watcher
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start archive watcher", "error", err)
		}
	}

	err := a.HTTPServer.Start()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	// Stop watcher
	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	// Shutdown HTTP server
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	// Wait for a running pass to finish
	a.SyncService.Stop()

	return a.Close()
}

// Close releases resources held outside of serve mode.
func (a *App) Close() error {
	if c, ok := a.FailureLog.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// handleMarkerEvents schedules a sync when new markers settle.
func (a *App) handleMarkerEvents(_ context.Context, events []watcher.Event) error {
	markers := make([]string, len(events))
	for i, e := range events {
		markers[i] = e.Marker
	}
	a.Logger.Info("new markers in archive", "markers", markers)
	a.SyncService.Notify()
	return nil
}

// initStorage initializes the appropriate storage adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		if err := os.MkdirAll(cfg.LocalPath, 0o755); err != nil {
			return nil, fmt.Errorf("creating local bucket: %w", err)
		}
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PartSize:        cfg.S3.PartSize,
			Concurrency:     cfg.S3.Concurrency,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// initFailureLog initializes the configured failure log backend.
func initFailureLog(ctx context.Context, cfg config.FailureLogConfig) (output.FailureLog, error) {
	switch cfg.Type {
	case "file":
		return failurelog.NewFileLog(cfg.Path), nil
	case "sqlite":
		return failurelog.NewSQLiteLog(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown failure log type: %s", cfg.Type)
	}
}
