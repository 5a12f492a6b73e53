// Package main provides the entry point for the archivesync service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/archivesync/internal/app"
	"github.com/jobrunner/archivesync/internal/config"
	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/input"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	cfgFile      string
	envFile      string
	outputFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "archivesync",
	Short: "archivesync - yearly archive reconciliation",
	Long: `archivesync keeps a remote bucket in step with a local archive of yearly
weather-station CSV files.

Each year directory carries a confirmation marker ({year}_{version}___complete)
once its data is final. A year is uploaded when its newest local marker is
missing remotely: data variants first, then the marker. Superseded markers are
pruned on both sides afterwards.

Storage backends: local directory, AWS S3, Azure Blob Storage.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("archivesync %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full pass: compare, upload stale years, prune markers",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		report, err := a.Reconciler.Run(ctx)
		if rerr := render(os.Stdout, outputFormat, report); rerr != nil {
			return rerr
		}
		if err != nil {
			return err
		}
		if !report.OK() {
			return fmt.Errorf("%d of %d stale years failed", report.YearsFailed, len(report.StaleYears))
		}
		return nil
	}),
}

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List years whose newest local marker is missing remotely",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		years, err := a.Reconciler.ListStaleYears(ctx)
		if err != nil {
			return err
		}
		return render(os.Stdout, outputFormat, staleYears{Years: years})
	}),
}

var uploadCmd = &cobra.Command{
	Use:   "upload <year>...",
	Short: "Upload the given years regardless of remote state",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, years []string) error {
		for _, year := range years {
			if err := domain.ValidateYear(year); err != nil {
				return err
			}
		}

		var report domain.RunReport
		var errs []error
		for _, year := range years {
			res, err := a.Reconciler.UploadYear(ctx, year)
			report.Add(res)
			if err != nil {
				errs = append(errs, err)
			}
			if ctx.Err() != nil {
				break
			}
		}
		if err := render(os.Stdout, outputFormat, report.Results); err != nil {
			return err
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
		if !report.OK() {
			return fmt.Errorf("%d of %d years failed", report.YearsFailed, len(years))
		}
		return nil
	}),
}

var pruneCmd = &cobra.Command{
	Use:       "prune [local|remote|all]",
	Short:     "Delete superseded markers, keeping the newest per year",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{input.StoreLocal, input.StoreRemote, "all"},
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		stores := []string{input.StoreLocal, input.StoreRemote}
		if len(args) == 1 && args[0] != "all" {
			stores = args
		}

		result := pruneResult{}
		var errs []error
		for _, store := range stores {
			n, err := a.Reconciler.PruneMarkers(ctx, store)
			switch store {
			case input.StoreLocal:
				result.Local = n
			case input.StoreRemote:
				result.Remote = n
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("pruning %s markers: %w", store, err))
			}
		}
		if err := render(os.Stdout, outputFormat, result); err != nil {
			return err
		}
		return errors.Join(errs...)
	}),
}

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Show the failure log",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		failures, err := a.FailureLog.List(ctx)
		if err != nil {
			return err
		}
		return render(os.Stdout, outputFormat, failures)
	}),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run passes on a schedule and serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with credentials, ignored when missing")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "report format (text, json, yaml)")
	rootCmd.PersistentFlags().String("archive", "", "local archive root")
	rootCmd.PersistentFlags().String("storage-type", "", "storage type (local, s3, azure)")
	rootCmd.PersistentFlags().Int("workers", 0, "years uploaded concurrently")

	// Run flags
	runCmd.Flags().Bool("most-recent-only", false, "only consider the most recent local year")

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "server host")
	serveCmd.Flags().Int("port", 8080, "server port")
	serveCmd.Flags().Duration("interval", 24*time.Hour, "time between scheduled passes")
	serveCmd.Flags().Bool("watch", false, "run a pass when new markers appear in the archive")
	serveCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("archive.root", rootCmd.PersistentFlags().Lookup("archive"))
	_ = viper.BindPFlag("storage.type", rootCmd.PersistentFlags().Lookup("storage-type"))
	_ = viper.BindPFlag("sync.workers", rootCmd.PersistentFlags().Lookup("workers"))
	_ = viper.BindPFlag("archive.most_recent_only", runCmd.Flags().Lookup("most-recent-only"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("sync.interval", serveCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("sync.watch", serveCmd.Flags().Lookup("watch"))
	_ = viper.BindPFlag("server.cors.allowed_origins", serveCmd.Flags().Lookup("cors"))

	rootCmd.AddCommand(versionCmd, runCmd, staleCmd, uploadCmd, pruneCmd, failuresCmd, serveCmd)
}

func initConfig() {
	loadEnvFile(envFile)
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadEnvFile exports the variables of a dotenv file, such as
// ARCHIVESYNC_STORAGE_S3_SECRET_ACCESS_KEY. Variables already set win.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: loading %s: %v\n", path, err)
	}
}

// withApp loads the configuration, builds the application and runs fn with
// a context canceled on SIGINT or SIGTERM.
func withApp(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		if err := validateOutput(outputFormat); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := setupLogger(cfg.Logging)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("initializing application: %w", err)
		}
		defer func() {
			if err := application.Close(); err != nil {
				logger.Error("closing application", "error", err)
			}
		}()

		return fn(ctx, application, args)
	}
}

// loadConfig loads the configuration. Flags override the config file only
// when set on the command line.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting archivesync",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage_type", cfg.Storage.Type,
		"archive", cfg.Archive.Root,
		"interval", cfg.Sync.Interval,
		"watch", cfg.Sync.Watch,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize application
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address())
		if err := application.Start(ctx); err != nil {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}

	// Stop scheduling; a pass in flight is canceled and its failures logged
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down server")
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	// Logs go to stderr so reports on stdout stay machine-readable
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
