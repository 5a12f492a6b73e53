// Package application contains the application services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/input"
	"github.com/jobrunner/archivesync/internal/ports/output"
)

var _ input.Reconciler = (*Reconciler)(nil)

// ReconcilerConfig holds the reconciler's tunables.
type ReconcilerConfig struct {
	Workers        int  // years uploaded concurrently
	MostRecentOnly bool // only consider the greatest local year
	Retry          RetryPolicy
}

// Reconciler exposes the reconciliation operations to the orchestrator: the
// CLI, the sync service and the HTTP API.
type Reconciler struct {
	archive  output.LocalArchive
	remote   *RemoteStore
	uploader *Uploader
	pruner   *Pruner
	metrics  output.MetricsCollector
	logger   *slog.Logger
	config   ReconcilerConfig
}

// NewReconciler wires the reconciler.
func NewReconciler(
	archive output.LocalArchive,
	remote *RemoteStore,
	uploader *Uploader,
	pruner *Pruner,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg ReconcilerConfig,
) *Reconciler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &Reconciler{
		archive:  archive,
		remote:   remote,
		uploader: uploader,
		pruner:   pruner,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}
}

// ListStaleYears lists both sides and returns the years needing upload.
func (r *Reconciler) ListStaleYears(ctx context.Context) ([]string, error) {
	local, err := r.archive.ListMarkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing local markers: %w", err)
	}

	var remote []string
	err = r.config.Retry.Do(ctx, "list remote markers", func(ctx context.Context) error {
		var err error
		remote, err = r.remote.ListMarkers(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing remote markers: %w", err)
	}

	candidates := local
	if r.config.MostRecentOnly {
		candidates = MostRecentYear(local)
		if len(candidates) > 0 {
			m, _ := domain.ParseMarker(candidates[0])
			r.logger.Info("only checking most recent year", "year", m.Year)
		}
	}

	stale := FindStaleYears(candidates, remote)
	r.metrics.SetStaleYears(len(stale))
	r.logger.Info("compared markers",
		"local", len(local),
		"remote", len(remote),
		"stale_years", len(stale),
	)
	if len(stale) > 0 {
		r.logger.Debug("stale years", "years", stale)
	}
	return stale, nil
}

// UploadYear uploads one year, retrying marker and I/O failures according to
// the retry policy. The returned result carries the error text, if any.
// Each retry runs the whole year again: data variants are re-uploaded and
// every failed attempt adds its own failure-log entry, so one incident can
// leave up to Retry.MaxAttempts entries for the same marker.
func (r *Reconciler) UploadYear(ctx context.Context, year string) (domain.UploadResult, error) {
	var result domain.UploadResult
	err := r.config.Retry.Do(ctx, "upload year "+year, func(ctx context.Context) error {
		var err error
		result, err = r.uploader.UploadYear(ctx, year)
		return err
	})
	if result.Year == "" {
		result.Year = year
	}
	if err != nil {
		result.Succeeded = false
		result.Error = err.Error()
	}

	r.logger.Info("year finished",
		"year", year,
		"success", result.Succeeded,
		"uploaded", result.UploadedCount,
		"failed", result.FailedCount,
	)
	return result, err
}

// PruneMarkers prunes the named store ("local" or "remote").
func (r *Reconciler) PruneMarkers(ctx context.Context, store string) (int, error) {
	var target output.MarkerStore
	switch store {
	case input.StoreLocal:
		target = r.archive
	case input.StoreRemote:
		target = r.remote
	default:
		return 0, fmt.Errorf("%w: unknown store %q", domain.ErrInvalidInput, store)
	}

	var pruned int
	err := r.config.Retry.Do(ctx, "prune "+store+" markers", func(ctx context.Context) error {
		n, err := r.pruner.PruneStore(ctx, target)
		pruned += n
		return err
	})
	return pruned, err
}

// Run performs a full pass. Stale years are uploaded by a bounded pool of
// workers; pruning of both stores starts only once every upload has finished.
// The returned error is non-nil when listing or pruning fails, when ctx is
// canceled, or when a year had no local version to upload. Other per-year
// failures only show up in the report.
func (r *Reconciler) Run(ctx context.Context) (domain.RunReport, error) {
	report := domain.RunReport{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := r.logger.With("run_id", report.RunID)
	logger.Debug("starting reconciliation pass")
	finish := func(err error) (domain.RunReport, error) {
		report.FinishedAt = time.Now()
		r.metrics.SetLastRun(report.FinishedAt, err == nil && report.OK())
		return report, err
	}

	stale, err := r.ListStaleYears(ctx)
	if err != nil {
		return finish(err)
	}
	report.StaleYears = stale

	results := make([]domain.UploadResult, len(stale))
	yearErrs := make([]error, len(stale))

	var g errgroup.Group
	g.SetLimit(r.config.Workers)
	for i, year := range stale {
		g.Go(func() error {
			results[i], yearErrs[i] = r.UploadYear(ctx, year)
			return nil
		})
	}
	_ = g.Wait()

	var fatal []error
	for i, res := range results {
		report.Add(res)
		if errors.Is(yearErrs[i], domain.ErrMissingLocalVersion) {
			fatal = append(fatal, yearErrs[i])
		}
	}

	logger.Info("upload phase complete",
		"succeeded", report.YearsSucceeded,
		"failed", report.YearsFailed,
	)

	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	var pruneErrs []error
	if report.LocalPruned, err = r.PruneMarkers(ctx, input.StoreLocal); err != nil {
		pruneErrs = append(pruneErrs, fmt.Errorf("pruning local markers: %w", err))
	}
	if report.RemotePruned, err = r.PruneMarkers(ctx, input.StoreRemote); err != nil {
		pruneErrs = append(pruneErrs, fmt.Errorf("pruning remote markers: %w", err))
	}

	return finish(errors.Join(append(fatal, pruneErrs...)...))
}
