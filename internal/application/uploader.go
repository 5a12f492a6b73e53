package application

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/output"
)

// Upload kinds used for metrics labels.
const (
	kindData   = "data"
	kindMarker = "marker"
)

// Uploader uploads one year at a time: every data variant first, then the
// year's newest local marker, and the marker only if every variant landed.
type Uploader struct {
	archive  output.LocalArchive
	remote   *RemoteStore
	failures output.FailureLog
	metrics  output.MetricsCollector
	logger   *slog.Logger
	required []string
	now      func() time.Time
}

// NewUploader creates an upload engine. required lists variants that must be
// present for a year to be uploaded at all; empty means any non-empty set.
func NewUploader(
	archive output.LocalArchive,
	remote *RemoteStore,
	failures output.FailureLog,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	required []string,
) *Uploader {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &Uploader{
		archive:  archive,
		remote:   remote,
		failures: failures,
		metrics:  metrics,
		logger:   logger,
		required: required,
		now:      time.Now,
	}
}

// UploadYear uploads year's data variants and, when all of them succeed, its
// marker.
//
// A failed data variant fails the year without an error: the failure is
// logged, the remaining variants are still attempted and no marker is
// written. A failed marker upload is logged and also returned, so the caller
// may retry it. A year without a local marker returns an error wrapping
// domain.ErrMissingLocalVersion.
func (u *Uploader) UploadYear(ctx context.Context, year string) (domain.UploadResult, error) {
	start := u.now()
	result := domain.UploadResult{Year: year}
	defer func() {
		u.metrics.IncYearUploads(result.Succeeded)
		u.metrics.ObserveYearDuration(time.Since(start))
	}()

	if err := domain.ValidateYear(year); err != nil {
		return result, err
	}

	marker, err := u.archive.LatestMarker(ctx, year)
	if err != nil {
		return result, err
	}
	result.Marker = marker.Name()
	dataDir := filepath.Dir(u.archive.MarkerPath(marker))

	files, err := u.archive.DataFiles(ctx, year)
	if err != nil {
		return result, &domain.YearError{Year: year, Err: fmt.Errorf("discovering data files: %w", err)}
	}

	if missing := u.missingVariants(files); len(files) == 0 || len(missing) > 0 {
		u.logger.Error("year is missing data variants",
			"year", year,
			"present", len(files),
			"missing", missing,
		)
		ids := []string{dataDir}
		if len(missing) > 0 {
			ids = ids[:0]
			for _, v := range missing {
				ids = append(ids, filepath.Join(dataDir, year+"_"+v+".csv"))
			}
		}
		for _, id := range ids {
			u.recordFailure(ctx, year, id)
			result.FailedCount++
		}
		return result, nil
	}

	u.logger.Info("uploading year", "year", year, "variants", len(files), "marker", marker.Name())

	layout := u.remote.Layout()
	for _, f := range files {
		key := layout.DataKey(year, f.Name)
		u.logger.Info("BEGIN upload data", "year", year, "file", f.Name, "key", key, "size", f.Size)

		if err := u.uploadFile(ctx, f.Path, key); err != nil {
			u.metrics.IncFileUploads(kindData, false)
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			u.logger.Error("data upload failed", "year", year, "file", f.Name, "key", key, "error", err)
			u.recordFailure(ctx, year, f.Path)
			result.FailedCount++
			continue
		}

		u.metrics.IncFileUploads(kindData, true)
		result.UploadedCount++
		u.logger.Info("COMPLETE upload data", "year", year, "file", f.Name)
	}

	if result.FailedCount > 0 {
		u.logger.Warn("skipping marker for incomplete year",
			"year", year,
			"uploaded", result.UploadedCount,
			"failed", result.FailedCount,
		)
		return result, nil
	}

	markerKey := layout.MarkerKey(marker)
	u.logger.Info("BEGIN upload marker", "year", year, "marker", marker.Name(), "key", markerKey)
	if err := u.uploadFile(ctx, u.archive.MarkerPath(marker), markerKey); err != nil {
		u.metrics.IncFileUploads(kindMarker, false)
		if ctx.Err() == nil {
			u.logger.Error("marker upload failed", "year", year, "marker", marker.Name(), "error", err)
			u.recordFailure(ctx, year, marker.Name())
		}
		result.FailedCount++
		return result, &domain.YearError{Year: year, Err: err}
	}

	u.metrics.IncFileUploads(kindMarker, true)
	result.UploadedCount++
	result.Succeeded = true
	u.logger.Info("COMPLETE upload marker", "year", year, "marker", marker.Name())
	return result, nil
}

// uploadFile streams a local file to key.
func (u *Uploader) uploadFile(ctx context.Context, path, key string) error {
	body, size, err := u.archive.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = body.Close() }()

	return u.remote.Put(ctx, key, body, size)
}

// recordFailure appends to the failure log. The write must survive the
// cancellation that may have caused the failure.
func (u *Uploader) recordFailure(ctx context.Context, year, identifier string) {
	f := domain.Failure{Year: year, Identifier: identifier, Time: u.now()}
	if err := u.failures.Record(context.WithoutCancel(ctx), f); err != nil {
		u.logger.Error("failed to record upload failure",
			"year", year,
			"identifier", identifier,
			"error", err,
		)
		return
	}
	u.metrics.IncFailuresRecorded()
}

// missingVariants returns the required variants absent from files.
func (u *Uploader) missingVariants(files []domain.DataFile) []string {
	if len(u.required) == 0 {
		return nil
	}

	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f.Variant] = struct{}{}
	}

	var missing []string
	for _, v := range u.required {
		if _, ok := present[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
