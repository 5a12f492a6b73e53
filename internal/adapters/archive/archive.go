// Package archive provides access to the local yearly data archive.
//
// The archive is laid out as {root}/{year}/data/{filename}. Each year's data
// directory holds the per-station CSVs written by ingestion, the merged
// variants ({year}_full.csv, {year}_missing_lat_long.csv, ...) and one or more
// confirmation markers ({year}_{version}___complete).
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jobrunner/archivesync/internal/domain"
)

// DataDir is the per-year subdirectory holding data files and markers.
const DataDir = "data"

// DefaultVariantPattern matches the merged yearly variants.
const DefaultVariantPattern = "{year}_*.csv"

// readBatch bounds memory while scanning directories holding many thousands
// of station files.
const readBatch = 1024

// Archive implements output.LocalArchive on the local filesystem.
type Archive struct {
	root           string
	variantPattern string
	logger         *slog.Logger
}

// Config holds archive configuration.
type Config struct {
	Root           string
	VariantPattern string // glob with {year} placeholder
}

// New creates an archive rooted at cfg.Root.
func New(cfg Config, logger *slog.Logger) *Archive {
	if cfg.VariantPattern == "" {
		cfg.VariantPattern = DefaultVariantPattern
	}
	return &Archive{
		root:           cfg.Root,
		variantPattern: cfg.VariantPattern,
		logger:         logger,
	}
}

// Name implements output.MarkerStore.
func (a *Archive) Name() string {
	return "local"
}

// Root returns the archive root directory.
func (a *Archive) Root() string {
	return a.root
}

// Years returns the year directories present under the root, sorted.
func (a *Archive) Years(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return nil, fmt.Errorf("reading archive root: %w", err)
	}

	var years []string
	for _, e := range entries {
		if !e.IsDir() || domain.ValidateYear(e.Name()) != nil {
			continue
		}
		years = append(years, e.Name())
	}
	return years, nil
}

// ListMarkers returns the names of all markers across all years.
func (a *Archive) ListMarkers(ctx context.Context) ([]string, error) {
	years, err := a.Years(ctx)
	if err != nil {
		return nil, err
	}

	var markers []string
	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		names, err := a.yearMarkers(year)
		if err != nil {
			return nil, err
		}
		markers = append(markers, names...)
	}
	sort.Strings(markers)
	return markers, nil
}

// MarkersForYear returns the sorted marker names of one year.
func (a *Archive) MarkersForYear(_ context.Context, year string) ([]string, error) {
	if err := domain.ValidateYear(year); err != nil {
		return nil, err
	}
	return a.yearMarkers(year)
}

// LatestMarker returns the newest marker of year.
func (a *Archive) LatestMarker(ctx context.Context, year string) (domain.Marker, error) {
	names, err := a.MarkersForYear(ctx, year)
	if err != nil {
		return domain.Marker{}, err
	}

	latest, ok := domain.LatestMarker(names)
	if !ok {
		return domain.Marker{}, &domain.YearError{Year: year, Err: domain.ErrMissingLocalVersion}
	}
	return domain.ParseMarker(latest)
}

// DataFiles returns the data variants of year matching the variant pattern.
// A year without a data directory has no variants.
func (a *Archive) DataFiles(_ context.Context, year string) ([]domain.DataFile, error) {
	if err := domain.ValidateYear(year); err != nil {
		return nil, err
	}

	pattern := strings.ReplaceAll(a.variantPattern, "{year}", year)
	dir := a.dataDir(year)

	var files []domain.DataFile
	err := scanDir(dir, func(e fs.DirEntry) error {
		name := e.Name()
		if e.IsDir() || domain.IsMarkerName(name) {
			return nil
		}
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return &domain.ConfigError{Field: "archive.variant_pattern", Message: err.Error()}
		}
		if !ok {
			return nil
		}

		info, err := e.Info()
		if err != nil {
			return err
		}
		files = append(files, domain.DataFile{
			Year:    year,
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			Variant: domain.VariantName(year, name),
		})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Open opens a local file for reading and reports its size.
func (a *Archive) Open(_ context.Context, path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path) //#nosec G304 -- path comes from the archive scan
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// MarkerPath returns the local path of a marker.
func (a *Archive) MarkerPath(m domain.Marker) string {
	return filepath.Join(a.dataDir(m.Year), m.Name())
}

// DeleteMarker removes a local marker. A marker that is already gone is
// treated as deleted.
func (a *Archive) DeleteMarker(_ context.Context, name string) error {
	m, err := domain.ParseMarker(name)
	if err != nil {
		return err
	}

	err = os.Remove(a.MarkerPath(m))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("deleting local marker %s: %w", name, err)
}

func (a *Archive) dataDir(year string) string {
	return filepath.Join(a.root, year, DataDir)
}

// yearMarkers scans one year's data directory for markers of that year.
func (a *Archive) yearMarkers(year string) ([]string, error) {
	var names []string
	err := scanDir(a.dataDir(year), func(e fs.DirEntry) error {
		name := e.Name()
		if e.IsDir() || !domain.IsMarkerName(name) {
			return nil
		}
		m, err := domain.ParseMarker(name)
		if err != nil {
			a.logger.Warn("ignoring malformed marker", "year", year, "name", name, "error", err)
			return nil
		}
		if m.Year != year {
			a.logger.Warn("ignoring marker filed under another year", "year", year, "name", name)
			return nil
		}
		names = append(names, name)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning markers of %s: %w", year, err)
	}

	sort.Strings(names)
	return names, nil
}

// scanDir calls fn for every entry of dir, reading it in batches.
func scanDir(dir string, fn func(fs.DirEntry) error) error {
	f, err := os.Open(dir) //#nosec G304 -- dir is derived from the configured root
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for {
		entries, err := f.ReadDir(readBatch)
		for _, e := range entries {
			if ferr := fn(e); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
