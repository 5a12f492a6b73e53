package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/output"
)

// Pruner collapses each year's markers in a store down to the newest one.
type Pruner struct {
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewPruner creates a marker pruner.
func NewPruner(metrics output.MetricsCollector, logger *slog.Logger) *Pruner {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &Pruner{metrics: metrics, logger: logger}
}

// PruneMarkers keeps the lexicographically greatest of yearMarkers and
// deletes the rest from store. All markers must belong to the same year.
// A marker that has already disappeared counts as deleted. Deletion errors
// do not stop the remaining deletions; they are returned joined.
func (p *Pruner) PruneMarkers(ctx context.Context, store output.MarkerStore, yearMarkers []string) (int, error) {
	names := dedupe(yearMarkers)
	if len(names) <= 1 {
		return 0, nil
	}

	var year string
	for _, name := range names {
		m, err := domain.ParseMarker(name)
		if err != nil {
			return 0, err
		}
		if year == "" {
			year = m.Year
		} else if m.Year != year {
			return 0, fmt.Errorf("%w: markers of years %s and %s pruned together", domain.ErrInvalidInput, year, m.Year)
		}
	}

	keep := names[len(names)-1]
	pruned := 0
	var errs []error
	for _, name := range names[:len(names)-1] {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := store.DeleteMarker(ctx, name); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			p.logger.Error("failed to delete superseded marker",
				"store", store.Name(),
				"marker", name,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		pruned++
		p.logger.Debug("deleted superseded marker", "store", store.Name(), "marker", name, "kept", keep)
	}

	p.metrics.AddMarkersPruned(store.Name(), pruned)
	return pruned, errors.Join(errs...)
}

// PruneStore lists every marker of store and prunes each year in turn.
func (p *Pruner) PruneStore(ctx context.Context, store output.MarkerStore) (int, error) {
	names, err := store.ListMarkers(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing %s markers: %w", store.Name(), err)
	}

	groups, invalid := domain.GroupMarkersByYear(names)
	for _, name := range invalid {
		p.logger.Warn("ignoring malformed marker", "store", store.Name(), "name", name)
	}

	years := make([]string, 0, len(groups))
	for year := range groups {
		years = append(years, year)
	}
	sort.Strings(years)

	total := 0
	var errs []error
	for _, year := range years {
		n, err := p.PruneMarkers(ctx, store, groups[year])
		total += n
		if err != nil {
			errs = append(errs, &domain.YearError{Year: year, Err: err})
		}
	}

	p.logger.Info("cleaned up superseded markers", "store", store.Name(), "count", total)
	return total, errors.Join(errs...)
}

// dedupe returns a sorted copy of names without duplicates.
func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
