package output

import (
	"context"
	"io"

	"github.com/jobrunner/archivesync/internal/domain"
)

// LocalArchive is the local side of reconciliation: the yearly directories
// produced by ingestion, holding data variants and confirmation markers.
type LocalArchive interface {
	MarkerStore

	// LatestMarker returns the newest marker of year. It fails with
	// domain.ErrMissingLocalVersion when the year has none.
	LatestMarker(ctx context.Context, year string) (domain.Marker, error)

	// DataFiles returns the data variants currently present for year.
	DataFiles(ctx context.Context, year string) ([]domain.DataFile, error)

	// Open opens a data file or marker for reading.
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)

	// MarkerPath returns the local path of a marker.
	MarkerPath(m domain.Marker) string
}
