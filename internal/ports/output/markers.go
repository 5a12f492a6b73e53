package output

import "context"

// MarkerStore is a store holding confirmation markers: the local archive or
// the remote bucket. The pruner only needs these two capabilities.
type MarkerStore interface {
	// Name identifies the store in logs and metrics ("local", "remote").
	Name() string

	// ListMarkers returns the filenames of all markers held by the store.
	ListMarkers(ctx context.Context) ([]string, error)

	// DeleteMarker removes a marker by filename. A marker that is already
	// gone is not an error.
	DeleteMarker(ctx context.Context, name string) error
}
