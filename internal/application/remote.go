package application

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/input"
	"github.com/jobrunner/archivesync/internal/ports/output"
)

// RemoteStore is the remote side of reconciliation: an object store viewed
// through a key layout. Every call is timed and counted.
type RemoteStore struct {
	storage output.ObjectStorage
	layout  domain.KeyLayout
	metrics output.MetricsCollector
}

// NewRemoteStore creates a remote store.
func NewRemoteStore(storage output.ObjectStorage, layout domain.KeyLayout, metrics output.MetricsCollector) *RemoteStore {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &RemoteStore{
		storage: storage,
		layout:  layout,
		metrics: metrics,
	}
}

// Name implements output.MarkerStore.
func (r *RemoteStore) Name() string {
	return input.StoreRemote
}

// Layout returns the key layout in use.
func (r *RemoteStore) Layout() domain.KeyLayout {
	return r.layout
}

// ListMarkers returns the sorted names of all markers in the bucket.
func (r *RemoteStore) ListMarkers(ctx context.Context) ([]string, error) {
	var objects []output.StorageObject
	err := r.instrument("list", func() error {
		var err error
		objects, err = r.storage.List(ctx, r.layout.ListPrefix())
		return err
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	for _, obj := range objects {
		name, ok := r.layout.MarkerFromKey(obj.Key)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteMarker removes a marker from the bucket.
func (r *RemoteStore) DeleteMarker(ctx context.Context, name string) error {
	m, err := domain.ParseMarker(name)
	if err != nil {
		return err
	}

	err = r.instrument("delete", func() error {
		return r.storage.Delete(ctx, r.layout.MarkerKey(m))
	})
	if errors.Is(err, domain.ErrObjectNotFound) {
		return nil
	}
	return err
}

// Put uploads body to key.
func (r *RemoteStore) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	return r.instrument("put", func() error {
		return r.storage.Put(ctx, key, body, size)
	})
}

func (r *RemoteStore) instrument(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.metrics.ObserveStorageDuration(operation, time.Since(start))
	r.metrics.IncStorageOperations(operation, err == nil)
	return err
}
