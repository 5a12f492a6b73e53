// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"
)

// ObjectStorage defines the secondary port for the remote bucket.
type ObjectStorage interface {
	// List returns every object whose key starts with prefix, following
	// pagination until the listing is exhausted.
	List(ctx context.Context, prefix string) ([]StorageObject, error)

	// Put writes body to key, overwriting any existing object.
	Put(ctx context.Context, key string, body io.Reader, size int64) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// StorageObject represents a file in object storage.
type StorageObject struct {
	Key          string // Object key/path
	Size         int64  // Size in bytes
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeLocal StorageType = "local"
)
