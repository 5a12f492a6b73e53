// Package storage provides object storage adapters.
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/output"
)

// LocalStorage implements ObjectStorage on a local directory, treating the
// directory as a bucket and slash-separated keys as relative paths.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// List returns all files whose key starts with prefix.
func (s *LocalStorage) List(_ context.Context, prefix string) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		objects = append(objects, output.StorageObject{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})

		return nil
	})

	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Key: prefix, Err: err}
	}

	return objects, nil
}

// Put writes body to a temporary file and renames it over the key, so a
// reader never sees a half-written object.
func (s *LocalStorage) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	dest := s.FullPath(key)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &domain.StorageError{Operation: "put", Key: key, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".put-*")
	if err != nil {
		return &domain.StorageError{Operation: "put", Key: key, Err: err}
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return &domain.StorageError{Operation: "put", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.StorageError{Operation: "put", Key: key, Err: err}
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return &domain.StorageError{Operation: "put", Key: key, Err: err}
	}
	return nil
}

// Delete removes the file behind key.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	err := os.Remove(s.FullPath(key))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return &domain.StorageError{Operation: "delete", Key: key, Err: err}
}

// FullPath returns the full path for a key.
func (s *LocalStorage) FullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}
