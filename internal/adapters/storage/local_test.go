package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func stringReader(s string) io.Reader {
	return strings.NewReader(s)
}

func TestNewLocalStorage(t *testing.T) {
	storage := NewLocalStorage("/tmp/test")

	if storage == nil {
		t.Fatal("NewLocalStorage() returned nil")
	}

	if storage.basePath != "/tmp/test" {
		t.Errorf("basePath = %q, want %q", storage.basePath, "/tmp/test")
	}
}

func TestLocalStorageList(t *testing.T) {
	tmpDir := t.TempDir()

	// Create test files
	testFiles := []string{
		"data/2019_full.csv",
		"data/2019_0001___complete",
		"data/2020_full.csv",
		"2021/2021_full.csv",
		"data/.put-123",
	}

	for _, f := range testFiles {
		path := filepath.Join(tmpDir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}

	storage := NewLocalStorage(tmpDir)
	objects, err := storage.List(context.Background(), "data/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	// Hidden temp files and other prefixes are skipped
	if len(objects) != 3 {
		t.Errorf("len(objects) = %d, want 3", len(objects))
	}

	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, "data/") {
			t.Errorf("object %q outside prefix", obj.Key)
		}
		if obj.Size != 4 { // "test" is 4 bytes
			t.Errorf("object %q size = %d, want 4", obj.Key, obj.Size)
		}
		if obj.LastModified == 0 {
			t.Errorf("object %q LastModified should not be 0", obj.Key)
		}
	}
}

func TestLocalStorageListEmpty(t *testing.T) {
	storage := NewLocalStorage(t.TempDir())
	objects, err := storage.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(objects) != 0 {
		t.Errorf("len(objects) = %d, want 0", len(objects))
	}
}

func TestLocalStorageListNonExistent(t *testing.T) {
	storage := NewLocalStorage("/nonexistent/path")
	_, err := storage.List(context.Background(), "")
	if err == nil {
		t.Error("List() should error for non-existent path")
	}
}

func TestLocalStoragePutOverwrites(t *testing.T) {
	tmpDir := t.TempDir()
	storage := NewLocalStorage(tmpDir)
	ctx := context.Background()

	if err := storage.Put(ctx, "data/2020_full.csv", stringReader("v1"), 2); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := storage.Put(ctx, "data/2020_full.csv", stringReader("v2"), 2); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(tmpDir, "data", "2020_full.csv"))
	if err != nil {
		t.Fatalf("failed to read object: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("content = %q, want v2", got)
	}

	entries, _ := os.ReadDir(filepath.Join(tmpDir, "data"))
	if len(entries) != 1 {
		t.Errorf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestLocalStorageDelete(t *testing.T) {
	tmpDir := t.TempDir()
	storage := NewLocalStorage(tmpDir)
	ctx := context.Background()

	if err := storage.Put(ctx, "data/2021_0001___complete", stringReader(""), 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	tests := []struct {
		name string
		key  string
	}{
		{"existing object", "data/2021_0001___complete"},
		{"already deleted", "data/2021_0001___complete"},
		{"never existed", "data/1999_0001___complete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := storage.Delete(ctx, tt.key); err != nil {
				t.Errorf("Delete(%q) error = %v", tt.key, err)
			}
		})
	}

	if _, err := os.Stat(storage.FullPath("data/2021_0001___complete")); !os.IsNotExist(err) {
		t.Error("object should be gone after Delete")
	}
}

func TestLocalStorageFullPath(t *testing.T) {
	storage := NewLocalStorage("/data/bucket")

	got := storage.FullPath("data/2020_full.csv")
	want := filepath.Join("/data/bucket", "data", "2020_full.csv")

	if got != want {
		t.Errorf("FullPath() = %q, want %q", got, want)
	}
}
