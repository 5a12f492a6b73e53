package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/output"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// noRetry runs every operation exactly once.
func noRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// mockStorage implements output.ObjectStorage in memory.
type mockStorage struct {
	mu      sync.Mutex
	objects map[string]string
	puts    []string // keys in write order

	listErr   error
	listCalls int
	failList  int              // fail the first n List calls with listErr
	putErr    map[string]error // per-key Put failures
	deleteErr map[string]error // per-key Delete failures
}

func newMockStorage(keys ...string) *mockStorage {
	m := &mockStorage{objects: make(map[string]string)}
	for _, k := range keys {
		m.objects[k] = ""
	}
	return m
}

func (m *mockStorage) List(_ context.Context, prefix string) ([]output.StorageObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if m.listErr != nil && (m.failList == 0 || m.listCalls <= m.failList) {
		return nil, m.listErr
	}

	var objects []output.StorageObject
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			objects = append(objects, output.StorageObject{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *mockStorage) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	m.mu.Lock()
	err := m.putErr[key]
	m.mu.Unlock()
	if err != nil {
		return err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = string(data)
	m.puts = append(m.puts, key)
	return nil
}

func (m *mockStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[key]; err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

func (m *mockStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *mockStorage) putOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.puts...)
}

func (m *mockStorage) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mockArchive implements output.LocalArchive in memory. Paths look like
// /archive/{year}/data/{name}.
type mockArchive struct {
	mu      sync.Mutex
	markers map[string][]string // year -> marker names
	data    map[string][]string // year -> data file names

	listErr   error
	dataErr   error
	deleteErr map[string]error
}

func newMockArchive() *mockArchive {
	return &mockArchive{
		markers: make(map[string][]string),
		data:    make(map[string][]string),
	}
}

// addYear registers markers and data variants for a year.
func (m *mockArchive) addYear(year string, markers []string, variants ...string) *mockArchive {
	m.markers[year] = append(m.markers[year], markers...)
	for _, v := range variants {
		m.data[year] = append(m.data[year], year+"_"+v+".csv")
	}
	return m
}

func (m *mockArchive) Name() string { return "local" }

func (m *mockArchive) ListMarkers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var names []string
	for _, ms := range m.markers {
		names = append(names, ms...)
	}
	sort.Strings(names)
	return names, nil
}

func (m *mockArchive) DeleteMarker(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[name]; err != nil {
		return err
	}
	mk, err := domain.ParseMarker(name)
	if err != nil {
		return err
	}
	kept := m.markers[mk.Year][:0]
	for _, n := range m.markers[mk.Year] {
		if n != name {
			kept = append(kept, n)
		}
	}
	m.markers[mk.Year] = kept
	return nil
}

func (m *mockArchive) LatestMarker(_ context.Context, year string) (domain.Marker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := domain.LatestMarker(m.markers[year])
	if !ok {
		return domain.Marker{}, &domain.YearError{Year: year, Err: domain.ErrMissingLocalVersion}
	}
	return domain.ParseMarker(name)
}

func (m *mockArchive) DataFiles(_ context.Context, year string) ([]domain.DataFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dataErr != nil {
		return nil, m.dataErr
	}
	var files []domain.DataFile
	for _, name := range m.data[year] {
		files = append(files, domain.DataFile{
			Year:    year,
			Name:    name,
			Path:    path.Join("/archive", year, "data", name),
			Size:    int64(len(name)),
			Variant: domain.VariantName(year, name),
		})
	}
	return files, nil
}

func (m *mockArchive) Open(_ context.Context, p string) (io.ReadCloser, int64, error) {
	content := "contents of " + path.Base(p)
	return io.NopCloser(strings.NewReader(content)), int64(len(content)), nil
}

func (m *mockArchive) MarkerPath(mk domain.Marker) string {
	return path.Join("/archive", mk.Year, "data", mk.Name())
}

func (m *mockArchive) markersOf(year string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.markers[year]...)
	sort.Strings(out)
	return out
}

// mockFailureLog implements output.FailureLog in memory.
type mockFailureLog struct {
	mu        sync.Mutex
	entries   []domain.Failure
	recordErr error
}

func (m *mockFailureLog) Record(_ context.Context, f domain.Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.entries = append(m.entries, f)
	return nil
}

func (m *mockFailureLog) List(_ context.Context) ([]domain.Failure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Failure(nil), m.entries...), nil
}

func (m *mockFailureLog) identifiers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.entries))
	for i, e := range m.entries {
		ids[i] = e.Identifier
	}
	return ids
}

// mockRunner implements Runner.
type mockRunner struct {
	mu     sync.Mutex
	calls  int
	report domain.RunReport
	err    error
}

func (m *mockRunner) Run(_ context.Context) (domain.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.report, m.err
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var errConnection = fmt.Errorf("%w: connection reset", domain.ErrStorageUnavailable)

// errPermanent is not retryable.
var errPermanent = errors.Join(domain.ErrInvalidInput, errors.New("access denied"))

// testEnv bundles a reconciler over in-memory stores.
type testEnv struct {
	archive  *mockArchive
	storage  *mockStorage
	failures *mockFailureLog
	remote   *RemoteStore
	uploader *Uploader
	recon    *Reconciler
}

func newTestEnv(archive *mockArchive, storage *mockStorage, cfg ReconcilerConfig, required ...string) *testEnv {
	logger := newTestLogger()
	failures := &mockFailureLog{}
	remote := NewRemoteStore(storage, domain.LayoutConsolidated, nil)
	uploader := NewUploader(archive, remote, failures, nil, logger, required)
	recon := NewReconciler(archive, remote, uploader, NewPruner(nil, logger), nil, logger, cfg)
	return &testEnv{
		archive:  archive,
		storage:  storage,
		failures: failures,
		remote:   remote,
		uploader: uploader,
		recon:    recon,
	}
}
