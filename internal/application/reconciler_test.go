package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/input"
)

func TestReconciler_ScenarioNewVersion(t *testing.T) {
	archive := newMockArchive().
		addYear("2019", []string{"2019_0001___complete"}, "full").
		addYear("2020", []string{"2020_0003___complete"}, "full", "missing_lat_long")
	storage := newMockStorage("data/2019_0001___complete", "data/2019_full.csv")
	env := newTestEnv(archive, storage, ReconcilerConfig{Workers: 2, Retry: noRetry()})
	ctx := context.Background()

	stale, err := env.recon.ListStaleYears(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stale, []string{"2020"}) {
		t.Fatalf("stale = %v, want [2020]", stale)
	}

	report, err := env.recon.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.YearsSucceeded != 1 || report.YearsFailed != 0 {
		t.Errorf("report = %+v", report)
	}
	for _, key := range []string{"data/2020_full.csv", "data/2020_missing_lat_long.csv", "data/2020_0003___complete"} {
		if !storage.has(key) {
			t.Errorf("missing %s after run", key)
		}
	}

	stale, err = env.recon.ListStaleYears(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Errorf("stale after run = %v", stale)
	}
}

func TestReconciler_ScenarioPruneLocal(t *testing.T) {
	archive := newMockArchive().addYear("2021", []string{"2021_0001___complete", "2021_0002___complete"}, "full")
	env := newTestEnv(archive, newMockStorage(), ReconcilerConfig{Retry: noRetry()})

	n, err := env.recon.PruneMarkers(context.Background(), input.StoreLocal)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if got := archive.markersOf("2021"); !reflect.DeepEqual(got, []string{"2021_0002___complete"}) {
		t.Errorf("local markers = %v", got)
	}
}

func TestReconciler_PruneUnknownStore(t *testing.T) {
	env := newTestEnv(newMockArchive(), newMockStorage(), ReconcilerConfig{Retry: noRetry()})

	if _, err := env.recon.PruneMarkers(context.Background(), "elsewhere"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReconciler_RunPrunesBothStores(t *testing.T) {
	archive := newMockArchive().addYear("2021", []string{"2021_0001___complete", "2021_0002___complete"}, "full")
	storage := newMockStorage("data/2021_0001___complete", "data/2021_full.csv")
	env := newTestEnv(archive, storage, ReconcilerConfig{Retry: noRetry()})

	report, err := env.recon.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.LocalPruned != 1 || report.RemotePruned != 1 {
		t.Errorf("pruned local=%d remote=%d, want 1/1", report.LocalPruned, report.RemotePruned)
	}
	if storage.has("data/2021_0001___complete") || !storage.has("data/2021_0002___complete") {
		t.Errorf("remote keys = %v", storage.keys())
	}
}

func TestReconciler_RunIsIdempotent(t *testing.T) {
	archive := newMockArchive().
		addYear("2019", []string{"2019_0001___complete"}, "full").
		addYear("2020", []string{"2020_0001___complete"}, "full")
	storage := newMockStorage()
	env := newTestEnv(archive, storage, ReconcilerConfig{Workers: 4, Retry: noRetry()})
	ctx := context.Background()

	first, err := env.recon.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	puts := len(storage.putOrder())
	keys := storage.keys()

	report, err := env.recon.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.StaleYears) != 0 || len(report.Results) != 0 {
		t.Errorf("second run should find nothing to do, got %+v", report)
	}
	if first.RunID == "" || first.RunID == report.RunID {
		t.Errorf("run IDs should be set and distinct, got %q and %q", first.RunID, report.RunID)
	}
	if len(storage.putOrder()) != puts {
		t.Error("second run uploaded again")
	}
	if !reflect.DeepEqual(storage.keys(), keys) {
		t.Errorf("bucket changed: %v -> %v", keys, storage.keys())
	}
}

func TestReconciler_PartialFailureStaysStale(t *testing.T) {
	archive := newMockArchive().
		addYear("2019", []string{"2019_0001___complete"}, "full").
		addYear("2020", []string{"2020_0001___complete"}, "full", "missing_lat_long")
	storage := newMockStorage()
	storage.putErr = map[string]error{"data/2020_missing_lat_long.csv": errConnection}
	env := newTestEnv(archive, storage, ReconcilerConfig{Workers: 2, Retry: noRetry()})

	report, err := env.recon.Run(context.Background())
	if err != nil {
		t.Fatalf("per-year failures must not fail the run: %v", err)
	}
	if report.YearsSucceeded != 1 || report.YearsFailed != 1 {
		t.Errorf("succeeded=%d failed=%d, want 1/1", report.YearsSucceeded, report.YearsFailed)
	}
	if report.OK() {
		t.Error("report must not be OK")
	}
	if got := env.failures.identifiers(); len(got) != 1 {
		t.Errorf("failure log = %v, want one entry", got)
	}

	stale, err := env.recon.ListStaleYears(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stale, []string{"2020"}) {
		t.Errorf("stale = %v, want [2020]", stale)
	}
}

func TestReconciler_RetriesMarkerUpload(t *testing.T) {
	archive := newMockArchive().addYear("2020", []string{"2020_0001___complete"}, "full")
	storage := &flakyStorage{mockStorage: newMockStorage(), failKey: "data/2020_0001___complete", failures: 2}
	env := newTestEnv(archive, storage.mockStorage, ReconcilerConfig{
		Retry: RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
	})
	// Swap the storage for the flaky wrapper.
	env.remote.storage = storage

	result, err := env.recon.UploadYear(context.Background(), "2020")
	if err != nil {
		t.Fatalf("UploadYear() error = %v", err)
	}
	if !result.Succeeded || result.Error != "" {
		t.Errorf("result = %+v", result)
	}
	if !storage.has("data/2020_0001___complete") {
		t.Error("marker missing after retry")
	}
	if got := len(env.failures.identifiers()); got != 2 {
		t.Errorf("failure log entries = %d, want 2", got)
	}
}

func TestReconciler_MarkerNeverWithoutData(t *testing.T) {
	archive := newMockArchive()
	for y := 2000; y < 2020; y++ {
		year := fmt.Sprint(y)
		archive.addYear(year, []string{year + "_0001___complete"}, "full", "missing_lat_long")
	}
	base := newMockStorage()
	// Fail one variant for every third year.
	base.putErr = make(map[string]error)
	for y := 2000; y < 2020; y += 3 {
		base.putErr[fmt.Sprintf("data/%d_missing_lat_long.csv", y)] = errConnection
	}
	storage := &orderCheckingStorage{mockStorage: base, t: t}
	env := newTestEnv(archive, base, ReconcilerConfig{Workers: 5, Retry: noRetry()})
	env.remote.storage = storage

	report, err := env.recon.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.YearsFailed != 7 || report.YearsSucceeded != 13 {
		t.Errorf("succeeded=%d failed=%d, want 13/7", report.YearsSucceeded, report.YearsFailed)
	}

	for y := 2000; y < 2020; y += 3 {
		if base.has(fmt.Sprintf("data/%d_0001___complete", y)) {
			t.Errorf("marker of %d written despite failed data", y)
		}
	}
}

func TestReconciler_MostRecentOnly(t *testing.T) {
	archive := newMockArchive().
		addYear("2019", []string{"2019_0001___complete"}, "full").
		addYear("2020", []string{"2020_0001___complete"}, "full")
	env := newTestEnv(archive, newMockStorage(), ReconcilerConfig{MostRecentOnly: true, Retry: noRetry()})

	stale, err := env.recon.ListStaleYears(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stale, []string{"2020"}) {
		t.Errorf("stale = %v, want [2020]", stale)
	}
}

func TestReconciler_RemoteListFailureIsFatal(t *testing.T) {
	archive := newMockArchive().addYear("2020", []string{"2020_0001___complete"}, "full")
	storage := newMockStorage()
	storage.listErr = errConnection
	env := newTestEnv(archive, storage, ReconcilerConfig{Retry: RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}})

	report, err := env.recon.Run(context.Background())
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(report.Results) != 0 {
		t.Error("nothing should be uploaded")
	}
	if storage.listCalls != 2 {
		t.Errorf("list calls = %d, want 2", storage.listCalls)
	}
}

func TestReconciler_RemoteListRecovers(t *testing.T) {
	archive := newMockArchive().addYear("2020", []string{"2020_0001___complete"}, "full")
	storage := newMockStorage()
	storage.listErr = errConnection
	storage.failList = 1
	env := newTestEnv(archive, storage, ReconcilerConfig{Retry: RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}})

	stale, err := env.recon.ListStaleYears(context.Background())
	if err != nil {
		t.Fatalf("ListStaleYears() error = %v", err)
	}
	if !reflect.DeepEqual(stale, []string{"2020"}) {
		t.Errorf("stale = %v", stale)
	}
}

func TestReconciler_MissingLocalVersion(t *testing.T) {
	env := newTestEnv(newMockArchive(), newMockStorage(), ReconcilerConfig{Retry: RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond}})

	result, err := env.recon.UploadYear(context.Background(), "2020")
	if !errors.Is(err, domain.ErrMissingLocalVersion) {
		t.Fatalf("expected ErrMissingLocalVersion, got %v", err)
	}
	if result.Year != "2020" || result.Succeeded || result.Error == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestReconciler_PruneErrorReported(t *testing.T) {
	archive := newMockArchive().addYear("2021", []string{"2021_0001___complete", "2021_0002___complete"}, "full")
	archive.deleteErr = map[string]error{"2021_0001___complete": errPermanent}
	env := newTestEnv(archive, newMockStorage(), ReconcilerConfig{Retry: noRetry()})

	report, err := env.recon.Run(context.Background())
	if err == nil {
		t.Fatal("expected prune error")
	}
	if report.YearsSucceeded != 1 {
		t.Errorf("upload should still succeed, report = %+v", report)
	}
}

func TestReconciler_CanceledSkipsPrune(t *testing.T) {
	archive := newMockArchive().addYear("2021", []string{"2021_0001___complete", "2021_0002___complete"}, "full")
	storage := &blockingStorage{mockStorage: newMockStorage(), started: make(chan struct{})}
	env := newTestEnv(archive, storage.mockStorage, ReconcilerConfig{Retry: noRetry()})
	env.remote.storage = storage

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-storage.started
		cancel()
	}()

	_, err := env.recon.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := archive.markersOf("2021"); len(got) != 2 {
		t.Errorf("local markers pruned despite cancel: %v", got)
	}
}

// flakyStorage fails Put on one key a fixed number of times.
type flakyStorage struct {
	*mockStorage
	mu       sync.Mutex
	failKey  string
	failures int
}

func (f *flakyStorage) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	f.mu.Lock()
	if key == f.failKey && f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errConnection
	}
	f.mu.Unlock()
	return f.mockStorage.Put(ctx, key, body, size)
}

// orderCheckingStorage fails the test when a marker is written before every
// data variant of its year.
type orderCheckingStorage struct {
	*mockStorage
	t *testing.T
}

func (o *orderCheckingStorage) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	if name, ok := domain.LayoutConsolidated.MarkerFromKey(key); ok {
		m, _ := domain.ParseMarker(name)
		for _, v := range []string{"full", "missing_lat_long"} {
			dataKey := domain.LayoutConsolidated.DataKey(m.Year, m.Year+"_"+v+".csv")
			if !o.has(dataKey) {
				o.t.Errorf("marker %s written before %s", key, dataKey)
			}
		}
	}
	return o.mockStorage.Put(ctx, key, body, size)
}

// blockingStorage blocks Put until ctx is canceled.
type blockingStorage struct {
	*mockStorage
	once    sync.Once
	started chan struct{}
}

func (b *blockingStorage) Put(ctx context.Context, _ string, _ io.Reader, _ int64) error {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return ctx.Err()
}
