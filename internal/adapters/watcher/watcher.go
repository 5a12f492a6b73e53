// Package watcher watches the local archive for new confirmation markers.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jobrunner/archivesync/internal/domain"
)

// dataDirName is the per-year subdirectory holding data and markers.
const dataDirName = "data"

// Event is a marker that appeared or changed.
type Event struct {
	Path      string
	Marker    string
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler receives the markers that settled during one quiet period.
type Handler func(ctx context.Context, events []Event) error

// pendingEvent holds a debounced event with its operation.
type pendingEvent struct {
	timestamp time.Time
	op        Operation
}

// Watcher watches the archive root and every {year}/data directory below it.
// Marker deletions are ignored: they come from pruning, not ingestion.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	root      string
	debounce  time.Duration
	mu        sync.Mutex
	pending   map[string]*pendingEvent
	watched   map[string]struct{}
	done      chan struct{}
	wg        sync.WaitGroup
}

// Config holds watcher configuration.
type Config struct {
	Root     string
	Debounce time.Duration
}

// New creates a new archive watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, errors.New("watcher: archive root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce == 0 {
		cfg.Debounce = 2 * time.Second
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		root:      root,
		debounce:  cfg.Debounce,
		pending:   make(map[string]*pendingEvent),
		watched:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start watches the root and the existing year data directories.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addPath(w.root); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && domain.ValidateYear(e.Name()) == nil {
			w.watchYear(filepath.Join(w.root, e.Name()))
		}
	}

	w.wg.Add(2)

	// Start event loop
	go w.eventLoop(ctx)

	// Start debounce processor
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher. It returns once both loops have exited, so a
// handler call in progress has finished.
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

// WatchedPaths returns the directories currently watched, sorted.
func (w *Watcher) WatchedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.watched))
	for p := range w.watched {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// watchYear watches a year directory and, when present, its data directory.
// The year directory itself is watched so a later "data" mkdir is noticed.
func (w *Watcher) watchYear(yearDir string) {
	if err := w.addPath(yearDir); err != nil {
		w.logger.Warn("failed to watch year directory", "path", yearDir, "error", err)
		return
	}
	dataDir := filepath.Join(yearDir, dataDirName)
	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		if err := w.addPath(dataDir); err != nil {
			w.logger.Warn("failed to watch data directory", "path", dataDir, "error", err)
			return
		}
		w.enqueueExisting(dataDir)
	}
}

// enqueueExisting queues markers already present in a newly watched data
// directory; they may have been written before the watch was in place.
func (w *Watcher) enqueueExisting(dataDir string) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() && domain.IsMarkerName(e.Name()) {
			w.enqueue(filepath.Join(dataDir, e.Name()), OpCreate)
		}
	}
}

func (w *Watcher) addPath(path string) error {
	w.mu.Lock()
	_, ok := w.watched[path]
	w.mu.Unlock()
	if ok {
		return nil
	}

	if err := w.fsWatcher.Add(path); err != nil {
		return err
	}

	w.mu.Lock()
	w.watched[path] = struct{}{}
	w.mu.Unlock()
	w.logger.Debug("watching directory", "path", path)
	return nil
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, path)
}

// eventLoop processes fsnotify events.
func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent processes a single fsnotify event.
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	op := fsnotifyOpToOperation(event.Op)
	dir, name := filepath.Split(event.Name)
	dir = filepath.Clean(dir)

	if op == OpDelete {
		w.forget(event.Name)
	}

	switch {
	case dir == w.root && op == OpCreate && domain.ValidateYear(name) == nil:
		if isDir(event.Name) {
			w.watchYear(event.Name)
		}
		return
	case name == dataDirName && op == OpCreate && filepath.Dir(dir) == w.root:
		if isDir(event.Name) {
			if err := w.addPath(event.Name); err != nil {
				w.logger.Warn("failed to watch data directory", "path", event.Name, "error", err)
				return
			}
			w.enqueueExisting(event.Name)
		}
		return
	}

	if !isMarkerFile(event.Name) || op == OpDelete {
		return
	}

	w.logger.Debug("marker event", "path", event.Name, "op", event.Op.String())
	w.enqueue(event.Name, op)
}

// enqueue adds an event to the pending set for debouncing.
func (w *Watcher) enqueue(path string, op Operation) {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, exists := w.pending[path]
	if !exists {
		w.pending[path] = &pendingEvent{
			timestamp: time.Now(),
			op:        op,
		}
		return
	}

	existing.timestamp = time.Now()
	if op == OpCreate {
		existing.op = OpCreate
	}
}

// debounceLoop processes debounced events.
func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// processPending delivers the pending markers once none has changed for the
// debounce period. Ingestion writes a year's files in a burst; one batch per
// burst yields one sync.
func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	now := time.Now()
	for _, pending := range w.pending {
		if now.Sub(pending.timestamp) < w.debounce {
			w.mu.Unlock()
			return
		}
	}

	events := make([]Event, 0, len(w.pending))
	for path, pending := range w.pending {
		events = append(events, Event{
			Path:      path,
			Marker:    filepath.Base(path),
			Operation: pending.op,
		})
	}
	w.pending = make(map[string]*pendingEvent)
	w.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	w.logger.Info("markers settled", "count", len(events))

	if err := w.handler(ctx, events); err != nil {
		w.logger.Error("handler error", "markers", len(events), "error", err)
	}
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove):
		return OpDelete
	case op.Has(fsnotify.Rename):
		// Rename is treated as delete (the file is gone from original location)
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		// Write, Chmod, etc. are treated as modify
		return OpModify
	}
}

// isMarkerFile reports whether path names a well-formed marker inside a
// year's data directory.
func isMarkerFile(path string) bool {
	name := filepath.Base(path)
	m, err := domain.ParseMarker(name)
	if err != nil {
		return false
	}
	dataDir := filepath.Dir(path)
	return filepath.Base(dataDir) == dataDirName && filepath.Base(filepath.Dir(dataDir)) == m.Year
}

func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().Type() == fs.ModeDir
}
