// Package failurelog provides durable, append-only failure logs.
package failurelog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/archivesync/internal/domain"
)

// fieldSeparator splits the identifier from the timestamp on each line.
const fieldSeparator = " | "

// FileLog appends one line per failure to a plain-text file:
//
//	/archive/2020/data/2020_full.csv | 2024-05-25T12:00:00Z
//
// The file is created on the first failure and opened in append mode for
// every write, so entries survive restarts and are never rewritten.
type FileLog struct {
	path string
	mu   sync.Mutex
}

// NewFileLog returns a log writing to path.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

// Path returns the log file location.
func (l *FileLog) Path() string {
	return l.path
}

// Record appends f to the log.
func (l *FileLog) Record(_ context.Context, f domain.Failure) error {
	if f.Identifier == "" {
		return fmt.Errorf("%w: failure without identifier", domain.ErrInvalidInput)
	}
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	line := formatLine(f)

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating failure log directory: %w", err)
		}
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //#nosec G304 -- configured log path
	if err != nil {
		return fmt.Errorf("opening failure log: %w", err)
	}

	if _, err := file.WriteString(line); err != nil {
		_ = file.Close()
		return fmt.Errorf("appending to failure log: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("syncing failure log: %w", err)
	}
	return file.Close()
}

// List reads every entry back. A log that was never written holds no entries.
func (l *FileLog) List(_ context.Context) ([]domain.Failure, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening failure log: %w", err)
	}
	defer func() { _ = file.Close() }()

	var failures []domain.Failure
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		f, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("failure log line %d: %w", lineNo, err)
		}
		failures = append(failures, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading failure log: %w", err)
	}
	return failures, nil
}

func formatLine(f domain.Failure) string {
	return f.Identifier + fieldSeparator + f.Time.UTC().Format(time.RFC3339) + "\n"
}

// dataDirName is the per-year archive directory holding data and markers.
const dataDirName = "data"

// parseLine splits on the last separator so identifiers may contain " | ".
func parseLine(line string) (domain.Failure, error) {
	idx := strings.LastIndex(line, fieldSeparator)
	if idx < 0 {
		return domain.Failure{}, fmt.Errorf("%w: missing separator", domain.ErrInvalidInput)
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(line[idx+len(fieldSeparator):]))
	if err != nil {
		return domain.Failure{}, fmt.Errorf("%w: bad timestamp: %v", domain.ErrInvalidInput, err)
	}

	id := line[:idx]
	return domain.Failure{
		Year:       yearOf(id),
		Identifier: id,
		Time:       ts,
	}, nil
}

// yearOf recovers the year from an identifier: a marker name, a path to a
// "{year}_..." file, or a year's ".../{year}/data" directory.
func yearOf(identifier string) string {
	base := filepath.Base(identifier)
	if m, err := domain.ParseMarker(base); err == nil {
		return m.Year
	}
	if len(base) >= 4 && domain.ValidateYear(base[:4]) == nil {
		return base[:4]
	}
	if base == dataDirName {
		if year := filepath.Base(filepath.Dir(identifier)); domain.ValidateYear(year) == nil {
			return year
		}
	}
	return ""
}
