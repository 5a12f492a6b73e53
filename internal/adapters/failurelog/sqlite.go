package failurelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/jobrunner/archivesync/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS upload_failures (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	year        TEXT NOT NULL,
	identifier  TEXT NOT NULL,
	failed_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upload_failures_year ON upload_failures(year);
`

// SQLiteLog keeps failures in an append-only sqlite table. It only ever
// inserts; rows are read back in insertion order.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog opens (or creates) the database at path.
func NewSQLiteLog(ctx context.Context, path string) (*SQLiteLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating failure log directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening failure database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating failure schema: %w", err)
	}

	return &SQLiteLog{db: db}, nil
}

// Record inserts f.
func (l *SQLiteLog) Record(ctx context.Context, f domain.Failure) error {
	if f.Identifier == "" {
		return fmt.Errorf("%w: failure without identifier", domain.ErrInvalidInput)
	}
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	if f.Year == "" {
		f.Year = yearOf(f.Identifier)
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO upload_failures (year, identifier, failed_at) VALUES (?, ?, ?)`,
		f.Year, f.Identifier, f.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording failure: %w", err)
	}
	return nil
}

// List returns every recorded failure in insertion order.
func (l *SQLiteLog) List(ctx context.Context) ([]domain.Failure, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT year, identifier, failed_at FROM upload_failures ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var failures []domain.Failure
	for rows.Next() {
		var f domain.Failure
		var ts string
		if err := rows.Scan(&f.Year, &f.Identifier, &ts); err != nil {
			return nil, fmt.Errorf("scanning failure: %w", err)
		}
		if f.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing failure time: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// Close closes the database.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}
