package output

import (
	"context"

	"github.com/jobrunner/archivesync/internal/domain"
)

// FailureLog is an append-only durable record of upload failures.
type FailureLog interface {
	// Record appends one failure. Implementations must accept concurrent
	// callers and never rewrite earlier entries.
	Record(ctx context.Context, f domain.Failure) error

	// List returns all recorded failures in append order. It exists for
	// post-mortem inspection only.
	List(ctx context.Context) ([]domain.Failure, error)
}
