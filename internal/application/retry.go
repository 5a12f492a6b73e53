package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/archivesync/internal/domain"
)

// RetryPolicy re-invokes an idempotent operation until it succeeds, fails
// with a non-retryable error, or runs out of attempts.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	Delay       time.Duration // wait before the second attempt
	MaxDelay    time.Duration // cap for the growing wait; 0 means no cap
	Multiplier  float64       // growth factor per attempt; <= 1 keeps Delay fixed
	Logger      *slog.Logger
}

// DefaultRetryPolicy retries five times with a fixed five-second wait.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Delay:       5 * time.Second,
		MaxDelay:    time.Minute,
		Multiplier:  1,
	}
}

// Do runs fn until it succeeds or the policy gives up, returning the last
// error. Errors for which domain.IsRetryable is false are returned at once.
func (p RetryPolicy) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return fmt.Errorf("%s: %w (last error: %v)", operation, cerr, err)
			}
			return cerr
		}

		err = fn(ctx)
		if err == nil {
			if attempt > 1 && p.Logger != nil {
				p.Logger.Info("retry succeeded", "operation", operation, "attempt", attempt)
			}
			return nil
		}
		if !domain.IsRetryable(err) || ctx.Err() != nil || attempt == attempts {
			break
		}

		wait := p.backoff(attempt)
		if p.Logger != nil {
			p.Logger.Warn("operation failed, retrying",
				"operation", operation,
				"attempt", attempt,
				"max_attempts", attempts,
				"wait", wait,
				"error", err,
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", operation, ctx.Err(), err)
		case <-timer.C:
		}
	}

	return err
}

// backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	wait := p.Delay
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			wait = time.Duration(float64(wait) * p.Multiplier)
			if p.MaxDelay > 0 && wait >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		return p.MaxDelay
	}
	return wait
}
