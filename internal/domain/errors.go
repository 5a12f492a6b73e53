package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrInvalidMarker       = fmt.Errorf("marker name: %w", ErrInvalidInput)
	ErrInvalidYear         = fmt.Errorf("year: %w", ErrInvalidInput)
	ErrMissingLocalVersion = fmt.Errorf("local version: %w", ErrNotFound)
	ErrObjectNotFound      = fmt.Errorf("object: %w", ErrNotFound)
	ErrStorageUnavailable  = fmt.Errorf("storage: %w", ErrUnavailable)
	ErrRateLimited         = fmt.Errorf("rate limit exceeded: %w", ErrUnavailable)
)

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (put, delete, list)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// YearError ties a failure to the year whose unit of work produced it.
type YearError struct {
	Year string
	Err  error
}

// Error implements the error interface.
func (e *YearError) Error() string {
	return fmt.Sprintf("year %s: %v", e.Year, e.Err)
}

// Unwrap returns the underlying error.
func (e *YearError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}

// IsRetryable reports whether re-invoking the failed operation may succeed.
// Invalid input and a missing local version are data problems that no retry
// can fix.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrMissingLocalVersion) {
		return false
	}
	return true
}
