package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates the build configuration failed
	// eager validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRateLimited indicates the embedding provider rejected a call
	// because the request rate was exceeded. Retryable.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates a transient provider failure. Retryable.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrInvalidRequest indicates the provider rejected the input
	// itself. Not retryable; surfaced per segment.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrVersionConflict indicates a database version already exists or
	// another writer holds its lock. Fatal to the build.
	ErrVersionConflict = errors.New("version conflict")

	// ErrBuildInProgress indicates a build is already running.
	ErrBuildInProgress = errors.New("build in progress")

	// ErrModelMismatch indicates embedding records from more than one
	// model version were offered to a single build.
	ErrModelMismatch = errors.New("embedding model mismatch")
)

// CorpusFormatError reports a source document that does not match the
// expected archive schema. Fatal to the document, not to the run,
// unless Structural is set (unreadable root, empty archive).
type CorpusFormatError struct {
	Path       string
	Reason     string
	Structural bool
}

func (e *CorpusFormatError) Error() string {
	return fmt.Sprintf("corpus format: %s: %s", e.Path, e.Reason)
}

// RateLimitError wraps ErrRateLimited with the provider's suggested
// wait, when one was carried on the response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// Unwrap makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// IncompletePartError reports a part excluded from a build because one
// or more of its segments have no embedding record.
type IncompletePartError struct {
	PartID  string
	Missing []int
}

func (e *IncompletePartError) Error() string {
	return fmt.Sprintf("part %s incomplete: %d segment(s) missing embeddings", e.PartID, len(e.Missing))
}
