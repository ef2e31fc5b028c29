package domain

import (
	"errors"
	"fmt"
	"time"
)

// TransientUpstreamError marks a retryable upstream failure: timeouts,
// 5xx responses, and 429 rate limiting. RetryAfter is zero when the
// upstream gave no hint.
type TransientUpstreamError struct {
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientUpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient upstream error (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient upstream error: %v", e.Err)
}

func (e *TransientUpstreamError) Unwrap() error { return e.Err }

// PermanentUpstreamError marks a non-retryable upstream failure: auth
// problems and 4xx responses other than 429. Surfaced immediately.
type PermanentUpstreamError struct {
	StatusCode int
	Message    string
}

func (e *PermanentUpstreamError) Error() string {
	return fmt.Sprintf("permanent upstream error (HTTP %d): %s", e.StatusCode, e.Message)
}

// DataIntegrityError marks a single parsed record that failed required-field
// validation. The record is skipped and counted; the page still completes.
type DataIntegrityError struct {
	Field  string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("invalid record: field %s %s", e.Field, e.Reason)
}

// ErrScoreInputMissing signals scoring requested before delta computation.
// Caller misuse, not a runtime fault.
var ErrScoreInputMissing = errors.New("score input missing: no delta record for snapshot")

// ErrSyncInProgress signals that a sync run for the requested date is
// already active. The running worker owns that date's cursor; the caller
// should not start a second stream.
var ErrSyncInProgress = errors.New("sync already in progress for this date")

// SyncFailed reports a per-date sync run that exhausted retries.
// The persisted cursor remains at the last completed page and is resumable.
type SyncFailed struct {
	TargetDate string
	LastPage   int
	Cause      error
}

func (e *SyncFailed) Error() string {
	return fmt.Sprintf("sync failed for %s after page %d: %v", e.TargetDate, e.LastPage, e.Cause)
}

func (e *SyncFailed) Unwrap() error { return e.Cause }

// IsTransient reports whether err is (or wraps) a transient upstream error.
func IsTransient(err error) bool {
	var t *TransientUpstreamError
	return errors.As(err, &t)
}
