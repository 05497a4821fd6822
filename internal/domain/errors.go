package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyDistribution is returned when statistics are requested over zero
// successful point results.
var ErrEmptyDistribution = errors.New("no successful point results to aggregate")

// ReferenceLookupError reports an identifier the reference data could not
// resolve. The point is dropped before gridding.
type ReferenceLookupError struct {
	ID     string
	Reason string
}

func (e *ReferenceLookupError) Error() string {
	return fmt.Sprintf("reference lookup %q: %s", e.ID, e.Reason)
}

// TransientFetchError is a retryable lookup failure: network error, remote
// 5xx, or rate limiting.
type TransientFetchError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
	// Rejected is set when the call was refused locally, e.g. by an open
	// circuit breaker, and never reached the remote.
	Rejected bool
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient fetch error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient fetch error: %v", e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// PermanentFetchError is a terminal per-cell failure: a non-retryable remote
// error or exhausted retries.
type PermanentFetchError struct {
	Err      error
	Attempts int
}

func (e *PermanentFetchError) Error() string {
	return fmt.Sprintf("permanent fetch error after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *PermanentFetchError) Unwrap() error { return e.Err }

// RunAbortedError is the caller-visible failure of a run that exceeded the
// failure threshold or was cancelled. No report is produced.
type RunAbortedError struct {
	Reason       string
	TotalCells   int
	FailedCells  int
	TotalPoints  int
	FailedPoints int
	Err          error
}

func (e *RunAbortedError) Error() string {
	msg := fmt.Sprintf("run aborted: %s (%d/%d cells failed, %d/%d points failed)",
		e.Reason, e.FailedCells, e.TotalCells, e.FailedPoints, e.TotalPoints)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunAbortedError) Unwrap() error { return e.Err }

// IsTransient reports whether err is, or wraps, a *TransientFetchError.
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsRejected reports whether err is a transient failure that never reached
// the remote.
func IsRejected(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te) && te.Rejected
}
