// Package retry classifies errors as transient or permanent and runs
// operations with a bounded number of attempts. It backs the checkpoint
// persistence path, where a busy database should not immediately fail a
// suspending workflow.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"
)

// RecoverableError lets an error declare its own retry classification,
// overriding the built-in heuristics.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether an operation that returned err is worth
// attempting again.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var recoverable RecoverableError
	if errors.As(err, &recoverable) {
		return recoverable.IsRecoverable()
	}
	return isRecoverableByType(err)
}

func isRecoverableByType(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, context.Canceled):
		// Cancellation is intentional, don't retry.
		return false
	}

	// Transient storage contention, typically from concurrent SQLite writers.
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"database is locked",
		"database table is locked",
		"busy",
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Do runs fn up to attempts times, sleeping between attempts with linear
// backoff starting at baseDelay. It stops early on success, on a permanent
// error, or when ctx is done.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts || !IsRecoverable(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(attempt) * baseDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string       { return e.err.Error() }
func (e *permanentError) IsRecoverable() bool { return false }
func (e *permanentError) Unwrap() error       { return e.err }

// Permanent marks err as not worth retrying regardless of its message.
func Permanent(err error) error {
	return &permanentError{err: err}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string       { return e.err.Error() }
func (e *transientError) IsRecoverable() bool { return true }
func (e *transientError) Unwrap() error       { return e.err }

// Transient marks err as retryable regardless of its message.
func Transient(err error) error {
	return &transientError{err: err}
}
