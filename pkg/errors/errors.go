// Package errors defines the typed failure taxonomy of the index subsystem.
// Every operation either succeeds or returns exactly one of these sentinels,
// optionally wrapped with backend and operation context; nothing is retried
// or swallowed internally.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedPredicate = errors.New("unsupported predicate")
	ErrInvalidRange         = errors.New("invalid slice range")
	ErrBackendUnavailable   = errors.New("index backend unavailable")
	ErrCommitTimeout        = errors.New("transaction commit timed out")
	ErrConfiguration        = errors.New("invalid configuration")
	ErrTransactionClosed    = errors.New("transaction is no longer open")
)

// BackendError wraps a sentinel with the backend and operation that produced
// it, so callers can match with errors.Is while logs keep the failing site.
type BackendError struct {
	Err     error
	Backend string
	Op      string
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %s", e.Backend, e.Op, e.Err.Error())
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Backend, e.Op, e.Err.Error(), e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func New(sentinel error, backend, op, message string) *BackendError {
	return &BackendError{
		Err:     sentinel,
		Backend: backend,
		Op:      op,
		Message: message,
	}
}

func Newf(sentinel error, backend, op, format string, args ...any) *BackendError {
	return &BackendError{
		Err:     sentinel,
		Backend: backend,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Unavailable wraps a transport-level failure as ErrBackendUnavailable,
// keeping the cause in the message. Retry policy belongs to the caller.
func Unavailable(backend, op string, cause error) *BackendError {
	return &BackendError{
		Err:     ErrBackendUnavailable,
		Backend: backend,
		Op:      op,
		Message: cause.Error(),
	}
}
