package contacts

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies repository failures.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindNotFound          Kind = "NotFound"
	KindConflict          Kind = "Conflict"
	KindRemoteUnavailable Kind = "RemoteUnavailable"
)

// Error is returned by the repository and its Table implementations.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether a RemoteUnavailable error was caused by a deadline.
func (e *Error) Timeout() bool {
	return e.Kind == KindRemoteUnavailable && errors.Is(e.Err, context.DeadlineExceeded)
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ValidationError returns a KindValidation error.
func ValidationError(format string, args ...any) error {
	return newError(KindValidation, nil, format, args...)
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) error {
	return newError(KindNotFound, nil, format, args...)
}

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) error {
	return newError(KindConflict, nil, format, args...)
}

// RemoteUnavailable wraps a transport or backend failure.
func RemoteUnavailable(err error, format string, args ...any) error {
	return newError(KindRemoteUnavailable, err, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ErrRowMoved is returned by a Table when the addressed row no longer holds
// the expected contact id.
var ErrRowMoved = errors.New("row no longer holds the expected contact")
