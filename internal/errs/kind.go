// Package errs defines the closed error-kind taxonomy that drives retry and
// propagation decisions across the sync pipeline. Nothing downstream should
// branch on a string message; it branches on Kind.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed enum. Add a case here, not a new string, when a new
// failure mode needs distinct handling.
type Kind int

const (
	Unknown Kind = iota
	RateLimited
	UpstreamUnavailable
	SchemaDrift
	ValidationRejected
	WriteConflict
	Cancelled
	DeadlineExceeded
	ConfigError
	Empty
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "RateLimited"
	case UpstreamUnavailable:
		return "UpstreamUnavailable"
	case SchemaDrift:
		return "SchemaDrift"
	case ValidationRejected:
		return "ValidationRejected"
	case WriteConflict:
		return "WriteConflict"
	case Cancelled:
		return "Cancelled"
	case DeadlineExceeded:
		return "DeadlineExceeded"
	case ConfigError:
		return "ConfigError"
	case Empty:
		return "Empty"
	default:
		return "Unknown"
	}
}

// Error is a tagged error: Kind is what callers switch on, Cause is what
// gets logged.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and Unknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Retryable reports whether the Rate Gate should retry an error of this
// kind. Transport timeouts arrive here as UpstreamUnavailable. SchemaDrift,
// Empty, ValidationRejected, ConfigError and Unknown are not retried:
// retrying them wastes the retry budget on something that will not resolve
// itself. DeadlineExceeded means the call's total budget is already spent,
// so there is nothing left to retry with.
func (k Kind) Retryable() bool {
	switch k {
	case RateLimited, UpstreamUnavailable:
		return true
	default:
		return false
	}
}
