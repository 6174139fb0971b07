package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping. Each kind maps to exactly
// one HTTP status in the API layer.
type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Conflict
	Provider
	ProviderTimeout
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Provider:
		return "provider"
	case ProviderTimeout:
		return "provider_timeout"
	case Unavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error carries a kind plus a human-readable message suitable for the
// `detail` field of an error response.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Detail returns the message suitable for the response envelope. Internal
// errors are masked so wrapped causes never leak to clients.
func Detail(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != Internal {
		return ae.Msg
	}
	return "internal server error"
}
