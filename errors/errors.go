// Package errors provides the typed error taxonomy shared by every service
// in this repository. Handlers and services never return bare fmt.Errorf
// values across a package boundary; they wrap them with E so the HTTP layer
// and the CLI can render a stable status/message without string matching.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for the purposes of HTTP status mapping and
// retry decisions. Zero value is Other.
type Kind uint8

const (
	Other Kind = iota
	Internal
	Invalid
	NotFound
	Conflict
	Unauthorized
	Permission
	Timeout

	// Session lifecycle kinds.
	AlreadyActive
	JoinTimedOut
	JoinRejected
	DriverTransient
	AudioUnavailable
	EncoderFailure
	NotActive
	ConfigurationError
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case Invalid:
		return "invalid"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Unauthorized:
		return "unauthorized"
	case Permission:
		return "permission"
	case Timeout:
		return "timeout"
	case AlreadyActive:
		return "already_active"
	case JoinTimedOut:
		return "join_timed_out"
	case JoinRejected:
		return "join_rejected"
	case DriverTransient:
		return "driver_transient"
	case AudioUnavailable:
		return "audio_unavailable"
	case EncoderFailure:
		return "encoder_failure"
	case NotActive:
		return "not_active"
	case ConfigurationError:
		return "configuration_error"
	default:
		return "other"
	}
}

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind Kind
	Err  error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error from a kind and an underlying error.
func E(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithMsg attaches a human-readable message, used where the kind alone isn't
// descriptive enough for a caller (e.g. JoinRejected with the platform's own
// rejection reason).
func (e *Error) WithMsg(msg string) *Error {
	e.Msg = msg
	return e
}

// Is lets callers use errors.Is(err, errors.AlreadyActive) style checks by
// comparing Kind, since *Error wraps arbitrary underlying errors.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// ValidationErrors accumulates field-level validation failures, matching the
// apxerrors.ValidationErrs()/.Add()/.Err() shape used throughout the
// configuration and model validation code this package was reconstructed
// from.
type ValidationErrors struct {
	fields map[string]string
	order  []string
}

func ValidationErrs() *ValidationErrors {
	return &ValidationErrors{fields: make(map[string]string)}
}

func (v *ValidationErrors) Add(field, msg string) {
	if _, ok := v.fields[field]; !ok {
		v.order = append(v.order, field)
	}
	v.fields[field] = msg
}

func (v *ValidationErrors) Empty() bool {
	return len(v.fields) == 0
}

func (v *ValidationErrors) Error() string {
	parts := make([]string, 0, len(v.order))
	for _, f := range v.order {
		parts = append(parts, fmt.Sprintf("%s: %s", f, v.fields[f]))
	}
	return strings.Join(parts, "; ")
}

// Err returns nil when no field was added, otherwise an *Error of kind
// Invalid wrapping the accumulated ValidationErrors.
func (v *ValidationErrors) Err() error {
	if v.Empty() {
		return nil
	}
	return E(Invalid, v)
}
