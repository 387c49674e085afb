// Package domainerrors provides coded errors for the ledger domain.
//
// Services return these so transport layers can map failures to responses
// without inspecting error strings. Stores return pkg/platform/sentinel
// errors; services translate them here and attach the detail a caller needs
// to act (offer id, requested vs. available quantity).
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation covers malformed input: non-positive quantities,
	// quantities outside an offer's min/max bounds, self-transfers.
	CodeValidation Code = "validation"

	// CodeBusinessRule covers rejected operations on well-formed input:
	// offer not active, outside its validity window, oversell, invalid
	// status transition.
	CodeBusinessRule Code = "business_rule"

	// CodeNotFound covers missing offers, owners, and share records.
	CodeNotFound Code = "not_found"

	// CodeConflict covers lost concurrency races that the caller should
	// retry after refetching state.
	CodeConflict Code = "conflict"

	// CodeIntegrity covers audit-write failures and serialization
	// conflicts surfacing at commit time.
	CodeIntegrity Code = "integrity"

	// CodeUnavailable covers transient storage failures; retryable as-is.
	CodeUnavailable Code = "unavailable"

	// CodeInternal covers everything that should never happen.
	CodeInternal Code = "internal"
)

// Error is a coded domain error with optional structured detail.
type Error struct {
	Code    Code
	Message string
	Detail  map[string]any
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, wrapped: err}
}

// WithDetail attaches a structured detail field, returning the same error
// for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in the domain.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
