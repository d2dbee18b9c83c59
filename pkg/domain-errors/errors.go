// Package dErrors defines the domain error taxonomy shared by services,
// stores, and the HTTP layer. Services return these typed errors; the HTTP
// layer translates codes to status responses without inspecting messages.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and retry semantics.
type Code string

const (
	// CodeValidation marks a malformed payload; the request was never
	// partially applied. Lists offending fields in the message.
	CodeValidation Code = "validation"
	// CodeBadRequest marks a structurally invalid request (bad ids, missing
	// envelope fields) detected before domain validation.
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput marks a domain primitive that failed to parse.
	CodeInvalidInput Code = "invalid_input"
	// CodeUnauthorized marks a missing or invalid credential.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks a caller whose scopes do not cover the operation.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks a referenced entity that does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict marks an illegal transition given current state: wrong
	// assignment holder, duplicate transaction id on another record, or an
	// action not legal from the current status.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks a broken domain invariant surfaced by a
	// model constructor or mutation guard.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeTimeout marks a deadline exceeded talking to a collaborator.
	// Always safe to retry with the same transaction id.
	CodeTimeout Code = "timeout"
	// CodeUnavailable marks a collaborator failure (search, configuration,
	// documents). Always safe to retry with the same transaction id.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks an unexpected server-side failure. Details are
	// logged, never returned to clients.
	CodeInternal Code = "internal"
)

// Error is a domain error carrying a code, a client-safe message, and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/errors.As chains.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost domain error code, or CodeInternal when the
// error is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain error message, or an empty string
// when the error is not a domain error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// Is delegates to errors.Is so call sites can keep a single import.
func Is(err, target error) bool { return errors.Is(err, target) }
