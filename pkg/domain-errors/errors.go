// Package domainerrors provides coded domain errors.
//
// Services return these so transports can map a stable machine-readable code
// to a protocol status without string matching. Stores return
// pkg/platform/sentinel errors instead; services translate at the boundary.
//
// Usage:
//
//	return dErrors.New(dErrors.CodeNotFound, "claim not found")
//	if dErrors.Is(err, dErrors.CodeClaimClosed) { ... }
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	// Generic codes.
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"

	// Approval-engine codes.

	// CodeNoMatchingRule: no active approval rule matches the claim. A
	// configuration gap surfaced to an administrator, never retried.
	CodeNoMatchingRule Code = "no_matching_rule"
	// CodeAlreadyOpen: the claim is not in the submitted state, so it cannot
	// be opened for decisions (again).
	CodeAlreadyOpen Code = "already_open"
	// CodeClaimClosed: the claim has reached a terminal state; the decision
	// was recorded for audit but had no effect. Callers must re-fetch status
	// rather than retry.
	CodeClaimClosed Code = "claim_closed"
	// CodeUnauthorizedApprover: the acting identity may not decide this claim
	// under its rule. Rejected at the boundary, never recorded.
	CodeUnauthorizedApprover Code = "unauthorized_approver"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New constructs a domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs a domain error that preserves the underlying cause for
// errors.Is/errors.As chains and logging.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause to the errors package.
func (e *Error) Unwrap() error { return e.cause }

// Is treats two domain errors with the same code as equivalent so callers can
// use errors.Is against a freshly constructed sentinel value.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal
// for unrecognized errors so transports fail closed.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
