// Package domainerrors carries coded errors from the registry core to the
// transport layer. Services return *Error values; handlers translate the code
// into an HTTP status without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure for callers. Values are stable and appear on the
// wire as the "error" field of a JSON error response.
type Code string

const (
	CodeInvalidArgument   Code = "invalid_argument"
	CodeBadRequest        Code = "bad_request"
	CodeNotFound          Code = "not_found"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeConflict          Code = "conflict"
	CodeInvalidState      Code = "invalid_state"
	CodeMismatch          Code = "mismatch"
	CodePaymentFailed     Code = "payment_failed"
	CodeNothingToWithdraw Code = "nothing_to_withdraw"
	CodeInternal          Code = "internal"
)

// Error is a coded domain error. Err optionally holds the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost *Error in the chain, or
// CodeInternal when err carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err is a coded error with the given code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// Is is shorthand kept for handler call sites.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
