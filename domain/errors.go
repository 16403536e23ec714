package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Expected lifecycle and policy outcomes. Callers distinguish these from
// storage failures with errors.Is; an expired session is deliberately
// indistinguishable from an absent one.
var (
	ErrSessionNotFound        = NewError(ErrCodeNotFound, "session not found")
	ErrSessionExists          = NewError(ErrCodeConflict, "session id already exists")
	ErrInvalidCredentials     = NewError(ErrCodeUnauthorized, "invalid credentials")
	ErrMissingCredential      = NewError(ErrCodeUnauthorized, "authorization required")
	ErrMalformedAuthorization = NewError(ErrCodeUnauthorized, "invalid authorization format, expected: Bearer <token>")
	ErrInsufficientScope      = NewError(ErrCodeForbidden, "insufficient permissions")
	ErrInvalidPayload         = NewError(ErrCodeInvalid, "invalid payload")
	ErrValidatorNotConfigured = NewError(ErrCodeInternal, "credential validator not configured: wire one when constructing the login use case")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}
