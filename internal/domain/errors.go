package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the application.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("resource already exists")
	ErrInvalidInput = errors.New("invalid input")
)

// Error carries a caller-facing message classified by one of the sentinels above.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports input that violates a business rule.
func Validation(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

// NotFound reports a missing conversation, message or user.
func NotFound(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

// Forbidden reports a caller without the authority for the operation.
func Forbidden(format string, args ...any) error {
	return newError(ErrForbidden, format, args...)
}
