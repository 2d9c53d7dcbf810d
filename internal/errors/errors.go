package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an application error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 404
	ErrConflict        ErrorCode = "CONFLICT"         // 409
	ErrRecoveryExpired ErrorCode = "RECOVERY_EXPIRED" // 410
	ErrCancelled       ErrorCode = "CANCELLED"        // 499
	ErrInternal        ErrorCode = "INTERNAL"         // 500
)

// AppError represents a structured error with code, status, and details.
type AppError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing record of the given kind.
func NewNotFound(kind, identifier string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for state conflicts.
func NewConflict(msg string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewSessionNotActive creates a 409 error for writes against a finished session.
func NewSessionNotActive(id, status string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("session %s is not active (status %s)", id, status),
		Details: map[string]any{"session_id": id, "status": status},
	}
}

// NewRecoveryExpired creates a 410 error when a session is past the recovery window.
func NewRecoveryExpired(id string, ageHours float64, windowHours int) *AppError {
	return &AppError{
		Code:    ErrRecoveryExpired,
		Status:  410,
		Message: fmt.Sprintf("session %s started %.1fh ago; recovery window is %dh", id, ageHours, windowHours),
		Details: map[string]any{"session_id": id, "age_hours": ageHours, "window_hours": windowHours},
	}
}

// NewCancelled creates a 499 error when an operation is interrupted by its context.
func NewCancelled(operation string) *AppError {
	return &AppError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AppError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AppError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// As is errors.As from the standard library, re-exported so callers that
// import this package as errors keep access to it.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
