package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application error with additional context
type AppError struct {
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	ExitCode int         `json:"-"`
	Internal error       `json:"-"`
	Details  interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Common error codes
const (
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodePathSafety = "PATH_SAFETY_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
)

// New creates a new AppError
func New(code, message string, exitCode int) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		ExitCode: exitCode,
	}
}

// Wrap wraps an error with an AppError
func Wrap(err error, code, message string, exitCode int) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		ExitCode: exitCode,
		Internal: err,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// Common error constructors. Every operational error exits 1, which
// overlaps with the CRITICAL verdict exit code; callers that gate on
// exit status cannot tell the two apart.

// Internal creates an internal error for invariant violations that
// should be unreachable
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message, 1)
}

// Validation creates a validation error for malformed input rejected
// before any side effect
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message, 1)
}

// PathSafety creates an error for an identifier that resolves outside
// its expected root
func PathSafety(message string) *AppError {
	return New(ErrCodePathSafety, message, 1)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), 1)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, 1)
}

// ExitCode extracts the process exit code from an error chain,
// defaulting to 1 for unclassified errors
func ExitCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	return 1
}

// IsNotFound reports whether the error chain contains a NOT_FOUND error
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}
