// Package apperror defines the error taxonomy shared by every layer.
//
// Services return *AppError values that wrap one of the sentinels below.
// Handlers never inspect messages; they map the sentinel to a status code
// with errors.Is and echo AppError.Message back to the caller. Anything that
// is NOT an *AppError (a driver failure, a disk error) is treated as an
// internal store error: logged in full, surfaced as a generic 500.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrProcessing      = errors.New("processing failed")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, never shown to the caller
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound is also returned when the caller does not own the resource.
// Missing and foreign rows produce byte-identical errors so a response never
// reveals that another user's component exists.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Duplicate is a Conflict tied to an input field, for unique values such as
// an account email.
func Duplicate(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// Unauthenticated returns an AppError for a missing or rejected identity.
// HTTP handlers map this to 401 Unauthorized.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// ProcessingFailed wraps a decode/encode failure of an uploaded file.
// The cause is kept for logs; the message shown to clients stays generic.
func ProcessingFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrProcessing,
		Message: "the uploaded file could not be processed as an image",
		Cause:   cause,
	}
}
