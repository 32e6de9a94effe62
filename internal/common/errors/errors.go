// Package errors implements the single error taxonomy used across the
// core: every error surfaced to a caller is either an *AppError or gets
// wrapped into one before it reaches an HTTP or WebSocket boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes, used both internally and in the JSON error body.
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// AppError is the one error type the core ever constructs deliberately.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// BadRequest covers missing/invalid input, invalid cursors and invalid
// enum values.
func BadRequest(message string) *AppError {
	return &AppError{Code: ErrCodeBadRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized covers a required but absent/invalid bearer token.
func Unauthorized(message string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// NotFound covers an unknown work id / agent guid / target id.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// Conflict covers a claim on non-pending work, or a cancel on terminal
// work, when surfaced as a top-level (non-batch) error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// Internal wraps an unhandled error from a handler.
func Internal(message string, err error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// Wrap attaches message context to err, preserving an existing
// AppError's code and status if err already is one.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{Code: ae.Code, Message: message + ": " + ae.Message, HTTPStatus: ae.HTTPStatus, Err: ae.Err}
	}
	return Internal(message, err)
}

// GetHTTPStatus extracts the HTTP status an error should surface as,
// defaulting to 500 for anything that isn't an AppError.
func GetHTTPStatus(err error) int {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetCode extracts the error code, defaulting to ErrCodeInternal.
func GetCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeInternal
}

func IsNotFound(err error) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == ErrCodeNotFound
}

func IsBadRequest(err error) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == ErrCodeBadRequest
}

func IsConflict(err error) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == ErrCodeConflict
}
