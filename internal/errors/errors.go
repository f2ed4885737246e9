// Package errors defines the service error taxonomy shared by services,
// middleware and the HTTP layer. Every error that crosses the HTTP boundary
// is either a *ServiceError or gets wrapped into one.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category.
type Code string

const (
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeInvalidInput Code = "invalid_input"
	CodeConflict     Code = "conflict"
	CodeRateLimited  Code = "rate_limited"
	CodeUnavailable  Code = "unavailable"
	CodeInternal     Code = "internal"
)

// ServiceError carries an error category, an HTTP status and optional details.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value detail and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Unauthorized indicates missing or invalid credentials.
func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// Forbidden indicates the caller is authenticated but not allowed.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// NotFound indicates a missing resource.
func NotFound(message string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// InvalidInput indicates a validation failure.
func InvalidInput(message string) *ServiceError {
	return newError(CodeInvalidInput, http.StatusBadRequest, message, nil)
}

// Conflict indicates a uniqueness or state conflict.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// RateLimitExceeded indicates the caller exceeded a request quota.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil)
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Unavailable indicates a backing dependency could not be reached.
func Unavailable(message string, err error) *ServiceError {
	return newError(CodeUnavailable, http.StatusInternalServerError, message, err)
}

// Internal indicates an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus resolves the HTTP status for any error, defaulting to 500.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
