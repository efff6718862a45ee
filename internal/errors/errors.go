// Package errors defines the service error taxonomy shared by the negotiation
// state machines, the storage layer and the HTTP surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class independent of transport.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeOwnershipViolation Code = "OWNERSHIP_VIOLATION"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodeGatewayFailure     Code = "GATEWAY_FAILURE"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal           Code = "INTERNAL"
)

// ServiceError carries an error class, a caller-facing message and the HTTP
// status it maps to.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair for diagnostics and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: cause}
}

// NotFound signals a missing resource.
func NotFound(message string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// Conflict signals a duplicate resource or an already-applied state.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// InvalidTransition signals that the record is in the wrong state for the
// requested action.
func InvalidTransition(message string) *ServiceError {
	return newError(CodeInvalidTransition, http.StatusBadRequest, message, nil)
}

// Unauthorized signals a missing or wrong actor identity.
func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// Forbidden signals an authenticated actor without the required role.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// OwnershipViolation signals a referenced service offering that is not owned
// by the acting participant. Ownership failures abort the whole batch.
func OwnershipViolation(message string) *ServiceError {
	return newError(CodeOwnershipViolation, http.StatusConflict, message, nil)
}

// PreconditionFailed signals missing actor context on a state machine call.
func PreconditionFailed(message string) *ServiceError {
	return newError(CodePreconditionFailed, http.StatusPreconditionFailed, message, nil)
}

// GatewayFailure signals a downstream contract or policy service error. The
// triggering transition is aborted and reported to the caller as a conflict.
func GatewayFailure(message string, cause error) *ServiceError {
	return newError(CodeGatewayFailure, http.StatusConflict, message, cause)
}

// InvalidToken signals an unparseable or expired bearer token.
func InvalidToken(cause error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "Invalid or expired token", cause)
}

// InvalidRequest signals a malformed request body or parameter.
func InvalidRequest(message string) *ServiceError {
	return newError(CodeInvalidRequest, http.StatusBadRequest, message, nil)
}

// RateLimitExceeded signals that the caller exceeded the configured rate.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := newError(CodeRateLimitExceeded, http.StatusTooManyRequests, "Rate limit exceeded", nil)
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Internal signals an unclassified failure.
func Internal(message string, cause error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}

// GetServiceError extracts a ServiceError from an error chain, or nil if the
// chain contains none.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}
