// Package errors provides the error taxonomy shared by the conflict engine and its transports
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents semantic error codes for consistent error handling
type ErrorCode string

const (
	// Validation errors
	ErrorCodeValidationError  ErrorCode = "VALIDATION_ERROR"
	ErrorCodeRequiredField    ErrorCode = "REQUIRED_FIELD"
	ErrorCodeInvalidStrategy  ErrorCode = "INVALID_STRATEGY"
	ErrorCodeInvalidTimeRange ErrorCode = "INVALID_TIME_RANGE"

	// Resource errors
	ErrorCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrorCodeInvalidState ErrorCode = "INVALID_STATE"

	// System errors
	ErrorCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeTimeout            ErrorCode = "TIMEOUT"
)

// StandardError represents the unified error structure across all protocols
type StandardError struct {
	ErrorInfo ErrorDetails `json:"error"`
	cause     error
}

// ErrorDetails contains the detailed error information
type ErrorDetails struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Details  interface{} `json:"details,omitempty"`
	Protocol string      `json:"protocol,omitempty"`
	TraceID  string      `json:"trace_id,omitempty"`
}

// ValidationDetail provides specific validation error information
type ValidationDetail struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

// Error implements the Go error interface
func (e *StandardError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.ErrorInfo.Message, e.cause)
	}
	return e.ErrorInfo.Message
}

// Unwrap exposes the underlying cause
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code, so sentinels work with errors.Is
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return e.ErrorInfo.Code == t.ErrorInfo.Code
}

// Code returns the semantic error code
func (e *StandardError) Code() ErrorCode {
	return e.ErrorInfo.Code
}

// NewStandardError creates a new standardized error
func NewStandardError(code ErrorCode, message string, details interface{}) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// NewValidationError creates a validation error with field details
func NewValidationError(field, reason string, value interface{}) *StandardError {
	return NewStandardError(ErrorCodeValidationError,
		fmt.Sprintf("Validation failed for field '%s': %s", field, reason),
		ValidationDetail{Field: field, Reason: reason, Value: value})
}

// NewRequiredFieldError creates an error for missing required fields
func NewRequiredFieldError(field string) *StandardError {
	return NewStandardError(ErrorCodeRequiredField,
		fmt.Sprintf("Required field '%s' is missing", field),
		ValidationDetail{Field: field, Reason: "missing_required_field"})
}

// NewNotFoundError reports a missing resource
func NewNotFoundError(resource, id string) *StandardError {
	return NewStandardError(ErrorCodeNotFound,
		fmt.Sprintf("%s '%s' not found", resource, id),
		map[string]interface{}{"resource": resource, "id": id})
}

// NewInvalidStrategyError reports an unknown resolution strategy
func NewInvalidStrategyError(strategy string) *StandardError {
	return NewStandardError(ErrorCodeInvalidStrategy,
		fmt.Sprintf("unknown resolution strategy '%s'", strategy),
		ValidationDetail{Field: "strategy", Reason: "unknown_strategy", Value: strategy})
}

// NewInvalidTimeRangeError reports an unknown analytics window
func NewInvalidTimeRangeError(timeRange string) *StandardError {
	return NewStandardError(ErrorCodeInvalidTimeRange,
		fmt.Sprintf("unknown time range '%s'", timeRange),
		ValidationDetail{Field: "time_range", Reason: "expected week, month or year", Value: timeRange})
}

// NewInvalidStateError reports an operation that is not allowed in the current state
func NewInvalidStateError(message string) *StandardError {
	return NewStandardError(ErrorCodeInvalidState, message, nil)
}

// NewBackendUnavailableError wraps a storage failure
func NewBackendUnavailableError(operation string, cause error) *StandardError {
	e := NewStandardError(ErrorCodeBackendUnavailable,
		fmt.Sprintf("memory backend unavailable during %s", operation),
		map[string]interface{}{"operation": operation})
	e.cause = cause
	return e
}

// NewInternalError creates an internal server error
func NewInternalError(message string, originalError error) *StandardError {
	details := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if originalError != nil {
		details["original_error"] = originalError.Error()
	}
	e := NewStandardError(ErrorCodeInternalError, message, details)
	e.cause = originalError
	return e
}

// WithTraceID adds a trace ID to the error for debugging
func (e *StandardError) WithTraceID(traceID string) *StandardError {
	e.ErrorInfo.TraceID = traceID
	return e
}

// WithProtocol adds protocol information to the error
func (e *StandardError) WithProtocol(protocolName string) *StandardError {
	e.ErrorInfo.Protocol = protocolName
	return e
}

// ToHTTPStatus maps StandardError to appropriate HTTP status code
func (e *StandardError) ToHTTPStatus() int {
	switch e.ErrorInfo.Code {
	case ErrorCodeValidationError, ErrorCodeRequiredField, ErrorCodeInvalidStrategy, ErrorCodeInvalidTimeRange:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeInvalidState:
		return http.StatusConflict
	case ErrorCodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts StandardError to JSON bytes
func (e *StandardError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WriteHTTPError writes StandardError as HTTP response
func (e *StandardError) WriteHTTPError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if e.ErrorInfo.TraceID != "" {
		w.Header().Set("X-Trace-ID", e.ErrorInfo.TraceID)
	}
	w.WriteHeader(e.ToHTTPStatus())

	jsonBytes, _ := e.ToJSON()
	_, _ = w.Write(jsonBytes)
}

// Sentinels for errors.Is checks
var (
	ErrConflictNotFound   = NewStandardError(ErrorCodeNotFound, "conflict not found", nil)
	ErrInvalidStrategy    = NewStandardError(ErrorCodeInvalidStrategy, "invalid resolution strategy", nil)
	ErrInvalidTimeRange   = NewStandardError(ErrorCodeInvalidTimeRange, "invalid time range", nil)
	ErrInvalidState       = NewStandardError(ErrorCodeInvalidState, "invalid state", nil)
	ErrBackendUnavailable = NewStandardError(ErrorCodeBackendUnavailable, "memory backend unavailable", nil)
)

// AsStandard extracts a StandardError from err's chain
func AsStandard(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HTTPStatus maps any error to an HTTP status code
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if se, ok := AsStandard(err); ok {
		return se.ToHTTPStatus()
	}
	return http.StatusInternalServerError
}

// CodeOf returns the semantic code of err, or INTERNAL_ERROR for foreign errors
func CodeOf(err error) ErrorCode {
	if se, ok := AsStandard(err); ok {
		return se.ErrorInfo.Code
	}
	return ErrorCodeInternalError
}

// IsValidationError checks if the error is a caller input problem
func IsValidationError(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeValidationError, ErrorCodeRequiredField, ErrorCodeInvalidStrategy, ErrorCodeInvalidTimeRange:
		return true
	default:
		return false
	}
}
