// Package types provides internal shared types for the scheduler services.
//
// This package contains the error taxonomy and response wrappers shared by
// the planner and dispatcher; it is not exposed to external API consumers.
package types

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode categorizes scheduler errors.
type ErrorCode string

const (
	// Process-level errors (fatal for the containing run)
	ErrorCodeConfig      ErrorCode = "CONFIG_ERROR"
	ErrorCodeMetadata    ErrorCode = "METADATA_ERROR"
	ErrorCodePersistence ErrorCode = "PERSISTENCE_ERROR"

	// Per-function errors (isolated; other functions proceed)
	ErrorCodeExtraction ErrorCode = "EXTRACTION_ERROR"
	ErrorCodeForecast   ErrorCode = "FORECAST_ERROR"
	ErrorCodeRanking    ErrorCode = "RANKING_ERROR"
	ErrorCodeDeploy     ErrorCode = "DEPLOY_ERROR"

	// Dispatcher errors
	ErrorCodeDispatch ErrorCode = "DISPATCH_ERROR"
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"

	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// SchedulerError is a structured error with a taxonomy code and context.
type SchedulerError struct {
	// Code is the specific error code for categorization
	Code ErrorCode `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Details provides additional context about the error
	Details string `json:"details,omitempty"`

	// Cause is the underlying error that caused this error
	Cause error `json:"-"`

	// FunctionID identifies the function the error belongs to, if any
	FunctionID string `json:"function_id,omitempty"`

	// Timestamp is when the error occurred
	Timestamp time.Time `json:"timestamp"`

	// HTTPStatus is the suggested HTTP status code for this error
	HTTPStatus int `json:"-"`
}

// Error implements the error interface.
func (e *SchedulerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *SchedulerError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code.
func (e *SchedulerError) Is(target error) bool {
	if targetErr, ok := target.(*SchedulerError); ok {
		return e.Code == targetErr.Code
	}
	return false
}

// WithCause attaches the underlying error.
func (e *SchedulerError) WithCause(cause error) *SchedulerError {
	e.Cause = cause
	return e
}

// WithDetails adds additional details to this error.
func (e *SchedulerError) WithDetails(details string) *SchedulerError {
	e.Details = details
	return e
}

// WithFunction tags the error with the owning function ID.
func (e *SchedulerError) WithFunction(functionID string) *SchedulerError {
	e.FunctionID = functionID
	return e
}

// NewError creates a new scheduler error.
func NewError(code ErrorCode, message string) *SchedulerError {
	return &SchedulerError{
		Code:       code,
		Message:    message,
		Timestamp:  time.Now(),
		HTTPStatus: defaultHTTPStatus(code),
	}
}

// NewConfigError reports broken or missing static configuration.
func NewConfigError(message string, cause error) *SchedulerError {
	return NewError(ErrorCodeConfig, message).WithCause(cause)
}

// NewMetadataError reports missing or malformed function metadata.
func NewMetadataError(message string, cause error) *SchedulerError {
	return NewError(ErrorCodeMetadata, message).WithCause(cause)
}

// NewExtractionError reports a failed natural-language metadata extraction.
func NewExtractionError(functionID string, cause error) *SchedulerError {
	return NewError(ErrorCodeExtraction, "natural language extraction failed").
		WithFunction(functionID).
		WithCause(cause)
}

// NewForecastError reports a carbon forecast fetch failure.
func NewForecastError(message string, cause error) *SchedulerError {
	return NewError(ErrorCodeForecast, message).WithCause(cause)
}

// NewRankingError reports an invalid LLM ranking response.
func NewRankingError(functionID, details string, cause error) *SchedulerError {
	return NewError(ErrorCodeRanking, "schedule ranking failed").
		WithFunction(functionID).
		WithDetails(details).
		WithCause(cause)
}

// NewPersistenceError reports an object store write failure.
func NewPersistenceError(key string, cause error) *SchedulerError {
	return NewError(ErrorCodePersistence, fmt.Sprintf("object store write failed for %q", key)).
		WithCause(cause)
}

// NewDeployError reports a non-success from the deploy contract.
func NewDeployError(functionID, details string) *SchedulerError {
	return NewError(ErrorCodeDeploy, "deployment failed").
		WithFunction(functionID).
		WithDetails(details)
}

// NewDispatchError reports an invalid dispatch request.
func NewDispatchError(message string) *SchedulerError {
	return NewError(ErrorCodeDispatch, message)
}

// NewNotFoundError reports a missing object or schedule.
func NewNotFoundError(what string) *SchedulerError {
	return NewError(ErrorCodeNotFound, fmt.Sprintf("%s not found", what))
}

func defaultHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrorCodeDispatch:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON error shape returned by both services.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewErrorResponse builds the wire shape for an error.
func NewErrorResponse(err *SchedulerError) ErrorResponse {
	return ErrorResponse{
		Status:  "error",
		Message: err.Message,
		Code:    string(err.Code),
	}
}
