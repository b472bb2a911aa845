// errors.go - Structured error handling for API responses
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/docchat/client/internal/conversation"
	"github.com/docchat/client/internal/orchestrator"
	"github.com/docchat/client/internal/storage"
	"github.com/docchat/client/internal/upload"
	"github.com/labstack/echo/v4"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewRejectedFileError creates a 400 error carrying the user-facing rejection reason
func NewRejectedFileError(reason string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "FILE_REJECTED",
		Message: reason,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewTooLargeError creates a 413 error
func NewTooLargeError(cause error) *APIError {
	return &APIError{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    "TOO_LARGE",
		Message: "file is too large",
		Details: cause.Error(),
	}
}

// NewBadGatewayError creates a 502 error for a failed backend call
func NewBadGatewayError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadGateway,
		Code:    "BACKEND_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// FromIntentError maps an error returned by a conversation intent.
func FromIntentError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rej *upload.RejectionError
	switch {
	case errors.As(err, &rej):
		return NewRejectedFileError(rej.Reason)
	case errors.Is(err, upload.ErrMissingFile):
		return NewRejectedFileError(upload.ReasonNoFile)
	case errors.Is(err, orchestrator.ErrEmptyInput):
		return NewValidationError("question")
	case errors.Is(err, orchestrator.ErrBusy),
		errors.Is(err, upload.ErrUploadInProgress):
		return NewConflictError(err.Error())
	case errors.Is(err, storage.ErrTooLarge):
		return NewTooLargeError(err)
	case errors.Is(err, conversation.ErrClosed):
		return NewServiceUnavailableError(err.Error())
	case errors.Is(err, context.Canceled):
		return NewConflictError(upload.MessageUploadCancelled)
	case errors.Is(err, upload.ErrTransport):
		return NewBadGatewayError(upload.MessageUploadFailed, err)
	default:
		return NewInternalError("An unexpected error occurred", err)
	}
}

// ErrorHandler replaces echo's default error handler.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = FromIntentError(err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(apiErr.Status)
		return
	}
	_ = c.JSON(apiErr.Status, apiErr)
}
