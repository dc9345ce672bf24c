package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"-"`
	Internal   error       `json:"-"`
	Details    interface{} `json:"details,omitempty"`
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
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeDatabase           = "DATABASE_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Monitoring pipeline error codes
const (
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeProducer        = "PRODUCER_ERROR"
	ErrCodeStorage         = "STORAGE_ERROR"
	ErrCodeAnomalyModel    = "ANOMALY_MODEL_ERROR"
	ErrCodeNotification    = "NOTIFICATION_ERROR"
	ErrCodeOutOfOrder      = "OUT_OF_ORDER"
	ErrCodeCheckInProgress = "CHECK_IN_PROGRESS"
	ErrCodeInvalidState    = "INVALID_STATE"
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with an AppError
func Wrap(err error, code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// As extracts an AppError from an error chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether any AppError in the chain carries the given code
func IsCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Internal
	}
	return false
}

// Internal creates an internal server error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// ValidationError creates a validation error
func ValidationError(message string, details interface{}) *AppError {
	return New(ErrCodeValidation, message, http.StatusBadRequest).WithDetails(details)
}

// DatabaseError creates a database error
func DatabaseError(message string, err error) *AppError {
	return Wrap(err, ErrCodeDatabase, message, http.StatusInternalServerError)
}

// RateLimited creates a rate limited error
func RateLimited(message string) *AppError {
	return New(ErrCodeRateLimited, message, http.StatusTooManyRequests)
}

// ServiceUnavailable creates a service unavailable error
func ServiceUnavailable(message string) *AppError {
	return New(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// ConfigurationError is returned for monitor configuration that cannot be scheduled
func ConfigurationError(message string, details interface{}) *AppError {
	return New(ErrCodeConfiguration, message, http.StatusBadRequest).WithDetails(details)
}

// ProducerError wraps a failed or timed out analysis producer call
func ProducerError(entity string, err error) *AppError {
	return Wrap(err, ErrCodeProducer,
		fmt.Sprintf("Analysis producer failed for %s", entity),
		http.StatusBadGateway)
}

// StorageError wraps a snapshot read or write failure
func StorageError(message string, err error) *AppError {
	return Wrap(err, ErrCodeStorage, message, http.StatusInternalServerError)
}

// AnomalyModelError describes a metric whose history cannot be modelled
func AnomalyModelError(metric, reason string) *AppError {
	return New(ErrCodeAnomalyModel,
		fmt.Sprintf("Anomaly model skipped for %s: %s", metric, reason),
		http.StatusUnprocessableEntity)
}

// NotificationError wraps a failed delivery on one channel
func NotificationError(channel string, err error) *AppError {
	return Wrap(err, ErrCodeNotification,
		fmt.Sprintf("Failed to notify via %s", channel),
		http.StatusBadGateway)
}

// OutOfOrder rejects a snapshot whose timestamp does not advance
func OutOfOrder(monitorID string) *AppError {
	return New(ErrCodeOutOfOrder,
		fmt.Sprintf("Snapshot for monitor %s is not newer than the last stored snapshot", monitorID),
		http.StatusConflict)
}

// CheckInProgress is returned when a monitor already has an in-flight check
func CheckInProgress(monitorID string) *AppError {
	return New(ErrCodeCheckInProgress,
		fmt.Sprintf("Monitor %s already has a check in progress", monitorID),
		http.StatusConflict)
}

// InvalidState rejects a lifecycle transition
func InvalidState(from, action string) *AppError {
	return New(ErrCodeInvalidState,
		fmt.Sprintf("Cannot %s a monitor in state %s", action, from),
		http.StatusConflict)
}
