// Package errors provides custom error types for the application.
// It defines domain-specific errors with error codes for better error handling,
// API responses, and broker retry classification.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

// Error codes for different error categories
const (
	// General errors (1xxx)
	ErrCodeInternal      ErrorCode = "E1000"
	ErrCodeValidation    ErrorCode = "E1001"
	ErrCodeNotFound      ErrorCode = "E1002"
	ErrCodeConflict      ErrorCode = "E1003"
	ErrCodeForbidden     ErrorCode = "E1004"
	ErrCodeUnauthorized  ErrorCode = "E1005"
	ErrCodeCapacity      ErrorCode = "E1006"
	ErrCodeUnprocessable ErrorCode = "E1007"

	// Platform adapter errors (2xxx)
	ErrCodePlatformPayload     ErrorCode = "E2001"
	ErrCodePlatformAuth        ErrorCode = "E2002"
	ErrCodePlatformNotFound    ErrorCode = "E2003"
	ErrCodePlatformSignature   ErrorCode = "E2004"
	ErrCodePlatformUnavailable ErrorCode = "E2005"
	ErrCodePlatformRateLimit   ErrorCode = "E2006"

	// LLM and embedding errors (3xxx)
	ErrCodeLLMUnavailable ErrorCode = "E3001"
	ErrCodeLLMTimeout     ErrorCode = "E3002"
	ErrCodeLLMAuth        ErrorCode = "E3003"
	ErrCodeLLMRateLimit   ErrorCode = "E3004"
	ErrCodeEmbedding      ErrorCode = "E3005"

	// Task and queue errors (4xxx)
	ErrCodeTaskNotFound     ErrorCode = "E4001"
	ErrCodeTaskFailed       ErrorCode = "E4002"
	ErrCodeQueueUnavailable ErrorCode = "E4003"
	ErrCodeTaskTimeout      ErrorCode = "E4004"
	ErrCodeRetryExhausted   ErrorCode = "E4005"
	ErrCodeNonRetryable     ErrorCode = "E4006"

	// Store errors (5xxx)
	ErrCodeDBConnection  ErrorCode = "E5001"
	ErrCodeDBQuery       ErrorCode = "E5002"
	ErrCodeDBMigration   ErrorCode = "E5003"
	ErrCodeRepoIsolation ErrorCode = "E5004"

	// Configuration errors (6xxx)
	ErrCodeConfigNotFound        ErrorCode = "E6001"
	ErrCodeConfigInvalid         ErrorCode = "E6002"
	ErrCodeConfigParse           ErrorCode = "E6003"
	ErrCodeAdminCredentialsEmpty ErrorCode = "E6004"
	ErrCodePasswordComplexity    ErrorCode = "E6005"
	ErrCodeJWTSecretInvalid      ErrorCode = "E6006"
)

// Exit codes for application startup failures
const (
	// ExitCodeConfigValidation indicates configuration validation failure (e.g., empty credentials, weak password)
	ExitCodeConfigValidation = 2
)

// AppError represents an application-level error with code and context
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
	Details any       `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for the error
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound, ErrCodePlatformNotFound, ErrCodeTaskNotFound:
		return http.StatusNotFound
	case ErrCodeValidation, ErrCodePlatformPayload:
		return http.StatusBadRequest
	case ErrCodeUnprocessable:
		return http.StatusUnprocessableEntity
	case ErrCodeUnauthorized, ErrCodePlatformSignature, ErrCodePlatformAuth, ErrCodeLLMAuth:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodePlatformRateLimit, ErrCodeLLMRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeTaskTimeout, ErrCodeLLMTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeCapacity, ErrCodeQueueUnavailable, ErrCodeLLMUnavailable, ErrCodePlatformUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Common error constructors for convenience

// ErrInternal creates an internal server error
func ErrInternal(message string, err error) *AppError {
	return Wrap(ErrCodeInternal, message, err)
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// ErrUnprocessable creates a request-body validation error (422)
func ErrUnprocessable(message string) *AppError {
	return New(ErrCodeUnprocessable, message)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// ErrUnauthorized creates an unauthorized error
func ErrUnauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

// ErrForbidden creates a forbidden error
func ErrForbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

// ErrCapacity creates a capacity error (queue unreachable, no fallback permitted)
func ErrCapacity(message string, err error) *AppError {
	return Wrap(ErrCodeCapacity, message, err)
}

// ErrRepoIsolation creates a data-governance error for cross-repo access attempts.
// This indicates an internal bug; tasks carrying it abort without retry.
func ErrRepoIsolation(message string) *AppError {
	return New(ErrCodeRepoIsolation, message)
}

// nonRetryableCodes short-circuit the broker retry budget. Anything else,
// including plain errors without a code, is treated as transient so that
// at-least-once delivery keeps its bias toward redelivery; the codes below
// are exactly the ones where redelivery can never succeed.
var nonRetryableCodes = map[ErrorCode]bool{
	ErrCodeValidation:      true,
	ErrCodeUnprocessable:   true,
	ErrCodePlatformPayload: true,
	ErrCodeNotFound:        true,
	ErrCodeForbidden:       true,
	ErrCodeRepoIsolation:   true,
	ErrCodeNonRetryable:    true,
	ErrCodeRetryExhausted:  true,
	ErrCodeConfigInvalid:   true,
}

// IsNonRetryable reports whether err carries a permanent error code.
func IsNonRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return nonRetryableCodes[appErr.Code]
	}
	return false
}

// IsTransient reports whether err should propagate to the broker retry layer.
func IsTransient(err error) bool {
	return err != nil && !IsNonRetryable(err)
}

// MarkNonRetryable wraps err so the broker fails the task immediately.
func MarkNonRetryable(err error) *AppError {
	if appErr, ok := AsAppError(err); ok && nonRetryableCodes[appErr.Code] {
		return appErr
	}
	return Wrap(ErrCodeNonRetryable, "non-retryable task failure", err)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError attempts to convert an error to AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
