package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrClientNotAvailable indicates the client is missing required configuration
	ErrClientNotAvailable = errors.New("client not available")

	// ErrAuthExpired indicates the API rejected the credentials (401/403)
	ErrAuthExpired = errors.New("credentials rejected")

	// ErrEmbeddingNotSupported indicates the provider has no embeddings endpoint
	ErrEmbeddingNotSupported = errors.New("embeddings not supported by this client")

	// ErrRateLimited indicates the provider returned 429
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates the request timed out
	ErrTimeout = errors.New("request timeout")

	// ErrInvalidResponse indicates the response could not be parsed
	ErrInvalidResponse = errors.New("invalid response format")
)

// ClientError represents an error from an LLM client
type ClientError struct {
	// Client is the name of the client that produced the error
	Client string

	// Operation is the operation that failed (e.g., "chat", "embed")
	Operation string

	// Message is the error message
	Message string

	// Err is the underlying error (if any)
	Err error

	// Retryable indicates whether the operation can be retried
	Retryable bool
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s.%s] %s: %v", e.Client, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s.%s] %s", e.Client, e.Operation, e.Message)
}

// Unwrap returns the underlying error
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for ClientError
func (e *ClientError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// NewClientError creates a new non-retryable ClientError
func NewClientError(client, operation, message string, err error) *ClientError {
	return &ClientError{
		Client:    client,
		Operation: operation,
		Message:   message,
		Err:       err,
		Retryable: false,
	}
}

// NewRetryableError creates a new retryable ClientError
func NewRetryableError(client, operation, message string, err error) *ClientError {
	return &ClientError{
		Client:    client,
		Operation: operation,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewAuthError creates a ClientError marking rejected credentials.
// Auth errors are not retryable as-is; callers refresh credentials once
// and retry, then propagate.
func NewAuthError(client, operation, message string, err error) *ClientError {
	if err == nil {
		err = ErrAuthExpired
	} else if !errors.Is(err, ErrAuthExpired) {
		err = fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}
	return &ClientError{
		Client:    client,
		Operation: operation,
		Message:   message,
		Err:       err,
		Retryable: false,
	}
}

// FromHTTPStatus classifies a provider HTTP status into a ClientError:
// 401/403 auth, 429 and 5xx retryable, everything else permanent.
func FromHTTPStatus(client, operation string, status int, err error) *ClientError {
	switch {
	case status == 401 || status == 403:
		return NewAuthError(client, operation, fmt.Sprintf("authentication rejected (status %d)", status), err)
	case status == 429:
		if err == nil {
			err = ErrRateLimited
		} else if !errors.Is(err, ErrRateLimited) {
			err = fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return NewRetryableError(client, operation, "rate limited", err)
	case status >= 500:
		return NewRetryableError(client, operation, fmt.Sprintf("upstream error (status %d)", status), err)
	default:
		return NewClientError(client, operation, fmt.Sprintf("request rejected (status %d)", status), err)
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Retryable
	}
	return false
}

// IsAuthError checks if an error reflects rejected credentials
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}
