package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ====================
// Tests for ClientError
// ====================

func TestClientError_Error(t *testing.T) {
	t.Run("with underlying error", func(t *testing.T) {
		err := NewClientError("openai", "chat", "request rejected", errors.New("boom"))
		assert.Equal(t, "[openai.chat] request rejected: boom", err.Error())
	})

	t.Run("without underlying error", func(t *testing.T) {
		err := NewClientError("openai", "chat", "request rejected", nil)
		assert.Equal(t, "[openai.chat] request rejected", err.Error())
	})
}

func TestClientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewClientError("c", "op", "msg", inner)
	assert.Equal(t, inner, errors.Unwrap(err))
}

func TestClientError_Is(t *testing.T) {
	err := NewRetryableError("c", "op", "timeout", ErrTimeout)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrAuthExpired))
}

// ====================
// Tests for classification helpers
// ====================

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRetryableError("c", "op", "msg", nil)))
	assert.False(t, IsRetryable(NewClientError("c", "op", "msg", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))

	// Wrapped retryable errors keep their classification
	wrapped := fmt.Errorf("outer: %w", NewRetryableError("c", "op", "msg", nil))
	assert.True(t, IsRetryable(wrapped))
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(NewAuthError("c", "op", "rejected", nil)))
	assert.True(t, IsAuthError(NewAuthError("c", "op", "rejected", errors.New("401"))))
	assert.False(t, IsAuthError(NewRetryableError("c", "op", "msg", nil)))
	assert.False(t, IsAuthError(nil))
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
		auth      bool
	}{
		{name: "unauthorized", status: 401, retryable: false, auth: true},
		{name: "forbidden", status: 403, retryable: false, auth: true},
		{name: "rate limited", status: 429, retryable: true, auth: false},
		{name: "server error", status: 500, retryable: true, auth: false},
		{name: "bad gateway", status: 502, retryable: true, auth: false},
		{name: "bad request", status: 400, retryable: false, auth: false},
		{name: "not found", status: 404, retryable: false, auth: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromHTTPStatus("openai", "chat", tt.status, errors.New("api error"))
			assert.Equal(t, tt.retryable, IsRetryable(err), "retryable")
			assert.Equal(t, tt.auth, IsAuthError(err), "auth")
		})
	}
}

func TestFromHTTPStatus_RateLimitSentinel(t *testing.T) {
	err := FromHTTPStatus("openai", "embed", 429, errors.New("too many requests"))
	assert.True(t, errors.Is(err, ErrRateLimited))
}
