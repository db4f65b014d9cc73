// Package llm provides a unified interface for hosted language model APIs.
// It abstracts away the differences between OpenAI-compatible endpoints,
// Anthropic, and the deterministic mock used in tests.
package llm

import (
	"context"
)

// Client defines the interface for LLM API clients.
// Different implementations (OpenAI, Anthropic, Mock) implement this interface.
type Client interface {
	// Name returns the client identifier (e.g., "openai", "anthropic", "mock")
	Name() string

	// Available reports whether the client has enough configuration to make calls
	Available() bool

	// GetConfig returns the client configuration for reading or updating
	GetConfig() *ClientConfig

	// Chat performs a synchronous chat completion and returns the response.
	// Rate limits (429) and upstream errors (5xx) surface as retryable errors;
	// rejected credentials surface as auth errors so callers can refresh once.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Embed produces one vector per input text. Implementations batch large
	// inputs internally. Clients without an embeddings endpoint return an
	// error wrapping ErrEmbeddingNotSupported.
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	// RefreshCredentials re-resolves the API key from the configured source
	// and rebuilds the underlying API client. Called once after an auth error.
	RefreshCredentials() error

	// Close releases any resources held by the client
	Close() error
}

// EmbeddingProvider returns the client name to use for embeddings given the
// configured chat provider. Anthropic has no embeddings endpoint, so chat via
// Anthropic pairs with an OpenAI-compatible embedder.
func EmbeddingProvider(chatProvider string) string {
	switch chatProvider {
	case "mock":
		return "mock"
	default:
		return "openai"
	}
}
