package llm

import (
	"context"
	"time"
)

// Default configuration values
const (
	DefaultTimeout        = 2 * time.Minute
	DefaultMaxTokens      = 4096
	DefaultEmbedBatchSize = 64
)

// ClientConfig contains configuration for an LLM client
type ClientConfig struct {
	// Name is the client identifier (e.g., "openai", "anthropic", "mock")
	Name string

	// BaseURL overrides the provider's default API endpoint
	// (e.g., an OpenAI-compatible gateway or a local inference server)
	BaseURL string

	// APIKey is the API key for authentication
	APIKey string

	// KeySource re-resolves the API key for RefreshCredentials.
	// Typically wired to the config layer's key precedence chain.
	KeySource func() string

	// DefaultModel is the chat model used when the request does not set one
	DefaultModel string

	// EmbeddingModel is the embedding model used when the request does not set one
	EmbeddingModel string

	// EmbeddingDimensions requests reduced-dimension vectors when > 0
	// (only honored by models that support the dimensions parameter)
	EmbeddingDimensions int

	// MaxTokens is the default completion cap when the request does not set one
	MaxTokens int

	// DefaultTimeout is the default request timeout
	DefaultTimeout time.Duration

	// EmbedBatchSize caps how many texts are sent per embeddings call
	EmbedBatchSize int
}

// NewClientConfig creates a new ClientConfig with default values
func NewClientConfig(name string) *ClientConfig {
	return &ClientConfig{
		Name:           name,
		MaxTokens:      DefaultMaxTokens,
		DefaultTimeout: DefaultTimeout,
		EmbedBatchSize: DefaultEmbedBatchSize,
	}
}

// WithBaseURL sets the API endpoint override
func (c *ClientConfig) WithBaseURL(url string) *ClientConfig {
	c.BaseURL = url
	return c
}

// WithAPIKey sets the API key
func (c *ClientConfig) WithAPIKey(key string) *ClientConfig {
	c.APIKey = key
	return c
}

// WithKeySource sets the credential re-resolution function
func (c *ClientConfig) WithKeySource(source func() string) *ClientConfig {
	c.KeySource = source
	return c
}

// WithDefaultModel sets the default chat model
func (c *ClientConfig) WithDefaultModel(model string) *ClientConfig {
	c.DefaultModel = model
	return c
}

// WithEmbeddingModel sets the default embedding model
func (c *ClientConfig) WithEmbeddingModel(model string) *ClientConfig {
	c.EmbeddingModel = model
	return c
}

// WithEmbeddingDimensions sets the requested vector dimension
func (c *ClientConfig) WithEmbeddingDimensions(d int) *ClientConfig {
	c.EmbeddingDimensions = d
	return c
}

// WithMaxTokens sets the default completion cap
func (c *ClientConfig) WithMaxTokens(max int) *ClientConfig {
	c.MaxTokens = max
	return c
}

// WithDefaultTimeout sets the default timeout
func (c *ClientConfig) WithDefaultTimeout(timeout time.Duration) *ClientConfig {
	c.DefaultTimeout = timeout
	return c
}

// WithEmbedBatchSize sets the embeddings batch size
func (c *ClientConfig) WithEmbedBatchSize(size int) *ClientConfig {
	c.EmbedBatchSize = size
	return c
}

// GetTimeout returns the timeout to use, considering request options
func (c *ClientConfig) GetTimeout(req *ChatRequest) time.Duration {
	if req != nil {
		return req.GetTimeout(c.DefaultTimeout)
	}
	return c.DefaultTimeout
}

// GetModel returns the chat model to use, considering request and default
func (c *ClientConfig) GetModel(req *ChatRequest) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	return c.DefaultModel
}

// GetMaxTokens returns the completion cap to use, considering the request
func (c *ClientConfig) GetMaxTokens(req *ChatRequest) int {
	if req != nil && req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return DefaultMaxTokens
}

// GetEmbedBatchSize returns the effective embeddings batch size
func (c *ClientConfig) GetEmbedBatchSize() int {
	if c.EmbedBatchSize > 0 {
		return c.EmbedBatchSize
	}
	return DefaultEmbedBatchSize
}

// ApplyTimeout wraps ctx with the effective timeout unless the caller
// already set an earlier deadline. The returned cancel func is never nil.
func (c *ClientConfig) ApplyTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
