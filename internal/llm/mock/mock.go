// Package mock implements a deterministic LLM Client for testing and
// development. Chat returns a canned review payload and Embed derives a
// reproducible unit vector from each input text, so pipelines can run end
// to end without network access.
package mock

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/reviewhub/reviewhub/internal/llm"
	"github.com/reviewhub/reviewhub/pkg/vectors"
)

// ClientName is the identifier for the Mock client
const ClientName = "mock"

// DefaultDimensions is used when the config does not set a vector dimension
const DefaultDimensions = 1536

func init() {
	// Register the Mock client factory
	llm.Register(ClientName, NewClient)
}

// Client implements the llm.Client interface with deterministic responses.
// Tests can override behavior through ChatFunc and EmbedFunc.
type Client struct {
	*llm.BaseClient

	// ChatFunc, when set, handles Chat calls instead of the canned response
	ChatFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// EmbedFunc, when set, handles Embed calls instead of hash-derived vectors
	EmbedFunc func(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error)
}

// NewClient creates a new Mock client
func NewClient(config *llm.ClientConfig) (llm.Client, error) {
	if config == nil {
		config = llm.NewClientConfig(ClientName)
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "mock-model"
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "mock-embedding"
	}

	return &Client{
		BaseClient: llm.NewBaseClient(config),
	}, nil
}

// Available always returns true for the mock client
func (c *Client) Available() bool {
	return true
}

// Chat returns the canned review payload, or delegates to ChatFunc if set
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if c.ChatFunc != nil {
		return c.ChatFunc(ctx, req)
	}

	prepared, err := c.PrepareChat(req)
	if err != nil {
		return nil, err
	}
	c.LogChatRequest(prepared, "chat")

	content := `{"summary": "Mock review completed; no blocking issues found.", "comments": []}`
	resp := c.BuildChatResponse(content, prepared.Model, prepared.ResponseSchema)
	resp.Usage = &llm.Usage{
		PromptTokens:     len(prepared.Prompt) / 4,
		CompletionTokens: len(content) / 4,
		TotalTokens:      (len(prepared.Prompt) + len(content)) / 4,
	}
	return resp, nil
}

// Embed derives a reproducible unit vector from each text, or delegates to
// EmbedFunc if set. Identical texts always produce identical vectors.
func (c *Client) Embed(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	if c.EmbedFunc != nil {
		return c.EmbedFunc(ctx, req)
	}

	prepared, err := c.ValidateEmbed(req)
	if err != nil {
		return nil, err
	}

	dims := c.GetConfig().EmbeddingDimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	out := make([][]float32, len(prepared.Texts))
	for i, text := range prepared.Texts {
		out[i] = deriveVector(text, dims)
	}

	return &llm.EmbeddingResponse{
		Vectors: out,
		Model:   prepared.Model,
		Usage:   &llm.Usage{},
	}, nil
}

// RefreshCredentials is a no-op for the mock client
func (c *Client) RefreshCredentials() error {
	return nil
}

// Close releases any resources held by the client
func (c *Client) Close() error {
	return nil
}

// deriveVector seeds a PRNG from the text hash and emits a unit vector
func deriveVector(text string, dims int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	v := make([]float32, dims)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return vectors.Normalize(v)
}
