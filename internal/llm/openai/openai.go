// Package openai implements the LLM Client interface over the OpenAI API
// and any OpenAI-compatible endpoint (set ClientConfig.BaseURL). It serves
// both chat completions and the embeddings used by the knowledge pipeline.
package openai

import (
	"context"
	"errors"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/reviewhub/reviewhub/internal/llm"
)

// ClientName is the identifier for the OpenAI client
const ClientName = "openai"

func init() {
	// Register the OpenAI client factory
	llm.Register(ClientName, NewClient)
}

// Client implements the llm.Client interface for OpenAI-compatible APIs
type Client struct {
	*llm.BaseClient

	mu  sync.RWMutex
	api *goopenai.Client
}

// NewClient creates a new OpenAI client
func NewClient(config *llm.ClientConfig) (llm.Client, error) {
	if config == nil {
		config = llm.NewClientConfig(ClientName)
	}

	return &Client{
		BaseClient: llm.NewBaseClient(config),
		api:        newAPIClient(config.APIKey, config.BaseURL),
	}, nil
}

// newAPIClient builds the SDK client, honoring a BaseURL override
func newAPIClient(apiKey, baseURL string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return goopenai.NewClientWithConfig(cfg)
}

// Available reports whether the client can reach an endpoint.
// A custom BaseURL counts: local OpenAI-compatible servers accept any key.
func (c *Client) Available() bool {
	cfg := c.GetConfig()
	return cfg.APIKey != "" || cfg.BaseURL != ""
}

// Chat performs a chat completion
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()

	prepared, err := c.PrepareChat(req)
	if err != nil {
		return nil, err
	}
	c.LogChatRequest(prepared, "chat")

	callCtx, cancel := c.GetConfig().ApplyTimeout(ctx, c.GetConfig().GetTimeout(prepared))
	defer cancel()

	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if prepared.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: prepared.System,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: prepared.Prompt,
	})

	apiResp, err := c.apiClient().CreateChatCompletion(callCtx, goopenai.ChatCompletionRequest{
		Model:       prepared.Model,
		Messages:    messages,
		MaxTokens:   prepared.MaxTokens,
		Temperature: prepared.Temperature,
	})
	if err != nil {
		wrapped := c.classify(callCtx, "chat", err)
		c.LogChatResponse(nil, time.Since(start), wrapped)
		return nil, wrapped
	}
	if len(apiResp.Choices) == 0 {
		return nil, llm.NewClientError(ClientName, "chat", "response has no choices", llm.ErrInvalidResponse)
	}

	resp := c.BuildChatResponse(apiResp.Choices[0].Message.Content, apiResp.Model, prepared.ResponseSchema)
	resp.Usage = &llm.Usage{
		PromptTokens:     apiResp.Usage.PromptTokens,
		CompletionTokens: apiResp.Usage.CompletionTokens,
		TotalTokens:      apiResp.Usage.TotalTokens,
	}

	c.LogChatResponse(resp, time.Since(start), nil)
	return resp, nil
}

// Embed produces one vector per text, batching requests at the configured size
func (c *Client) Embed(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	start := time.Now()

	prepared, err := c.ValidateEmbed(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.GetConfig().ApplyTimeout(ctx, c.GetConfig().DefaultTimeout)
	defer cancel()

	cfg := c.GetConfig()
	batchSize := cfg.GetEmbedBatchSize()

	vectors := make([][]float32, 0, len(prepared.Texts))
	usage := &llm.Usage{}

	for offset := 0; offset < len(prepared.Texts); offset += batchSize {
		end := offset + batchSize
		if end > len(prepared.Texts) {
			end = len(prepared.Texts)
		}
		batch := prepared.Texts[offset:end]

		apiResp, err := c.apiClient().CreateEmbeddings(callCtx, goopenai.EmbeddingRequest{
			Input:      batch,
			Model:      goopenai.EmbeddingModel(prepared.Model),
			Dimensions: cfg.EmbeddingDimensions,
		})
		if err != nil {
			wrapped := c.classify(callCtx, "embed", err)
			c.LogEmbedResponse(len(prepared.Texts), prepared.Model, time.Since(start), wrapped)
			return nil, wrapped
		}
		if len(apiResp.Data) != len(batch) {
			return nil, llm.NewClientError(ClientName, "embed",
				"response vector count does not match input count", llm.ErrInvalidResponse)
		}

		// The API may reorder entries; Index restores input order
		batchVectors := make([][]float32, len(batch))
		for _, d := range apiResp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, llm.NewClientError(ClientName, "embed",
					"response vector index out of range", llm.ErrInvalidResponse)
			}
			batchVectors[d.Index] = d.Embedding
		}
		vectors = append(vectors, batchVectors...)

		usage.PromptTokens += apiResp.Usage.PromptTokens
		usage.TotalTokens += apiResp.Usage.TotalTokens
	}

	c.LogEmbedResponse(len(prepared.Texts), prepared.Model, time.Since(start), nil)
	return &llm.EmbeddingResponse{
		Vectors: vectors,
		Model:   prepared.Model,
		Usage:   usage,
	}, nil
}

// RefreshCredentials re-resolves the API key and rebuilds the SDK client
func (c *Client) RefreshCredentials() error {
	cfg := c.GetConfig()
	if cfg.KeySource == nil {
		return llm.NewAuthError(ClientName, "refresh", "no credential source configured", nil)
	}
	key := cfg.KeySource()
	if key == "" {
		return llm.NewAuthError(ClientName, "refresh", "credential source returned no key", nil)
	}
	cfg.APIKey = key

	c.mu.Lock()
	c.api = newAPIClient(key, cfg.BaseURL)
	c.mu.Unlock()

	c.Logger().Info("Refreshed API credentials")
	return nil
}

// Close releases any resources held by the client
func (c *Client) Close() error {
	return nil
}

func (c *Client) apiClient() *goopenai.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.api
}

// classify maps SDK errors onto the transient/auth/permanent taxonomy
func (c *Client) classify(ctx context.Context, operation string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return llm.NewRetryableError(ClientName, operation, "request timeout", llm.ErrTimeout)
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return llm.FromHTTPStatus(ClientName, operation, apiErr.HTTPStatusCode, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return llm.FromHTTPStatus(ClientName, operation, reqErr.HTTPStatusCode, err)
	}

	// No HTTP status means the request never completed: treat as transient
	return llm.NewRetryableError(ClientName, operation, "request failed", err)
}
