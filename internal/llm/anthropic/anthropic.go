// Package anthropic implements the LLM Client interface for the Anthropic
// Messages API. Anthropic exposes no embeddings endpoint, so Embed always
// fails; pair this client with an OpenAI-compatible embedder.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/reviewhub/reviewhub/internal/llm"
)

// ClientName is the identifier for the Anthropic client
const ClientName = "anthropic"

func init() {
	// Register the Anthropic client factory
	llm.Register(ClientName, NewClient)
}

// Client implements the llm.Client interface for the Anthropic API
type Client struct {
	*llm.BaseClient

	mu  sync.RWMutex
	api sdk.Client
}

// NewClient creates a new Anthropic client
func NewClient(config *llm.ClientConfig) (llm.Client, error) {
	if config == nil {
		config = llm.NewClientConfig(ClientName)
	}

	return &Client{
		BaseClient: llm.NewBaseClient(config),
		api:        newAPIClient(config.APIKey, config.BaseURL),
	}, nil
}

func newAPIClient(apiKey, baseURL string) sdk.Client {
	// The task queue owns the retry policy; disable the SDK's internal retries
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return sdk.NewClient(opts...)
}

// Available reports whether an API key is configured
func (c *Client) Available() bool {
	return c.GetConfig().APIKey != ""
}

// Chat performs a messages API call
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()

	prepared, err := c.PrepareChat(req)
	if err != nil {
		return nil, err
	}
	c.LogChatRequest(prepared, "chat")

	callCtx, cancel := c.GetConfig().ApplyTimeout(ctx, c.GetConfig().GetTimeout(prepared))
	defer cancel()

	params := sdk.MessageNewParams{
		Model:     sdk.Model(prepared.Model),
		MaxTokens: int64(prepared.MaxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prepared.Prompt)),
		},
	}
	if prepared.System != "" {
		params.System = []sdk.TextBlockParam{{Text: prepared.System}}
	}
	if prepared.Temperature > 0 {
		params.Temperature = sdk.Float(float64(prepared.Temperature))
	}

	api := c.apiClient()
	message, err := api.Messages.New(callCtx, params)
	if err != nil {
		wrapped := c.classify(callCtx, "chat", err)
		c.LogChatResponse(nil, time.Since(start), wrapped)
		return nil, wrapped
	}

	var content strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(sdk.TextBlock); ok {
			content.WriteString(text.Text)
		}
	}
	if content.Len() == 0 {
		return nil, llm.NewClientError(ClientName, "chat", "response has no text content", llm.ErrInvalidResponse)
	}

	resp := c.BuildChatResponse(content.String(), string(message.Model), prepared.ResponseSchema)
	resp.Usage = &llm.Usage{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}

	c.LogChatResponse(resp, time.Since(start), nil)
	return resp, nil
}

// Embed is not supported by the Anthropic API
func (c *Client) Embed(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return nil, llm.NewClientError(ClientName, "embed",
		"the Anthropic API has no embeddings endpoint", llm.ErrEmbeddingNotSupported)
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

func (c *Client) apiClient() sdk.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.api
}

// classify maps SDK errors onto the transient/auth/permanent taxonomy
func (c *Client) classify(ctx context.Context, operation string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return llm.NewRetryableError(ClientName, operation, "request timeout", llm.ErrTimeout)
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return llm.FromHTTPStatus(ClientName, operation, apiErr.StatusCode, err)
	}

	// No HTTP status means the request never completed: treat as transient
	return llm.NewRetryableError(ClientName, operation, "request failed", err)
}
