package llm

import (
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/pkg/logger"
)

// BaseClient provides common functionality for LLM clients.
// Concrete implementations (OpenAI, Anthropic, Mock) embed this struct.
type BaseClient struct {
	config *ClientConfig
	logger *zap.Logger
}

// NewBaseClient creates a new BaseClient with the given configuration
func NewBaseClient(config *ClientConfig) *BaseClient {
	if config == nil {
		config = NewClientConfig("unknown")
	}

	return &BaseClient{
		config: config,
		logger: logger.Named("llm." + config.Name),
	}
}

// Name returns the client name
func (b *BaseClient) Name() string {
	return b.config.Name
}

// GetConfig returns the client configuration
func (b *BaseClient) GetConfig() *ClientConfig {
	return b.config
}

// Logger returns the client's logger
func (b *BaseClient) Logger() *zap.Logger {
	return b.logger
}

// PrepareChat validates the request, applies the default model and token
// cap, and appends output format instructions when a schema is set.
// It returns a copy so the caller's request is never mutated.
func (b *BaseClient) PrepareChat(req *ChatRequest) (*ChatRequest, error) {
	if req == nil {
		return nil, NewClientError(b.config.Name, "chat", "request is nil", nil)
	}
	if req.Prompt == "" {
		return nil, NewClientError(b.config.Name, "chat", "prompt is empty", nil)
	}

	prepared := &ChatRequest{
		System:         req.System,
		Prompt:         req.Prompt,
		Model:          req.Model,
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
		ResponseSchema: req.ResponseSchema,
		Options:        req.Options,
	}

	if prepared.Model == "" {
		prepared.Model = b.config.DefaultModel
	}
	if prepared.Model == "" {
		return nil, NewClientError(b.config.Name, "chat", "no model configured", nil)
	}
	if prepared.MaxTokens <= 0 {
		prepared.MaxTokens = b.config.GetMaxTokens(req)
	}

	if prepared.ResponseSchema != nil {
		prepared.Prompt = prepared.Prompt + BuildSchemaPrompt(prepared.ResponseSchema)
	}

	return prepared, nil
}

// ValidateEmbed checks the embedding request and applies the default model.
func (b *BaseClient) ValidateEmbed(req *EmbeddingRequest) (*EmbeddingRequest, error) {
	if req == nil || len(req.Texts) == 0 {
		return nil, NewClientError(b.config.Name, "embed", "no texts to embed", nil)
	}
	prepared := &EmbeddingRequest{
		Texts: req.Texts,
		Model: req.Model,
	}
	if prepared.Model == "" {
		prepared.Model = b.config.EmbeddingModel
	}
	if prepared.Model == "" {
		return nil, NewClientError(b.config.Name, "embed", "no embedding model configured", nil)
	}
	return prepared, nil
}

// ParseResponse parses the response content according to the schema
func (b *BaseClient) ParseResponse(content string, schema *ResponseSchema) (interface{}, error) {
	if schema == nil || schema.Schema == nil {
		return nil, nil
	}

	schemaType := reflect.TypeOf(schema.Schema)
	for schemaType.Kind() == reflect.Ptr {
		schemaType = schemaType.Elem()
	}

	// Create a new instance of the target type and unmarshal into it
	target := reflect.New(schemaType).Interface()
	if err := ParseResponseJSON(content, target); err != nil {
		return nil, err
	}

	return target, nil
}

// BuildChatResponse builds a response, parsing structured data if a schema
// was provided. Parse failures are recorded on the response, not returned,
// so callers can fall back to the raw content.
func (b *BaseClient) BuildChatResponse(content, model string, schema *ResponseSchema) *ChatResponse {
	resp := &ChatResponse{
		Content:  content,
		Model:    model,
		Metadata: make(map[string]string),
	}

	if schema != nil {
		parsed, err := b.ParseResponse(content, schema)
		resp.Parsed = parsed
		resp.ParseErr = err

		if err != nil {
			b.logger.Debug("Failed to parse response as structured data",
				zap.Error(err),
			)
		}
	}

	return resp
}

// LogChatRequest logs the chat request details
func (b *BaseClient) LogChatRequest(req *ChatRequest, operation string) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("model", req.Model),
		zap.Int("prompt_length", len(req.Prompt)),
		zap.Int("system_length", len(req.System)),
		zap.Bool("has_schema", req.ResponseSchema != nil),
	}
	if taskID := req.GetMetadata("task_id"); taskID != "" {
		fields = append(fields, zap.String("task_id", taskID))
	}
	b.logger.Debug("Executing chat request", fields...)
}

// LogChatResponse logs the chat response details
func (b *BaseClient) LogChatResponse(resp *ChatResponse, duration time.Duration, err error) {
	if err != nil {
		b.logger.Error("Chat request failed",
			zap.Error(err),
			zap.Duration("duration", duration),
		)
		return
	}
	if resp == nil {
		b.logger.Warn("Chat request completed with nil response",
			zap.Duration("duration", duration))
		return
	}

	fields := []zap.Field{
		zap.String("model", resp.Model),
		zap.Int("content_length", len(resp.Content)),
		zap.Duration("duration", duration),
		zap.Bool("parsed_ok", resp.ParseErr == nil),
	}
	if resp.Usage != nil {
		fields = append(fields,
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)
	}
	b.logger.Debug("Chat request completed", fields...)
}

// LogEmbedResponse logs the embedding call outcome
func (b *BaseClient) LogEmbedResponse(count int, model string, duration time.Duration, err error) {
	if err != nil {
		b.logger.Error("Embedding request failed",
			zap.Error(err),
			zap.Int("texts", count),
			zap.String("model", model),
			zap.Duration("duration", duration),
		)
		return
	}
	b.logger.Debug("Embedding request completed",
		zap.Int("texts", count),
		zap.String("model", model),
		zap.Duration("duration", duration),
	)
}
