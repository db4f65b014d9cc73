package llm

import (
	"time"
)

// ChatRequest represents a chat completion request
type ChatRequest struct {
	// System is the system prompt (optional)
	System string

	// Prompt is the user message to send to the LLM
	Prompt string

	// Model specifies which model to use; empty means the client default
	Model string

	// MaxTokens caps the completion length; 0 means the client default
	MaxTokens int

	// Temperature controls sampling randomness; 0 means the provider default
	Temperature float32

	// ResponseSchema defines the expected response structure (optional).
	// When provided, the client appends JSON format instructions to the
	// prompt and attempts to parse the response into the schema's type.
	ResponseSchema *ResponseSchema

	// Options contains optional per-request configuration
	Options *RequestOptions
}

// ResponseSchema defines the expected response structure for structured output
type ResponseSchema struct {
	// Name is the schema name (e.g., "code_review_result")
	Name string

	// Description describes what the schema represents
	Description string

	// Schema is a Go struct (or map) converted to JSON Schema for the prompt
	// and used as the parse target for the response
	Schema interface{}

	// Strict indicates whether the LLM must strictly follow the schema
	Strict bool
}

// RequestOptions contains optional request configuration
type RequestOptions struct {
	// Timeout is the maximum duration for the request
	Timeout time.Duration

	// Metadata carries correlation fields (e.g., task_id, review_id) for logs
	Metadata map[string]string
}

// ChatResponse represents the response from a chat completion
type ChatResponse struct {
	// Content is the raw text content of the completion
	Content string

	// Model is the actual model that served the request
	Model string

	// Metadata contains additional response information
	Metadata map[string]string

	// Usage contains token usage statistics (nil if the provider omits them)
	Usage *Usage

	// Parsed is the parsed structured data (if ResponseSchema was provided)
	Parsed interface{}

	// ParseErr is the error from parsing (if parsing failed)
	ParseErr error
}

// EmbeddingRequest represents a batch embedding request
type EmbeddingRequest struct {
	// Texts are the inputs to embed, one vector returned per entry
	Texts []string

	// Model specifies the embedding model; empty means the client default
	Model string
}

// EmbeddingResponse carries one vector per requested text, in input order
type EmbeddingResponse struct {
	// Vectors holds the embeddings, aligned with the request texts
	Vectors [][]float32

	// Model is the embedding model that served the request
	Model string

	// Usage contains aggregate token usage across internal batches
	Usage *Usage
}

// Usage represents token usage statistics
type Usage struct {
	// PromptTokens is the number of tokens in the prompt
	PromptTokens int

	// CompletionTokens is the number of tokens in the completion
	CompletionTokens int

	// TotalTokens is the total number of tokens used
	TotalTokens int
}

// NewChatRequest creates a new ChatRequest with the given user prompt
func NewChatRequest(prompt string) *ChatRequest {
	return &ChatRequest{
		Prompt: prompt,
	}
}

// WithSystem sets the system prompt
func (r *ChatRequest) WithSystem(system string) *ChatRequest {
	r.System = system
	return r
}

// WithModel sets the model for the request
func (r *ChatRequest) WithModel(model string) *ChatRequest {
	r.Model = model
	return r
}

// WithMaxTokens sets the completion token cap
func (r *ChatRequest) WithMaxTokens(max int) *ChatRequest {
	r.MaxTokens = max
	return r
}

// WithSchema sets the response schema for structured output
func (r *ChatRequest) WithSchema(schema *ResponseSchema) *ChatRequest {
	r.ResponseSchema = schema
	return r
}

// WithOptions sets the request options
func (r *ChatRequest) WithOptions(opts *RequestOptions) *ChatRequest {
	r.Options = opts
	return r
}

// GetTimeout returns the timeout from options, or the default value
func (r *ChatRequest) GetTimeout(defaultTimeout time.Duration) time.Duration {
	if r.Options != nil && r.Options.Timeout > 0 {
		return r.Options.Timeout
	}
	return defaultTimeout
}

// GetMetadata returns a metadata value, or empty string if not found
func (r *ChatRequest) GetMetadata(key string) string {
	if r.Options != nil && r.Options.Metadata != nil {
		return r.Options.Metadata[key]
	}
	return ""
}
