package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewhub/reviewhub/internal/llm"
)

// newTestServer serves a minimal Messages API so the client can be
// exercised without network access.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	config := llm.NewClientConfig(ClientName).
		WithAPIKey("test-key").
		WithBaseURL(baseURL).
		WithDefaultModel("claude-3-5-haiku-20241022")

	client, err := NewClient(config)
	require.NoError(t, err)
	return client.(*Client)
}

func writeMessage(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":            "msg_01",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-3-5-haiku-20241022",
		"content":       []map[string]string{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]int{"input_tokens": 12, "output_tokens": 6},
	})
}

func writeAPIError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"type": "error",
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}

// ====================
// Tests for Chat
// ====================

func TestClient_Chat(t *testing.T) {
	var gotBody map[string]interface{}
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeMessage(w, "the diff looks safe")
	})

	client := newTestClient(t, server.URL)
	resp, err := client.Chat(context.Background(),
		llm.NewChatRequest("review this diff").
			WithSystem("you are a code reviewer").
			WithMaxTokens(2048))

	require.NoError(t, err)
	assert.Equal(t, "the diff looks safe", resp.Content)
	assert.Equal(t, "claude-3-5-haiku-20241022", resp.Model)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 6, resp.Usage.CompletionTokens)
	assert.Equal(t, 18, resp.Usage.TotalTokens)

	// System and token cap travel on the request body
	assert.Equal(t, float64(2048), gotBody["max_tokens"])
	system, ok := gotBody["system"].([]interface{})
	require.True(t, ok)
	require.Len(t, system, 1)
	first := system[0].(map[string]interface{})
	assert.Equal(t, "you are a code reviewer", first["text"])
}

func TestClient_ChatWithSchema(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, `{"summary": "approved", "count": 1}`)
	})

	type result struct {
		Summary string `json:"summary"`
		Count   int    `json:"count"`
	}

	client := newTestClient(t, server.URL)
	resp, err := client.Chat(context.Background(),
		llm.NewChatRequest("review").WithSchema(&llm.ResponseSchema{Schema: result{}}))

	require.NoError(t, err)
	require.NoError(t, resp.ParseErr)
	parsed := resp.Parsed.(*result)
	assert.Equal(t, "approved", parsed.Summary)
}

func TestClient_ChatErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		errType   string
		retryable bool
		auth      bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, errType: "rate_limit_error", retryable: true, auth: false},
		{name: "overloaded", status: 529, errType: "overloaded_error", retryable: true, auth: false},
		{name: "unauthorized", status: http.StatusUnauthorized, errType: "authentication_error", retryable: false, auth: true},
		{name: "invalid request", status: http.StatusBadRequest, errType: "invalid_request_error", retryable: false, auth: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeAPIError(w, tt.status, tt.errType, "nope")
			})

			client := newTestClient(t, server.URL)
			_, err := client.Chat(context.Background(), llm.NewChatRequest("hello"))

			require.Error(t, err)
			assert.Equal(t, tt.retryable, llm.IsRetryable(err), "retryable")
			assert.Equal(t, tt.auth, llm.IsAuthError(err), "auth")
		})
	}
}

// ====================
// Tests for Embed
// ====================

func TestClient_EmbedNotSupported(t *testing.T) {
	client := newTestClient(t, "")
	_, err := client.Embed(context.Background(), &llm.EmbeddingRequest{Texts: []string{"a"}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrEmbeddingNotSupported))
	assert.False(t, llm.IsRetryable(err))
}

// ====================
// Tests for credential refresh
// ====================

func TestClient_RefreshCredentials(t *testing.T) {
	config := llm.NewClientConfig(ClientName).
		WithAPIKey("stale-key").
		WithKeySource(func() string { return "rotated-key" })
	client, err := NewClient(config)
	require.NoError(t, err)

	require.NoError(t, client.RefreshCredentials())
	assert.Equal(t, "rotated-key", client.GetConfig().APIKey)
}

func TestClient_RefreshCredentialsWithoutSource(t *testing.T) {
	client, err := NewClient(llm.NewClientConfig(ClientName).WithAPIKey("k"))
	require.NoError(t, err)

	err = client.RefreshCredentials()
	require.Error(t, err)
	assert.True(t, llm.IsAuthError(err))
}

// ====================
// Tests for Available
// ====================

func TestClient_Available(t *testing.T) {
	withKey, _ := NewClient(llm.NewClientConfig(ClientName).WithAPIKey("k"))
	assert.True(t, withKey.Available())

	withoutKey, _ := NewClient(llm.NewClientConfig(ClientName))
	assert.False(t, withoutKey.Available())
}

func TestClient_Registered(t *testing.T) {
	assert.True(t, llm.IsRegistered(ClientName))

	created, err := llm.Create(ClientName, nil)
	require.NoError(t, err)
	assert.Equal(t, ClientName, created.Name())
}
