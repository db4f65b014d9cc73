package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/platform"
	"github.com/reviewhub/reviewhub/internal/store"
)

// setupTest builds a store-backed dispatcher over an in-memory broker
func setupTest(t *testing.T) (store.Store, *broker.Dispatcher, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, cleanup := store.SetupTestDB(t)
	b := broker.NewMemoryBroker(broker.Options{})
	dispatcher := broker.NewDispatcher(b, st, nil)
	return st, dispatcher, cleanup
}

// doJSON performs a JSON request against the router and returns the recorder
func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decodeBody unmarshals a recorder body into a map
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", w.Body.String(), err)
	}
	return body
}

const testSHA = "0123456789abcdef0123456789abcdef01234567"

func testMetadata() *model.PRMetadata {
	return &model.PRMetadata{
		RepoID:   "acme/widgets",
		PRNumber: 7,
		BaseSHA:  testSHA,
		HeadSHA:  strings.Repeat("ab", 20),
		Platform: model.PlatformGitHub,
		Source:   model.SourceWebhook,
	}
}

// stubAdapter scripts webhook parsing and PR resolution for handler tests
type stubAdapter struct {
	name     string
	event    *platform.Event
	parseErr error
	resolved *model.PRMetadata
	resolve  error
}

func (s *stubAdapter) Name() string {
	if s.name == "" {
		return model.PlatformGitHub
	}
	return s.name
}

func (s *stubAdapter) ParseWebhook(r *http.Request, secret string) (*platform.Event, error) {
	if s.parseErr != nil {
		return nil, s.parseErr
	}
	return s.event, nil
}

func (s *stubAdapter) GetDiff(ctx context.Context, meta *model.PRMetadata, kind platform.EventKind) ([]string, error) {
	return nil, fmt.Errorf("not supported in handler tests")
}

func (s *stubAdapter) PostReview(ctx context.Context, meta *model.PRMetadata, review *model.ReviewResponse, kind platform.EventKind) error {
	return fmt.Errorf("not supported in handler tests")
}

func (s *stubAdapter) ResolvePR(ctx context.Context, repoID string, number int) (*model.PRMetadata, error) {
	if s.resolve != nil {
		return nil, s.resolve
	}
	if s.resolved != nil {
		return s.resolved, nil
	}
	meta := testMetadata()
	meta.RepoID = repoID
	meta.PRNumber = number
	return meta, nil
}

func (s *stubAdapter) RefreshCredentials(ctx context.Context) error { return nil }

func (s *stubAdapter) ValidateToken(ctx context.Context) error { return nil }
