package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/reviewhub/reviewhub/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogger_PassesRequestsThrough(t *testing.T) {
	for _, cfg := range []*LoggerConfig{nil, {AccessLog: true}, {AccessLog: false}} {
		r := gin.New()
		r.Use(Logger(cfg))
		r.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

		w := serve(r, "GET", "/test", nil)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200 (cfg %+v)", w.Code, cfg)
		}
	}
}

func TestRecovery_ConvertsPanicTo500(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/test", func(c *gin.Context) {
		panic("test panic")
	})

	w := serve(r, "GET", "/test", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if code, _ := response["code"].(string); code != string(errors.ErrCodeInternal) {
		t.Errorf("code = %v, want %s", response["code"], errors.ErrCodeInternal)
	}
}

func TestCORS_OriginWhitelist(t *testing.T) {
	newRouter := func() *gin.Engine {
		r := gin.New()
		r.Use(CORS([]string{"http://localhost:3000"}))
		r.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})
		return r
	}

	w := serve(newRouter(), "GET", "/test", map[string]string{"Origin": "http://localhost:3000"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allowed origin header = %q, want the request origin", got)
	}

	w = serve(newRouter(), "GET", "/test", map[string]string{"Origin": "http://evil.example"})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for non-preflight request", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allowed origin header = %q, want empty for unlisted origin", got)
	}

	w = serve(newRouter(), "OPTIONS", "/test", map[string]string{"Origin": "http://localhost:3000"})
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}

	w = serve(newRouter(), "OPTIONS", "/test", map[string]string{"Origin": "http://evil.example"})
	if w.Code != http.StatusForbidden {
		t.Errorf("preflight status = %d, want 403 for unlisted origin", w.Code)
	}
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		if _, exists := c.Get("request_id"); !exists {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "request_id missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	})

	w := serve(r, "GET", "/test", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}

	w = serve(r, "GET", "/test", map[string]string{"X-Request-ID": "req-from-proxy"})
	if got := w.Header().Get("X-Request-ID"); got != "req-from-proxy" {
		t.Errorf("X-Request-ID = %q, want caller-supplied value kept", got)
	}
}

func TestErrorHandler_RendersAppError(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(true))
	r.GET("/test", func(c *gin.Context) {
		c.Error(errors.New(errors.ErrCodeValidation, "validation error"))
		c.Abort()
	})

	w := serve(r, "GET", "/test", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if code, _ := response["code"].(string); code != string(errors.ErrCodeValidation) {
		t.Errorf("code = %v, want %s", response["code"], errors.ErrCodeValidation)
	}
}

func TestErrorHandler_HidesInternalMessagesInProduction(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(false))
	r.GET("/test", func(c *gin.Context) {
		c.Error(errors.New(errors.ErrCodeInternal, "sensitive error details"))
		c.Abort()
	})

	w := serve(r, "GET", "/test", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if msg, _ := response["message"].(string); msg == "sensitive error details" {
		t.Error("internal error message leaked in production mode")
	}
}

// staticValidator accepts a fixed token set, standing in for the JWT
// validator in routing tests.
type staticValidator map[string]string

func (v staticValidator) ValidateToken(token string) (string, error) {
	username, ok := v[token]
	if !ok {
		return "", errors.ErrUnauthorized("invalid token")
	}
	return username, nil
}

func TestJWTAuth(t *testing.T) {
	r := gin.New()
	r.Use(JWTAuth(staticValidator{"valid-token-123": "operator"}))
	r.GET("/test", func(c *gin.Context) {
		username, _ := c.Get("username")
		c.JSON(http.StatusOK, gin.H{"username": username})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer valid-token-123", http.StatusOK},
		{"unknown token", "Bearer invalid-token", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := map[string]string{}
			if tt.header != "" {
				header["Authorization"] = tt.header
			}
			w := serve(r, "GET", "/test", header)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	w := serve(r, "GET", "/test", map[string]string{"Authorization": "Bearer valid-token-123"})
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if username, _ := response["username"].(string); username != "operator" {
		t.Errorf("username = %v, want operator", response["username"])
	}
}
