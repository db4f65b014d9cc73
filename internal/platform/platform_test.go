package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	secret := "s3cret"
	digest := sign(body, secret)

	t.Run("valid with prefix", func(t *testing.T) {
		if !VerifySignature(body, "sha256="+digest, secret) {
			t.Error("expected prefixed signature to verify")
		}
	})

	t.Run("valid bare digest", func(t *testing.T) {
		if !VerifySignature(body, digest, secret) {
			t.Error("expected bare signature to verify")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		if VerifySignature(body, sign(body, "other"), secret) {
			t.Error("expected mismatched signature to fail")
		}
	})

	t.Run("tampered body", func(t *testing.T) {
		if VerifySignature([]byte(`{"action":"closed"}`), digest, secret) {
			t.Error("expected tampered body to fail")
		}
	})

	t.Run("missing header", func(t *testing.T) {
		if VerifySignature(body, "", secret) {
			t.Error("expected empty header to fail")
		}
	})

	t.Run("malformed hex", func(t *testing.T) {
		if VerifySignature(body, "sha256=not-hex", secret) {
			t.Error("expected malformed hex to fail")
		}
	})

	t.Run("no secret passes", func(t *testing.T) {
		if !VerifySignature(body, "", "") {
			t.Error("expected verification to pass when no secret is configured")
		}
	})
}

func TestNormalizeSHA(t *testing.T) {
	valid := strings.Repeat("a1", 20)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid", valid, valid},
		{"uppercased", strings.ToUpper(valid), valid},
		{"padded", "  " + valid + "\n", valid},
		{"extended form truncated", valid + "deadbeef", valid},
		{"too short", "abc123", ""},
		{"non hex", strings.Repeat("z", 40), ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSHA(tt.in); got != tt.want {
				t.Errorf("NormalizeSHA(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestShouldReview(t *testing.T) {
	for _, action := range []string{"opened", "OPEN", "synchronize", "synchronized", "update", "reopened", "reopen"} {
		if !ShouldReview(action) {
			t.Errorf("expected %q to trigger a review", action)
		}
	}
	for _, action := range []string{"closed", "merged", "labeled", "assigned", ""} {
		if ShouldReview(action) {
			t.Errorf("expected %q to be ignored", action)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("Fix race in pool\n\nLong body here"); got != "Fix race in pool" {
		t.Errorf("FirstLine = %q", got)
	}
	if got := FirstLine("single line  "); got != "single line" {
		t.Errorf("FirstLine = %q", got)
	}
	if got := FirstLine(""); got != "" {
		t.Errorf("FirstLine = %q", got)
	}
}

func TestSplitRepoID(t *testing.T) {
	owner, name, ok := SplitRepoID("acme/widgets")
	if !ok || owner != "acme" || name != "widgets" {
		t.Errorf("SplitRepoID = %q, %q, %v", owner, name, ok)
	}

	// GitLab subgroup paths keep everything after the first slash
	owner, name, ok = SplitRepoID("group/sub/project")
	if !ok || owner != "group" || name != "sub/project" {
		t.Errorf("SplitRepoID = %q, %q, %v", owner, name, ok)
	}

	for _, bad := range []string{"", "noslash", "/leading", "trailing/"} {
		if _, _, ok := SplitRepoID(bad); ok {
			t.Errorf("expected SplitRepoID(%q) to fail", bad)
		}
	}
}

func TestAdapterError(t *testing.T) {
	inner := errors.New("connection refused")
	ae := &AdapterError{Platform: "github", Message: "failed to fetch diff", Err: inner}

	if got := ae.Error(); got != "[github] failed to fetch diff: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(ae, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}

	bare := &AdapterError{Platform: "gitea", Message: "no token configured"}
	if got := bare.Error(); got != "[gitea] no token configured" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsAuthError(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		err := &AdapterError{Platform: "github", Message: "failed to fetch diff", StatusCode: http.StatusUnauthorized}
		if !IsAuthError(err) {
			t.Error("expected 401 to classify as auth error")
		}
	})

	t.Run("forbidden", func(t *testing.T) {
		err := &AdapterError{Platform: "gitlab", Message: "failed to create review note", StatusCode: http.StatusForbidden}
		if !IsAuthError(err) {
			t.Error("expected 403 to classify as auth error")
		}
	})

	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("posting review: %w", &AdapterError{Platform: "gitea", StatusCode: http.StatusUnauthorized})
		if !IsAuthError(err) {
			t.Error("expected wrapped adapter error to classify")
		}
	})

	t.Run("server error", func(t *testing.T) {
		err := &AdapterError{Platform: "github", Message: "failed to fetch diff", StatusCode: http.StatusBadGateway}
		if IsAuthError(err) {
			t.Error("expected 502 not to classify as auth error")
		}
	})

	t.Run("no status", func(t *testing.T) {
		if IsAuthError(&AdapterError{Platform: "github", Message: "invalid repo_id"}) {
			t.Error("expected status-less adapter error not to classify")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if IsAuthError(errors.New("401 Unauthorized")) {
			t.Error("expected non-adapter error not to classify")
		}
	})
}

func TestCreateUnregistered(t *testing.T) {
	_, err := Create("bitbucket", &Options{})
	if err == nil {
		t.Fatal("expected error for unregistered platform")
	}
	var ae *AdapterError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AdapterError, got %T", err)
	}
	if ae.Platform != "bitbucket" {
		t.Errorf("Platform = %q", ae.Platform)
	}
}
