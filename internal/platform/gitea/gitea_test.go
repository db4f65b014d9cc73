package gitea

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"testing"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/platform"
)

const webhookSecret = "gitea-hook-secret"

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(&platform.Options{BaseURL: "https://gitea.example.com"})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	return a.(*Adapter)
}

func signedRequest(t *testing.T, event, body, secret string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/webhook/gitea", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("X-Gitea-Event", event)
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(body))
		req.Header.Set("X-Gitea-Signature", hex.EncodeToString(mac.Sum(nil)))
	}
	return req
}

const pushPayload = `{
	"before": "1111111111111111111111111111111111111111",
	"after": "2222222222222222222222222222222222222222",
	"commits": [
		{"message": "Fix flaky retry test\n\nThe backoff window was too tight."},
		{"message": "Second commit"}
	],
	"sender": {"login": "dev1"},
	"repository": {"full_name": "acme/widgets"}
}`

func TestParseWebhook_PushNormalization(t *testing.T) {
	a := newTestAdapter(t)

	event, err := a.ParseWebhook(signedRequest(t, "push", pushPayload, webhookSecret), webhookSecret)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if event.Kind != platform.EventPush {
		t.Fatalf("kind = %s, want %s", event.Kind, platform.EventPush)
	}

	meta := event.Metadata
	if meta == nil {
		t.Fatal("push event has no metadata")
	}
	if meta.RepoID != "acme/widgets" {
		t.Errorf("repo_id = %q, want acme/widgets", meta.RepoID)
	}
	if meta.HeadSHA != "2222222222222222222222222222222222222222" {
		t.Errorf("head_sha = %q, want the after SHA", meta.HeadSHA)
	}
	if meta.BaseSHA != "1111111111111111111111111111111111111111" {
		t.Errorf("base_sha = %q, want the before SHA", meta.BaseSHA)
	}
	if meta.PRNumber != platform.PushPRNumber {
		t.Errorf("pr_number = %d, want %d", meta.PRNumber, platform.PushPRNumber)
	}
	if meta.Author != "dev1" {
		t.Errorf("author = %q, want dev1", meta.Author)
	}
	if meta.Title != "Fix flaky retry test" {
		t.Errorf("title = %q, want first line of first commit", meta.Title)
	}
	if meta.Platform != model.PlatformGitea {
		t.Errorf("platform = %q, want %s", meta.Platform, model.PlatformGitea)
	}
	if meta.Source != model.SourceWebhook {
		t.Errorf("source = %q, want %s", meta.Source, model.SourceWebhook)
	}
	if err := meta.Validate(); err != nil {
		t.Errorf("normalized metadata failed validation: %v", err)
	}
}

func TestParseWebhook_PushToNewBranch(t *testing.T) {
	// A push creating a branch carries an all-zero before SHA. The zero
	// SHA is kept as the base so the diff source can recognize it.
	a := newTestAdapter(t)
	body := strings.Replace(pushPayload,
		"1111111111111111111111111111111111111111", zeroSHA, 1)

	event, err := a.ParseWebhook(signedRequest(t, "push", body, webhookSecret), webhookSecret)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if event.Metadata.BaseSHA != zeroSHA {
		t.Errorf("base_sha = %q, want %s", event.Metadata.BaseSHA, zeroSHA)
	}
}

func TestParseWebhook_PushWithoutHead(t *testing.T) {
	// Branch deletions push an all-zero after SHA; there is nothing to
	// review in that case.
	a := newTestAdapter(t)
	body := strings.Replace(pushPayload,
		"2222222222222222222222222222222222222222", zeroSHA, 1)

	_, err := a.ParseWebhook(signedRequest(t, "push", body, webhookSecret), webhookSecret)
	if err == nil {
		t.Fatal("ParseWebhook() accepted a push with no head SHA")
	}
}

func TestParseWebhook_SignatureForms(t *testing.T) {
	a := newTestAdapter(t)

	t.Run("prefixed digest accepted", func(t *testing.T) {
		req := signedRequest(t, "push", pushPayload, webhookSecret)
		req.Header.Set("X-Gitea-Signature", "sha256="+req.Header.Get("X-Gitea-Signature"))

		if _, err := a.ParseWebhook(req, webhookSecret); err != nil {
			t.Errorf("ParseWebhook() rejected sha256= prefixed signature: %v", err)
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		req := signedRequest(t, "push", pushPayload, "other-secret")

		_, err := a.ParseWebhook(req, webhookSecret)
		if err == nil {
			t.Fatal("ParseWebhook() accepted a bad signature")
		}
		if !platform.IsSignatureError(err) {
			t.Errorf("IsSignatureError() = false for %v", err)
		}
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		req := signedRequest(t, "push", pushPayload, "")

		if _, err := a.ParseWebhook(req, webhookSecret); !platform.IsSignatureError(err) {
			t.Errorf("unsigned request: err = %v, want signature error", err)
		}
	})

	t.Run("no secret configured skips verification", func(t *testing.T) {
		req := signedRequest(t, "push", pushPayload, "")

		if _, err := a.ParseWebhook(req, ""); err != nil {
			t.Errorf("ParseWebhook() error = %v with no secret configured", err)
		}
	})
}

func TestParseWebhook_PullRequest(t *testing.T) {
	a := newTestAdapter(t)
	body := `{
		"action": "open",
		"number": 42,
		"pull_request": {
			"title": "Add rate limiter",
			"merge_base": "3333333333333333333333333333333333333333",
			"head": {"sha": "4444444444444444444444444444444444444444"},
			"base": {"sha": "5555555555555555555555555555555555555555"},
			"user": {"login": "dev2"}
		},
		"repository": {"full_name": "acme/widgets"}
	}`

	event, err := a.ParseWebhook(signedRequest(t, "pull_request", body, webhookSecret), webhookSecret)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if event.Kind != platform.EventPullRequest {
		t.Fatalf("kind = %s, want %s", event.Kind, platform.EventPullRequest)
	}
	if event.Action != "opened" {
		t.Errorf("action = %q, want opened (normalized from open)", event.Action)
	}

	meta := event.Metadata
	if meta.PRNumber != 42 {
		t.Errorf("pr_number = %d, want 42", meta.PRNumber)
	}
	if meta.HeadSHA != "4444444444444444444444444444444444444444" {
		t.Errorf("head_sha = %q", meta.HeadSHA)
	}
	// merge_base wins over base.sha when present
	if meta.BaseSHA != "3333333333333333333333333333333333333333" {
		t.Errorf("base_sha = %q, want the merge base", meta.BaseSHA)
	}
	if meta.Author != "dev2" {
		t.Errorf("author = %q, want dev2", meta.Author)
	}
}

func TestParseWebhook_IgnoredEvents(t *testing.T) {
	a := newTestAdapter(t)

	t.Run("unknown event type", func(t *testing.T) {
		event, err := a.ParseWebhook(signedRequest(t, "issue_comment", `{}`, webhookSecret), webhookSecret)
		if err != nil {
			t.Fatalf("ParseWebhook() error = %v", err)
		}
		if event.Kind != platform.EventIgnored {
			t.Errorf("kind = %s, want %s", event.Kind, platform.EventIgnored)
		}
		if event.Action != "issue_comment" {
			t.Errorf("action = %q, want issue_comment", event.Action)
		}
	})

	t.Run("non-reviewable PR action", func(t *testing.T) {
		body := `{"action": "closed", "number": 7, "repository": {"full_name": "acme/widgets"}}`
		event, err := a.ParseWebhook(signedRequest(t, "pull_request", body, webhookSecret), webhookSecret)
		if err != nil {
			t.Fatalf("ParseWebhook() error = %v", err)
		}
		if event.Kind != platform.EventIgnored {
			t.Errorf("kind = %s, want %s for closed PR", event.Kind, platform.EventIgnored)
		}
	})
}

func TestNormalizeAction(t *testing.T) {
	for in, want := range map[string]string{
		"open":         "opened",
		"opened":       "opened",
		"synchronized": "synchronize",
		"reopen":       "reopened",
		"Labeled":      "labeled",
	} {
		if got := normalizeAction(in); got != want {
			t.Errorf("normalizeAction(%q) = %q, want %q", in, got, want)
		}
	}
}
