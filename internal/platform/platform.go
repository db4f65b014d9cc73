// Package platform defines the adapter interface for Git hosting platforms.
// An adapter normalizes incoming webhooks into PRMetadata, fetches diffs,
// and posts finished reviews back to the platform. GitHub, Gitea and GitLab
// implement this interface in their own subpackages.
package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/reviewhub/reviewhub/internal/model"
)

// EventKind classifies a parsed webhook event
type EventKind string

const (
	// EventPullRequest is a pull/merge request event that triggers a review
	EventPullRequest EventKind = "pull_request"

	// EventPush is a branch push; reviews publish to a tracking issue
	// instead of a PR review
	EventPush EventKind = "push"

	// EventIgnored is any event the pipeline accepts but does not act on
	EventIgnored EventKind = "ignored"
)

// Event is a normalized webhook event. Ignored events carry no metadata.
type Event struct {
	Kind     EventKind
	Action   string
	Metadata *model.PRMetadata
}

// PushPRNumber is the conventional pr_number recorded for push events,
// which have no pull request of their own. Metadata validation rejects 0.
const PushPRNumber = 1

// Adapter is implemented once per Git hosting platform
type Adapter interface {
	// Name returns the platform name (github, gitea, gitlab)
	Name() string

	// ParseWebhook validates the request signature against secret and
	// normalizes the payload. Unknown event types yield Kind=EventIgnored
	// rather than an error; signature mismatches are errors.
	ParseWebhook(r *http.Request, secret string) (*Event, error)

	// GetDiff fetches the change diff for the metadata's head, returned
	// as one unified-diff block per file. The event kind selects the
	// source: PR events fetch the pull request diff, push events compare
	// base to head. pr_number alone cannot distinguish the two because
	// push events record the conventional PushPRNumber.
	GetDiff(ctx context.Context, meta *model.PRMetadata, kind EventKind) ([]string, error)

	// PostReview publishes a finished review. Pull request events become
	// a platform-native review with inline comments; push events become
	// a tracking issue.
	PostReview(ctx context.Context, meta *model.PRMetadata, review *model.ReviewResponse, kind EventKind) error

	// ResolvePR fetches the pull request and builds metadata from its
	// current head. Operator and CLI submissions carry only a PR URL, so
	// the SHAs come from the platform API. The caller sets Source.
	ResolvePR(ctx context.Context, repoID string, number int) (*model.PRMetadata, error)

	// RefreshCredentials re-reads the token source after an auth failure.
	// Adapters with static tokens may return ErrStaticCredentials.
	RefreshCredentials(ctx context.Context) error

	// ValidateToken verifies the configured token against the platform API
	ValidateToken(ctx context.Context) error
}

// Options holds adapter construction options
type Options struct {
	Token              string // API access token
	BaseURL            string // base URL for self-hosted instances
	WebhookSecret      string // webhook signing secret
	SkipVerification   bool   // accept webhooks without signature checks
	InsecureSkipVerify bool   // skip TLS certificate verification

	// CommentPacing is the minimum delay between sequential comment
	// posts. Adapters that publish the whole review in one batched call
	// ignore it.
	CommentPacing time.Duration
}

// Factory creates an adapter instance
type Factory func(opts *Options) (Adapter, error)

// Registry holds registered adapter factories
var Registry = make(map[string]Factory)

// Register registers an adapter factory
func Register(name string, factory Factory) {
	Registry[name] = factory
}

// Create creates an adapter by platform name
func Create(name string, opts *Options) (Adapter, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, &AdapterError{
			Platform: name,
			Message:  "platform not registered",
		}
	}
	return factory(opts)
}

// AdapterError represents a platform adapter error
type AdapterError struct {
	Platform   string
	Message    string
	StatusCode int // HTTP status from the platform, 0 when none applies
	Err        error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return "[" + e.Platform + "] " + e.Message + ": " + e.Err.Error()
	}
	return "[" + e.Platform + "] " + e.Message
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an adapter error caused by rejected
// credentials. Callers refresh the token and retry once before failing.
func IsAuthError(err error) bool {
	var ae *AdapterError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.StatusCode == http.StatusUnauthorized || ae.StatusCode == http.StatusForbidden
}

// IsSignatureError reports whether err is a webhook rejected for a bad
// signature or shared token. The ingress handler answers 401 for these
// and 400 for every other parse failure.
func IsSignatureError(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusUnauthorized
}

// ErrStaticCredentials is returned by RefreshCredentials when the adapter
// has no rotating token source to re-read.
var ErrStaticCredentials = errors.New("credentials are static")

// VerifySignature checks an HMAC-SHA256 webhook signature in the
// `sha256=<hex>` header format using a constant-time comparison. A bare
// hex digest without the prefix is also accepted. Verification passes
// unconditionally when no secret is configured.
func VerifySignature(body []byte, header, secret string) bool {
	if secret == "" {
		return true
	}
	if header == "" {
		return false
	}

	header = strings.TrimPrefix(header, "sha256=")
	expected, err := hex.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// NormalizeSHA validates a commit SHA and truncates extended forms to
// the canonical 40 hex characters. Returns "" for anything shorter or
// non-hex.
func NormalizeSHA(sha string) string {
	sha = strings.ToLower(strings.TrimSpace(sha))
	if len(sha) > 40 {
		sha = sha[:40]
	}
	if !model.ValidSHA(sha) {
		return ""
	}
	return sha
}

// ShouldReview reports whether a PR/MR action triggers a review.
// Opened, updated and reopened changes are reviewed; label edits,
// closes and merges are not.
func ShouldReview(action string) bool {
	switch strings.ToLower(action) {
	case "opened", "open", "synchronize", "synchronized", "update", "reopened", "reopen":
		return true
	default:
		return false
	}
}

// FirstLine returns the first line of a commit message, used as the
// review title for push events.
func FirstLine(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = message[:i]
	}
	return strings.TrimSpace(message)
}

// SplitRepoID splits an owner/name repository ID.
func SplitRepoID(repoID string) (owner, name string, ok bool) {
	i := strings.Index(repoID, "/")
	if i <= 0 || i == len(repoID)-1 {
		return "", "", false
	}
	return repoID[:i], repoID[i+1:], true
}
