// Package gitea implements the platform adapter for Gitea, covering
// both gitea.com and self-hosted instances via the official Go SDK.
package gitea

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"code.gitea.io/sdk/gitea"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/output"
	"github.com/reviewhub/reviewhub/internal/platform"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

const (
	defaultGiteaURL = "https://gitea.com"

	zeroSHA = "0000000000000000000000000000000000000000"

	tokenEnvVar = "REVIEWHUB_PLATFORM_GITEA_TOKEN"
)

func init() {
	platform.Register(model.PlatformGitea, NewAdapter)
}

// Adapter implements platform.Adapter for Gitea
type Adapter struct {
	client           *gitea.Client
	httpClient       *http.Client
	token            string
	baseURL          string
	skipVerification bool
}

// NewAdapter creates a Gitea adapter
func NewAdapter(opts *platform.Options) (platform.Adapter, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultGiteaURL
	}

	httpClient := &http.Client{}
	if opts.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	a := &Adapter{
		httpClient:       httpClient,
		token:            opts.Token,
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		skipVerification: opts.SkipVerification,
	}
	if err := a.rebuildClient(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) rebuildClient() error {
	client, err := gitea.NewClient(a.baseURL,
		gitea.SetToken(a.token),
		gitea.SetHTTPClient(a.httpClient),
	)
	if err != nil {
		return &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "failed to create gitea client",
			Err:      err,
		}
	}
	a.client = client
	return nil
}

// Name returns the platform name
func (a *Adapter) Name() string {
	return model.PlatformGitea
}

// apiError wraps an SDK error, keeping the HTTP status when the platform
// returned one so callers can recognize auth failures.
func apiError(message string, resp *gitea.Response, err error) error {
	ae := &platform.AdapterError{
		Platform: model.PlatformGitea,
		Message:  message,
		Err:      err,
	}
	if resp != nil {
		ae.StatusCode = resp.StatusCode
	}
	return ae
}

// ParseWebhook validates the X-Gitea-Signature header and normalizes
// push and pull_request events. Gitea signs with HMAC-SHA256 and sends
// a bare hex digest; the sha256= prefixed form is accepted too.
func (a *Adapter) ParseWebhook(r *http.Request, secret string) (*platform.Event, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "failed to read webhook body",
			Err:      err,
		}
	}

	if secret != "" && !a.skipVerification {
		signature := r.Header.Get("X-Gitea-Signature")
		if !platform.VerifySignature(body, signature, secret) {
			return nil, &platform.AdapterError{
				Platform:   model.PlatformGitea,
				Message:    "invalid webhook signature",
				StatusCode: http.StatusUnauthorized,
			}
		}
	}

	eventType := r.Header.Get("X-Gitea-Event")
	switch eventType {
	case "push":
		return a.parsePushEvent(body)
	case "pull_request":
		return a.parsePullRequestEvent(body)
	default:
		return &platform.Event{Kind: platform.EventIgnored, Action: eventType}, nil
	}
}

func (a *Adapter) parsePushEvent(body []byte) (*platform.Event, error) {
	var payload struct {
		Before  string `json:"before"`
		After   string `json:"after"`
		Commits []struct {
			Message string `json:"message"`
		} `json:"commits"`
		Sender struct {
			Login string `json:"login"`
		} `json:"sender"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "failed to parse push event",
			Err:      err,
		}
	}

	headSHA := platform.NormalizeSHA(payload.After)
	if headSHA == "" {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "push event has no valid head SHA",
		}
	}
	baseSHA := platform.NormalizeSHA(payload.Before)
	if baseSHA == "" {
		baseSHA = zeroSHA
	}

	title := ""
	if len(payload.Commits) > 0 {
		title = platform.FirstLine(payload.Commits[0].Message)
	}

	return &platform.Event{
		Kind:   platform.EventPush,
		Action: "push",
		Metadata: &model.PRMetadata{
			RepoID:   payload.Repository.FullName,
			PRNumber: platform.PushPRNumber,
			BaseSHA:  baseSHA,
			HeadSHA:  headSHA,
			Author:   payload.Sender.Login,
			Title:    title,
			Platform: model.PlatformGitea,
			Source:   model.SourceWebhook,
		},
	}, nil
}

func (a *Adapter) parsePullRequestEvent(body []byte) (*platform.Event, error) {
	var payload struct {
		Action      string `json:"action"`
		Number      int64  `json:"number"`
		PullRequest struct {
			Title     string `json:"title"`
			MergeBase string `json:"merge_base"`
			Head      struct {
				Sha string `json:"sha"`
			} `json:"head"`
			Base struct {
				Sha string `json:"sha"`
			} `json:"base"`
			User struct {
				Login string `json:"login"`
			} `json:"user"`
		} `json:"pull_request"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "failed to parse pull_request event",
			Err:      err,
		}
	}

	action := normalizeAction(payload.Action)
	if !platform.ShouldReview(action) {
		return &platform.Event{Kind: platform.EventIgnored, Action: action}, nil
	}

	pr := payload.PullRequest
	headSHA := platform.NormalizeSHA(pr.Head.Sha)
	baseSHA := platform.NormalizeSHA(pr.MergeBase)
	if baseSHA == "" {
		baseSHA = platform.NormalizeSHA(pr.Base.Sha)
	}
	if headSHA == "" || baseSHA == "" {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "pull_request event has no valid SHAs",
		}
	}

	return &platform.Event{
		Kind:   platform.EventPullRequest,
		Action: action,
		Metadata: &model.PRMetadata{
			RepoID:   payload.Repository.FullName,
			PRNumber: int(payload.Number),
			BaseSHA:  baseSHA,
			HeadSHA:  headSHA,
			Author:   pr.User.Login,
			Title:    pr.Title,
			Platform: model.PlatformGitea,
			Source:   model.SourceWebhook,
		},
	}, nil
}

// normalizeAction maps Gitea's action vocabulary onto the shared one
func normalizeAction(action string) string {
	switch strings.ToLower(action) {
	case "opened", "open":
		return "opened"
	case "synchronized", "synchronize":
		return "synchronize"
	case "reopened", "reopen":
		return "reopened"
	default:
		return strings.ToLower(action)
	}
}

// GetDiff fetches the unified diff and splits it into per-file blocks.
// PR events use the SDK's pull diff endpoint. The SDK exposes no compare
// endpoint, so push events fetch the head commit's diff from the API,
// which stands in for the pushed range.
func (a *Adapter) GetDiff(ctx context.Context, meta *model.PRMetadata, kind platform.EventKind) ([]string, error) {
	if kind != platform.EventPush {
		raw, resp, err := a.client.GetPullRequestDiff(ownerOf(meta.RepoID), nameOf(meta.RepoID),
			int64(meta.PRNumber), gitea.PullRequestDiffOptions{Binary: false})
		if err != nil {
			return nil, apiError("failed to fetch pull request diff", resp, err)
		}
		return output.SplitDiff(string(raw)), nil
	}

	raw, err := a.fetchCommitDiff(ctx, meta.RepoID, meta.HeadSHA)
	if err != nil {
		return nil, err
	}
	return output.SplitDiff(raw), nil
}

// fetchCommitDiff retrieves a single commit's diff from the Gitea API
func (a *Adapter) fetchCommitDiff(ctx context.Context, repoID, sha string) (string, error) {
	url := fmt.Sprintf("%s/api/v1/repos/%s/git/commits/%s.diff", a.baseURL, repoID, sha)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "failed to build diff request",
			Err:      err,
		}
	}
	if a.token != "" {
		req.Header.Set("Authorization", "token "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "failed to fetch commit diff",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &platform.AdapterError{
			Platform:   model.PlatformGitea,
			Message:    fmt.Sprintf("commit diff request returned %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "failed to read commit diff",
			Err:      err,
		}
	}
	return string(body), nil
}

// PostReview publishes the review. PR events become a single batched
// pull review with inline comments; push events open a tracking issue.
func (a *Adapter) PostReview(ctx context.Context, meta *model.PRMetadata, review *model.ReviewResponse, kind platform.EventKind) error {
	owner, name, ok := platform.SplitRepoID(meta.RepoID)
	if !ok {
		return &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  fmt.Sprintf("invalid repo_id %q", meta.RepoID),
		}
	}

	if kind == platform.EventPush {
		return a.postTrackingIssue(ctx, owner, name, meta, review)
	}
	return a.postNativeReview(owner, name, meta, review)
}

func (a *Adapter) postNativeReview(owner, name string, meta *model.PRMetadata, review *model.ReviewResponse) error {
	comments := make([]gitea.CreatePullReviewComment, 0, len(review.Comments))
	for i := range review.Comments {
		c := &review.Comments[i]
		comments = append(comments, gitea.CreatePullReviewComment{
			Path:       c.FilePath,
			Body:       output.CommentBody(c),
			NewLineNum: int64(c.LineRange.End),
		})
	}

	_, resp, err := a.client.CreatePullReview(owner, name, int64(meta.PRNumber), gitea.CreatePullReviewOptions{
		State:    gitea.ReviewStateComment,
		Body:     output.ReviewBody(review),
		CommitID: meta.HeadSHA,
		Comments: comments,
	})
	if err != nil {
		return apiError("failed to create pull review", resp, err)
	}

	logger.Info("Posted review",
		zap.String("repo_id", meta.RepoID),
		zap.Int("pr_number", meta.PRNumber),
		zap.Int("comments", len(comments)),
	)
	return nil
}

func (a *Adapter) postTrackingIssue(ctx context.Context, owner, name string, meta *model.PRMetadata, review *model.ReviewResponse) error {
	issue, resp, err := a.client.CreateIssue(owner, name, gitea.CreateIssueOption{
		Title: output.IssueTitle(meta),
		Body:  output.IssueBody(meta, review),
	})
	if err != nil {
		return apiError("failed to create tracking issue", resp, err)
	}

	logger.Info("Posted tracking issue",
		zap.String("repo_id", meta.RepoID),
		zap.String("head_sha", meta.HeadSHA),
		zap.Int64("issue", issue.Index),
	)
	return nil
}

// ResolvePR fetches the pull request and builds review metadata from
// its current head
func (a *Adapter) ResolvePR(ctx context.Context, repoID string, number int) (*model.PRMetadata, error) {
	owner, name, ok := platform.SplitRepoID(repoID)
	if !ok {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  fmt.Sprintf("invalid repo_id %q", repoID),
		}
	}

	pr, resp, err := a.client.GetPullRequest(owner, name, int64(number))
	if err != nil {
		return nil, apiError("failed to fetch pull request", resp, err)
	}

	headSHA := ""
	if pr.Head != nil {
		headSHA = platform.NormalizeSHA(pr.Head.Sha)
	}
	baseSHA := platform.NormalizeSHA(pr.MergeBase)
	if baseSHA == "" && pr.Base != nil {
		baseSHA = platform.NormalizeSHA(pr.Base.Sha)
	}
	if headSHA == "" || baseSHA == "" {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "pull request has no valid SHAs",
		}
	}

	author := ""
	if pr.Poster != nil {
		author = pr.Poster.UserName
	}

	return &model.PRMetadata{
		RepoID:   repoID,
		PRNumber: number,
		BaseSHA:  baseSHA,
		HeadSHA:  headSHA,
		Author:   author,
		Title:    pr.Title,
		Platform: model.PlatformGitea,
	}, nil
}

// RefreshCredentials re-reads the token environment variable and
// rebuilds the API client
func (a *Adapter) RefreshCredentials(ctx context.Context) error {
	fresh := os.Getenv(tokenEnvVar)
	if fresh == "" || fresh == a.token {
		return platform.ErrStaticCredentials
	}
	a.token = fresh
	return a.rebuildClient()
}

// ValidateToken verifies the configured token against the API
func (a *Adapter) ValidateToken(ctx context.Context) error {
	if a.token == "" {
		return &platform.AdapterError{
			Platform: model.PlatformGitea,
			Message:  "no token configured",
		}
	}
	_, resp, err := a.client.GetMyUserInfo()
	if err != nil {
		return apiError("token validation failed", resp, err)
	}
	return nil
}

func ownerOf(repoID string) string {
	owner, _, _ := platform.SplitRepoID(repoID)
	return owner
}

func nameOf(repoID string) string {
	_, name, _ := platform.SplitRepoID(repoID)
	return name
}
