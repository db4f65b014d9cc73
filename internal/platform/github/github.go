// Package github implements the platform adapter for GitHub.
package github

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/output"
	"github.com/reviewhub/reviewhub/internal/platform"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

const (
	defaultGitHubURL = "https://github.com"

	// zeroSHA is the before-SHA GitHub sends for branch-creating pushes
	zeroSHA = "0000000000000000000000000000000000000000"

	// tokenEnvVar is re-read by RefreshCredentials after an auth failure
	tokenEnvVar = "REVIEWHUB_PLATFORM_GITHUB_TOKEN"
)

func init() {
	platform.Register(model.PlatformGitHub, NewAdapter)
}

// Adapter implements platform.Adapter for GitHub
type Adapter struct {
	client             *github.Client
	token              string
	baseURL            string
	insecureSkipVerify bool
	skipVerification   bool
}

// NewAdapter creates a GitHub adapter
func NewAdapter(opts *platform.Options) (platform.Adapter, error) {
	a := &Adapter{
		token:              opts.Token,
		baseURL:            opts.BaseURL,
		insecureSkipVerify: opts.InsecureSkipVerify,
		skipVerification:   opts.SkipVerification,
	}
	if err := a.rebuildClient(); err != nil {
		return nil, err
	}
	return a, nil
}

// rebuildClient constructs the API client from the current token. Called
// at construction and again after a credential refresh.
func (a *Adapter) rebuildClient() error {
	var httpClient *http.Client

	if a.token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		if a.insecureSkipVerify {
			transport := httpClient.Transport.(*oauth2.Transport)
			if transport.Base == nil {
				transport.Base = &http.Transport{}
			}
			if t, ok := transport.Base.(*http.Transport); ok {
				if t.TLSClientConfig == nil {
					t.TLSClientConfig = &tls.Config{}
				}
				t.TLSClientConfig.InsecureSkipVerify = true
			}
		}
	} else {
		transport := &http.Transport{}
		if a.insecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Transport: transport}
	}

	if a.baseURL != "" && a.baseURL != defaultGitHubURL {
		client, err := github.NewClient(httpClient).WithEnterpriseURLs(a.baseURL, a.baseURL)
		if err != nil {
			return &platform.AdapterError{
				Platform: model.PlatformGitHub,
				Message:  "failed to create enterprise client",
				Err:      err,
			}
		}
		a.client = client
		return nil
	}

	a.client = github.NewClient(httpClient)
	return nil
}

// Name returns the platform name
func (a *Adapter) Name() string {
	return model.PlatformGitHub
}

// apiError wraps an SDK error, keeping the HTTP status when the platform
// returned one so callers can recognize auth failures.
func apiError(message string, resp *github.Response, err error) error {
	ae := &platform.AdapterError{
		Platform: model.PlatformGitHub,
		Message:  message,
		Err:      err,
	}
	if resp != nil {
		ae.StatusCode = resp.StatusCode
	}
	return ae
}

// ParseWebhook validates the signature and normalizes push and
// pull_request events. Other event types are acknowledged as ignored.
func (a *Adapter) ParseWebhook(r *http.Request, secret string) (*platform.Event, error) {
	var body []byte
	var err error

	// go-github reads the body and checks X-Hub-Signature-256 in one step
	if secret != "" && !a.skipVerification {
		body, err = github.ValidatePayload(r, []byte(secret))
		if err != nil {
			return nil, &platform.AdapterError{
				Platform:   model.PlatformGitHub,
				Message:    "invalid webhook signature",
				StatusCode: http.StatusUnauthorized,
				Err:        err,
			}
		}
	} else {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, &platform.AdapterError{
				Platform: model.PlatformGitHub,
				Message:  "failed to read webhook body",
				Err:      err,
			}
		}
	}

	eventType := r.Header.Get("X-GitHub-Event")
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
	var payload github.PushEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitHub,
			Message:  "failed to parse push event",
			Err:      err,
		}
	}

	headSHA := platform.NormalizeSHA(payload.GetAfter())
	baseSHA := platform.NormalizeSHA(payload.GetBefore())
	if headSHA == "" {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitHub,
			Message:  "push event has no valid head SHA",
		}
	}
	if baseSHA == "" {
		baseSHA = zeroSHA
	}

	title := ""
	if commits := payload.Commits; len(commits) > 0 {
		title = platform.FirstLine(commits[0].GetMessage())
	}

	return &platform.Event{
		Kind:   platform.EventPush,
		Action: "push",
		Metadata: &model.PRMetadata{
			RepoID:   payload.GetRepo().GetFullName(),
			PRNumber: platform.PushPRNumber,
			BaseSHA:  baseSHA,
			HeadSHA:  headSHA,
			Author:   payload.GetSender().GetLogin(),
			Title:    title,
			Platform: model.PlatformGitHub,
			Source:   model.SourceWebhook,
		},
	}, nil
}

func (a *Adapter) parsePullRequestEvent(body []byte) (*platform.Event, error) {
	var payload github.PullRequestEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitHub,
			Message:  "failed to parse pull_request event",
			Err:      err,
		}
	}

	action := strings.ToLower(payload.GetAction())
	if !platform.ShouldReview(action) {
		return &platform.Event{Kind: platform.EventIgnored, Action: action}, nil
	}

	pr := payload.GetPullRequest()
	headSHA := platform.NormalizeSHA(pr.GetHead().GetSHA())
	baseSHA := platform.NormalizeSHA(pr.GetBase().GetSHA())
	if headSHA == "" || baseSHA == "" {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitHub,
			Message:  "pull_request event has no valid SHAs",
		}
	}

	return &platform.Event{
		Kind:   platform.EventPullRequest,
		Action: action,
		Metadata: &model.PRMetadata{
			RepoID:   payload.GetRepo().GetFullName(),
			PRNumber: pr.GetNumber(),
			BaseSHA:  baseSHA,
			HeadSHA:  headSHA,
			Author:   pr.GetUser().GetLogin(),
			Title:    pr.GetTitle(),
			Platform: model.PlatformGitHub,
			Source:   model.SourceWebhook,
		},
	}, nil
}

// GetDiff fetches the unified diff for the change and splits it into
// per-file blocks. PR metadata uses the pull request diff; push metadata
// compares base to head, falling back to the head commit alone for
// branch-creating pushes.
func (a *Adapter) GetDiff(ctx context.Context, meta *model.PRMetadata, kind platform.EventKind) ([]string, error) {
	owner, repo, ok := platform.SplitRepoID(meta.RepoID)
	if !ok {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitHub,
			Message:  fmt.Sprintf("invalid repo_id %q", meta.RepoID),
		}
	}

	var raw string
	var resp *github.Response
	var err error

	switch {
	case kind != platform.EventPush:
		raw, resp, err = a.client.PullRequests.GetRaw(ctx, owner, repo, meta.PRNumber,
			github.RawOptions{Type: github.Diff})
	case meta.BaseSHA == zeroSHA:
		raw, resp, err = a.client.Repositories.GetCommitRaw(ctx, owner, repo, meta.HeadSHA,
			github.RawOptions{Type: github.Diff})
	default:
		raw, resp, err = a.client.Repositories.CompareCommitsRaw(ctx, owner, repo,
			meta.BaseSHA, meta.HeadSHA, github.RawOptions{Type: github.Diff})
	}
	if err != nil {
		return nil, apiError("failed to fetch diff", resp, err)
	}

	return output.SplitDiff(raw), nil
}

// PostReview publishes the review. PR events become a single batched
// native review with inline comments, so no pacing is needed; push
// events open a tracking issue.
func (a *Adapter) PostReview(ctx context.Context, meta *model.PRMetadata, review *model.ReviewResponse, kind platform.EventKind) error {
	owner, repo, ok := platform.SplitRepoID(meta.RepoID)
	if !ok {
		return &platform.AdapterError{
			Platform: model.PlatformGitHub,
			Message:  fmt.Sprintf("invalid repo_id %q", meta.RepoID),
		}
	}

	if kind == platform.EventPush {
		return a.postTrackingIssue(ctx, owner, repo, meta, review)
	}
	return a.postNativeReview(ctx, owner, repo, meta, review)
}

func (a *Adapter) postNativeReview(ctx context.Context, owner, repo string, meta *model.PRMetadata, review *model.ReviewResponse) error {
	comments := make([]*github.DraftReviewComment, 0, len(review.Comments))
	for i := range review.Comments {
		c := &review.Comments[i]
		draft := &github.DraftReviewComment{
			Path: github.String(c.FilePath),
			Body: github.String(output.CommentBody(c)),
			Side: github.String("RIGHT"),
			Line: github.Int(c.LineRange.End),
		}
		if c.LineRange.Start > 0 && c.LineRange.Start < c.LineRange.End {
			draft.StartLine = github.Int(c.LineRange.Start)
			draft.StartSide = github.String("RIGHT")
		}
		comments = append(comments, draft)
	}

	req := &github.PullRequestReviewRequest{
		CommitID: github.String(meta.HeadSHA),
		Body:     github.String(output.ReviewBody(review)),
		Event:    github.String("COMMENT"),
		Comments: comments,
	}

	_, resp, err := a.client.PullRequests.CreateReview(ctx, owner, repo, meta.PRNumber, req)
	if err != nil {
		return apiError("failed to create review", resp, err)
	}

	logger.Info("Posted review",
		zap.String("repo_id", meta.RepoID),
		zap.Int("pr_number", meta.PRNumber),
		zap.Int("comments", len(comments)),
	)
	return nil
}

func (a *Adapter) postTrackingIssue(ctx context.Context, owner, repo string, meta *model.PRMetadata, review *model.ReviewResponse) error {
	req := &github.IssueRequest{
		Title: github.String(output.IssueTitle(meta)),
		Body:  github.String(output.IssueBody(meta, review)),
	}

	issue, resp, err := a.client.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return apiError("failed to create tracking issue", resp, err)
	}

	logger.Info("Posted tracking issue",
		zap.String("repo_id", meta.RepoID),
		zap.String("head_sha", meta.HeadSHA),
		zap.Int("issue", issue.GetNumber()),
	)
	return nil
}

// ResolvePR fetches the pull request and builds review metadata from
// its current head
func (a *Adapter) ResolvePR(ctx context.Context, repoID string, number int) (*model.PRMetadata, error) {
	owner, repo, ok := platform.SplitRepoID(repoID)
	if !ok {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitHub,
			Message:  fmt.Sprintf("invalid repo_id %q", repoID),
		}
	}

	pr, resp, err := a.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, apiError("failed to fetch pull request", resp, err)
	}

	headSHA := platform.NormalizeSHA(pr.GetHead().GetSHA())
	baseSHA := platform.NormalizeSHA(pr.GetBase().GetSHA())
	if headSHA == "" || baseSHA == "" {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitHub,
			Message:  "pull request has no valid SHAs",
		}
	}

	return &model.PRMetadata{
		RepoID:   repoID,
		PRNumber: number,
		BaseSHA:  baseSHA,
		HeadSHA:  headSHA,
		Author:   pr.GetUser().GetLogin(),
		Title:    pr.GetTitle(),
		Platform: model.PlatformGitHub,
	}, nil
}

// RefreshCredentials re-reads the token environment variable and
// rebuilds the API client. Returns ErrStaticCredentials when no
// fresher token is available.
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
			Platform: model.PlatformGitHub,
			Message:  "no token configured",
		}
	}
	_, resp, err := a.client.Users.Get(ctx, "")
	if err != nil {
		return apiError("token validation failed", resp, err)
	}
	return nil
}
