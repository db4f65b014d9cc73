// Package gitlab implements the platform adapter for GitLab. Webhook
// authentication uses GitLab's shared-token header rather than an HMAC
// signature; the token is compared in constant time.
package gitlab

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/output"
	"github.com/reviewhub/reviewhub/internal/platform"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

const (
	zeroSHA = "0000000000000000000000000000000000000000"

	tokenEnvVar = "REVIEWHUB_PLATFORM_GITLAB_TOKEN"

	diffPageSize = 100
)

func init() {
	platform.Register(model.PlatformGitLab, NewAdapter)
}

// Adapter implements platform.Adapter for GitLab
type Adapter struct {
	client           *gitlab.Client
	token            string
	baseURL          string
	insecure         bool
	skipVerification bool
	pacing           time.Duration
}

// NewAdapter creates a GitLab adapter
func NewAdapter(opts *platform.Options) (platform.Adapter, error) {
	a := &Adapter{
		token:            opts.Token,
		baseURL:          opts.BaseURL,
		insecure:         opts.InsecureSkipVerify,
		skipVerification: opts.SkipVerification,
		pacing:           opts.CommentPacing,
	}
	if err := a.rebuildClient(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) rebuildClient() error {
	clientOpts := []gitlab.ClientOptionFunc{}
	if a.baseURL != "" {
		clientOpts = append(clientOpts, gitlab.WithBaseURL(a.baseURL))
	}
	if a.insecure {
		clientOpts = append(clientOpts, gitlab.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}))
	}

	client, err := gitlab.NewClient(a.token, clientOpts...)
	if err != nil {
		return &platform.AdapterError{
			Platform: model.PlatformGitLab,
			Message:  "failed to create gitlab client",
			Err:      err,
		}
	}
	a.client = client
	return nil
}

// Name returns the platform name
func (a *Adapter) Name() string {
	return model.PlatformGitLab
}

// apiError wraps an SDK error, keeping the HTTP status when the platform
// returned one so callers can recognize auth failures.
func apiError(message string, resp *gitlab.Response, err error) error {
	ae := &platform.AdapterError{
		Platform: model.PlatformGitLab,
		Message:  message,
		Err:      err,
	}
	if resp != nil {
		ae.StatusCode = resp.StatusCode
	}
	return ae
}

// ParseWebhook checks the X-Gitlab-Token header against the configured
// secret and normalizes push and merge request events.
func (a *Adapter) ParseWebhook(r *http.Request, secret string) (*platform.Event, error) {
	if secret != "" && !a.skipVerification {
		token := r.Header.Get("X-Gitlab-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return nil, &platform.AdapterError{
				Platform:   model.PlatformGitLab,
				Message:    "invalid webhook token",
				StatusCode: http.StatusUnauthorized,
			}
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitLab,
			Message:  "failed to read webhook body",
			Err:      err,
		}
	}

	eventType := gitlab.HookEventType(r)
	parsed, err := gitlab.ParseWebhook(eventType, body)
	if err != nil {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitLab,
			Message:  "failed to parse webhook",
			Err:      err,
		}
	}

	switch ev := parsed.(type) {
	case *gitlab.PushEvent:
		return a.normalizePushEvent(ev)
	case *gitlab.MergeEvent:
		return a.normalizeMergeEvent(ev)
	default:
		return &platform.Event{Kind: platform.EventIgnored, Action: string(eventType)}, nil
	}
}

func (a *Adapter) normalizePushEvent(ev *gitlab.PushEvent) (*platform.Event, error) {
	headSHA := platform.NormalizeSHA(ev.After)
	if headSHA == "" {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitLab,
			Message:  "push event has no valid head SHA",
		}
	}
	baseSHA := platform.NormalizeSHA(ev.Before)
	if baseSHA == "" {
		baseSHA = zeroSHA
	}

	title := ""
	if len(ev.Commits) > 0 {
		title = platform.FirstLine(ev.Commits[0].Message)
	}

	return &platform.Event{
		Kind:   platform.EventPush,
		Action: "push",
		Metadata: &model.PRMetadata{
			RepoID:   ev.Project.PathWithNamespace,
			PRNumber: platform.PushPRNumber,
			BaseSHA:  baseSHA,
			HeadSHA:  headSHA,
			Author:   ev.UserUsername,
			Title:    title,
			Platform: model.PlatformGitLab,
			Source:   model.SourceWebhook,
		},
	}, nil
}

func (a *Adapter) normalizeMergeEvent(ev *gitlab.MergeEvent) (*platform.Event, error) {
	action := normalizeAction(ev.ObjectAttributes.Action)
	if !platform.ShouldReview(action) {
		return &platform.Event{Kind: platform.EventIgnored, Action: action}, nil
	}

	headSHA := platform.NormalizeSHA(ev.ObjectAttributes.LastCommit.ID)
	if headSHA == "" {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitLab,
			Message:  "merge request event has no valid head SHA",
		}
	}

	// The MR payload carries no merge base; OldRev is present on update
	// events only. Positioned comments fall back to plain notes when the
	// base is unknown.
	baseSHA := platform.NormalizeSHA(ev.ObjectAttributes.OldRev)
	if baseSHA == "" {
		baseSHA = zeroSHA
	}

	author := ""
	if ev.User != nil {
		author = ev.User.Username
	}

	return &platform.Event{
		Kind:   platform.EventPullRequest,
		Action: action,
		Metadata: &model.PRMetadata{
			RepoID:   ev.Project.PathWithNamespace,
			PRNumber: ev.ObjectAttributes.IID,
			BaseSHA:  baseSHA,
			HeadSHA:  headSHA,
			Author:   author,
			Title:    ev.ObjectAttributes.Title,
			Platform: model.PlatformGitLab,
			Source:   model.SourceWebhook,
		},
	}, nil
}

// normalizeAction maps GitLab's MR action vocabulary onto the shared one
func normalizeAction(action string) string {
	switch action {
	case "open":
		return "opened"
	case "update":
		return "synchronize"
	case "reopen":
		return "reopened"
	default:
		return action
	}
}

// GetDiff fetches per-file diff blocks. MR events page through the MR
// diff endpoint; push events compare base to head, or fetch the head
// commit's diff for branch-creating pushes. GitLab already returns
// per-file entries, so blocks are rebuilt with synthetic diff headers.
func (a *Adapter) GetDiff(ctx context.Context, meta *model.PRMetadata, kind platform.EventKind) ([]string, error) {
	if kind != platform.EventPush {
		return a.mergeRequestDiff(ctx, meta)
	}
	return a.pushDiff(ctx, meta)
}

func (a *Adapter) mergeRequestDiff(ctx context.Context, meta *model.PRMetadata) ([]string, error) {
	opts := &gitlab.ListMergeRequestDiffsOptions{
		ListOptions: gitlab.ListOptions{PerPage: diffPageSize},
	}

	var blocks []string
	for {
		diffs, resp, err := a.client.MergeRequests.ListMergeRequestDiffs(
			meta.RepoID, meta.PRNumber, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, apiError("failed to fetch merge request diff", resp, err)
		}
		for _, d := range diffs {
			if d.Diff == "" {
				continue
			}
			blocks = append(blocks, output.FileDiffBlock(d.OldPath, d.NewPath, d.NewFile, d.DeletedFile, d.Diff))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return blocks, nil
}

func (a *Adapter) pushDiff(ctx context.Context, meta *model.PRMetadata) ([]string, error) {
	var diffs []*gitlab.Diff

	if meta.BaseSHA == zeroSHA {
		commitDiffs, resp, err := a.client.Commits.GetCommitDiff(
			meta.RepoID, meta.HeadSHA,
			&gitlab.GetCommitDiffOptions{ListOptions: gitlab.ListOptions{PerPage: diffPageSize}},
			gitlab.WithContext(ctx))
		if err != nil {
			return nil, apiError("failed to fetch commit diff", resp, err)
		}
		diffs = commitDiffs
	} else {
		compare, resp, err := a.client.Repositories.Compare(
			meta.RepoID,
			&gitlab.CompareOptions{
				From: gitlab.Ptr(meta.BaseSHA),
				To:   gitlab.Ptr(meta.HeadSHA),
			},
			gitlab.WithContext(ctx))
		if err != nil {
			return nil, apiError("failed to compare commits", resp, err)
		}
		diffs = compare.Diffs
	}

	blocks := make([]string, 0, len(diffs))
	for _, d := range diffs {
		if d.Diff == "" {
			continue
		}
		blocks = append(blocks, output.FileDiffBlock(d.OldPath, d.NewPath, d.NewFile, d.DeletedFile, d.Diff))
	}
	return blocks, nil
}

// PostReview publishes the review. MR events post a summary note plus a
// positioned discussion per comment, paced to avoid platform rate
// limits; push events open a tracking issue.
func (a *Adapter) PostReview(ctx context.Context, meta *model.PRMetadata, review *model.ReviewResponse, kind platform.EventKind) error {
	if kind == platform.EventPush {
		return a.postTrackingIssue(ctx, meta, review)
	}
	return a.postNativeReview(ctx, meta, review)
}

func (a *Adapter) postNativeReview(ctx context.Context, meta *model.PRMetadata, review *model.ReviewResponse) error {
	_, resp, err := a.client.Notes.CreateMergeRequestNote(
		meta.RepoID, meta.PRNumber,
		&gitlab.CreateMergeRequestNoteOptions{Body: gitlab.Ptr(output.ReviewBody(review))},
		gitlab.WithContext(ctx))
	if err != nil {
		return apiError("failed to create review note", resp, err)
	}

	for i := range review.Comments {
		if i > 0 && a.pacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.pacing):
			}
		}
		a.postComment(ctx, meta, &review.Comments[i])
	}

	logger.Info("Posted review",
		zap.String("repo_id", meta.RepoID),
		zap.Int("pr_number", meta.PRNumber),
		zap.Int("comments", len(review.Comments)),
	)
	return nil
}

// postComment tries a positioned discussion first and degrades to a
// plain note carrying the location inline. Position requires a known
// base SHA, which MR webhooks only deliver on update events.
func (a *Adapter) postComment(ctx context.Context, meta *model.PRMetadata, c *model.ReviewComment) {
	body := output.CommentBody(c)

	if meta.BaseSHA != zeroSHA {
		_, _, err := a.client.Discussions.CreateMergeRequestDiscussion(
			meta.RepoID, meta.PRNumber,
			&gitlab.CreateMergeRequestDiscussionOptions{
				Body: gitlab.Ptr(body),
				Position: &gitlab.PositionOptions{
					PositionType: gitlab.Ptr("text"),
					BaseSHA:      gitlab.Ptr(meta.BaseSHA),
					StartSHA:     gitlab.Ptr(meta.BaseSHA),
					HeadSHA:      gitlab.Ptr(meta.HeadSHA),
					NewPath:      gitlab.Ptr(c.FilePath),
					NewLine:      gitlab.Ptr(c.LineRange.End),
				},
			},
			gitlab.WithContext(ctx))
		if err == nil {
			return
		}
		logger.Debug("Positioned discussion rejected, falling back to note",
			zap.String("repo_id", meta.RepoID),
			zap.String("file", c.FilePath),
			zap.Error(err),
		)
	}

	located := fmt.Sprintf("`%s:%d`\n\n%s", c.FilePath, c.LineRange.End, body)
	_, _, err := a.client.Notes.CreateMergeRequestNote(
		meta.RepoID, meta.PRNumber,
		&gitlab.CreateMergeRequestNoteOptions{Body: gitlab.Ptr(located)},
		gitlab.WithContext(ctx))
	if err != nil {
		logger.Warn("Failed to post review comment",
			zap.String("repo_id", meta.RepoID),
			zap.String("file", c.FilePath),
			zap.Error(err),
		)
	}
}

func (a *Adapter) postTrackingIssue(ctx context.Context, meta *model.PRMetadata, review *model.ReviewResponse) error {
	issue, resp, err := a.client.Issues.CreateIssue(
		meta.RepoID,
		&gitlab.CreateIssueOptions{
			Title:       gitlab.Ptr(output.IssueTitle(meta)),
			Description: gitlab.Ptr(output.IssueBody(meta, review)),
		},
		gitlab.WithContext(ctx))
	if err != nil {
		return apiError("failed to create tracking issue", resp, err)
	}

	logger.Info("Posted tracking issue",
		zap.String("repo_id", meta.RepoID),
		zap.String("head_sha", meta.HeadSHA),
		zap.Int("issue", issue.IID),
	)
	return nil
}

// ResolvePR fetches the merge request and builds review metadata from
// its current head. DiffRefs supplies the base when GitLab provides it.
func (a *Adapter) ResolvePR(ctx context.Context, repoID string, number int) (*model.PRMetadata, error) {
	mr, resp, err := a.client.MergeRequests.GetMergeRequest(repoID, number, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, apiError("failed to fetch merge request", resp, err)
	}

	headSHA := platform.NormalizeSHA(mr.SHA)
	baseSHA := ""
	if mr.DiffRefs.HeadSha != "" {
		headSHA = platform.NormalizeSHA(mr.DiffRefs.HeadSha)
	}
	if mr.DiffRefs.BaseSha != "" {
		baseSHA = platform.NormalizeSHA(mr.DiffRefs.BaseSha)
	}
	if headSHA == "" {
		return nil, &platform.AdapterError{
			Platform: model.PlatformGitLab,
			Message:  "merge request has no valid head SHA",
		}
	}
	if baseSHA == "" {
		baseSHA = zeroSHA
	}

	author := ""
	if mr.Author != nil {
		author = mr.Author.Username
	}

	return &model.PRMetadata{
		RepoID:   repoID,
		PRNumber: number,
		BaseSHA:  baseSHA,
		HeadSHA:  headSHA,
		Author:   author,
		Title:    mr.Title,
		Platform: model.PlatformGitLab,
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
			Platform: model.PlatformGitLab,
			Message:  "no token configured",
		}
	}
	_, resp, err := a.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return apiError("token validation failed", resp, err)
	}
	return nil
}
