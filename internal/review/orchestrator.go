// Package review implements the review orchestrator: the worker-side
// pipeline that turns a queued review task into posted findings. One
// execution fetches the diff, retrieves repository context, applies
// learned suppressions, calls the model once per changed file, persists
// the result, and publishes it back to the hosting platform.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/callback"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/health"
	"github.com/reviewhub/reviewhub/internal/llm"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/output"
	"github.com/reviewhub/reviewhub/internal/platform"
	"github.com/reviewhub/reviewhub/internal/prompt"
	"github.com/reviewhub/reviewhub/internal/store"
	"github.com/reviewhub/reviewhub/pkg/idgen"
	"github.com/reviewhub/reviewhub/pkg/logger"
	"github.com/reviewhub/reviewhub/pkg/telemetry"
	"github.com/reviewhub/reviewhub/pkg/vectors"
)

const (
	// embedQueryLimit bounds the diff text sent to the embedding endpoint
	embedQueryLimit = 2000

	// constraintSearchK bounds how many constraints are considered per block
	constraintSearchK = 10
)

// Options wires the orchestrator's collaborators
type Options struct {
	Store    store.Store
	Chat     llm.Client
	Embedder llm.Client
	Adapters map[string]platform.Adapter
	Monitor  *health.Monitor
	Review   config.ReviewConfig
	Ignored  []string
	Callback *callback.Client
}

// Orchestrator executes code_review tasks. It is safe for concurrent use
// by multiple worker slots.
type Orchestrator struct {
	store    store.Store
	chat     llm.Client
	embedder llm.Client
	adapters map[string]platform.Adapter
	monitor  *health.Monitor
	cfg      config.ReviewConfig
	ignored  []string
	builder  *prompt.Builder
	renderer *prompt.Renderer
	callback *callback.Client
}

// NewOrchestrator creates a review orchestrator
func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		store:    opts.Store,
		chat:     opts.Chat,
		embedder: opts.Embedder,
		adapters: opts.Adapters,
		monitor:  opts.Monitor,
		cfg:      opts.Review,
		ignored:  opts.Ignored,
		builder:  prompt.NewBuilder(),
		renderer: prompt.NewRenderer(),
		callback: opts.Callback,
	}
}

// HandleTask is the broker handler for code_review tasks. The returned
// value is stored as the task result and served from GET /tasks/{id}.
func (o *Orchestrator) HandleTask(ctx context.Context, task *model.ReviewTask) (any, error) {
	var payload model.ReviewTaskPayload
	if err := model.DecodePayload(task.Payload, &payload); err != nil {
		return nil, broker.Permanent(fmt.Errorf("decoding review payload: %w", err))
	}

	meta := &payload.Meta
	if err := meta.Validate(); err != nil {
		return nil, broker.Permanent(fmt.Errorf("invalid review metadata: %w", err))
	}

	adapter, ok := o.adapters[meta.Platform]
	if !ok {
		return nil, broker.Permanent(fmt.Errorf("no adapter configured for platform %q", meta.Platform))
	}

	kind := platform.EventPullRequest
	if payload.Event == string(platform.EventPush) {
		kind = platform.EventPush
	}

	merged := o.cfg.EffectiveReviewConfig(&payload.Config)
	fingerprint := model.ReviewFingerprint(meta.RepoID, meta.HeadSHA, merged.Hash())

	rev, short, err := o.claimReview(task, meta, fingerprint, merged.Hash())
	if err != nil {
		return nil, err
	}
	if short != nil {
		logger.Info("duplicate review fingerprint, returning stored result",
			zap.String("task_id", task.TaskID),
			zap.String("review_id", short.ReviewID),
			zap.String("repo_id", meta.RepoID),
		)
		return short, nil
	}

	resp, err := o.execute(ctx, task, rev, meta, adapter, kind, &merged)
	if err != nil {
		return nil, o.settleFailure(ctx, task, rev, meta, err)
	}

	o.recordCompletion(ctx, meta.Platform, string(model.ReviewStatusCompleted), rev)
	if meta.CallbackURL != "" {
		o.callback.Deliver(ctx, meta.CallbackURL, callback.CompletedEvent(meta, task.TaskID, resp))
	}
	return resp, nil
}

// claimReview finds or creates the review row for the fingerprint. When a
// completed review already exists the stored response is returned as the
// short-circuit result and no execution happens.
func (o *Orchestrator) claimReview(task *model.ReviewTask, meta *model.PRMetadata, fingerprint, configHash string) (*model.Review, *model.ReviewResponse, error) {
	rev, err := o.store.Review().GetByFingerprint(fingerprint)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("looking up review fingerprint: %w", err)
	}

	if rev == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		rev = &model.Review{
			ID:          idgen.NewReviewID(),
			RepoID:      meta.RepoID,
			PRNumber:    meta.PRNumber,
			Platform:    meta.Platform,
			BaseSHA:     meta.BaseSHA,
			HeadSHA:     meta.HeadSHA,
			Author:      meta.Author,
			Title:       meta.Title,
			Source:      meta.Source,
			Fingerprint: fingerprint,
			ConfigHash:  configHash,
			TaskID:      task.TaskID,
			TraceID:     task.TraceID,
			Status:      model.ReviewStatusPending,
		}
		if createErr := o.store.Review().Create(rev); createErr != nil {
			// A concurrent execution may have won the unique index race
			existing, getErr := o.store.Review().GetByFingerprint(fingerprint)
			if getErr != nil {
				return nil, nil, fmt.Errorf("creating review row: %w", createErr)
			}
			rev = existing
		}
	}

	switch rev.Status {
	case model.ReviewStatusCompleted:
		return nil, rev.ToResponse(), nil
	case model.ReviewStatusFailed:
		// A fresh task for a previously failed change re-executes on the
		// same row; the fingerprint index forbids a second row.
		rev.Status = model.ReviewStatusPending
		rev.TaskID = task.TaskID
		rev.TraceID = task.TraceID
		rev.ErrorMessage = ""
		rev.CompletedAt = nil
		if err := o.store.Review().Save(rev); err != nil {
			return nil, nil, fmt.Errorf("resetting failed review: %w", err)
		}
	}

	claimed, err := o.store.Review().UpdateStatusToRunningIfPending(rev.ID, time.Now())
	if err != nil {
		return nil, nil, fmt.Errorf("claiming review: %w", err)
	}
	if !claimed {
		return nil, nil, fmt.Errorf("review %s is not claimable in status %s", rev.ID, rev.Status)
	}
	rev.Status = model.ReviewStatusRunning
	return rev, nil, nil
}

// execute runs the review pipeline for a claimed review row
func (o *Orchestrator) execute(ctx context.Context, task *model.ReviewTask, rev *model.Review, meta *model.PRMetadata, adapter platform.Adapter, kind platform.EventKind, cfg *model.ReviewConfig) (*model.ReviewResponse, error) {
	start := time.Now()

	blocks, err := o.fetchDiff(ctx, adapter, meta, kind)
	if err != nil {
		if platform.IsAuthError(err) {
			return nil, broker.Permanent(fmt.Errorf("fetching diff: %w", err))
		}
		return nil, fmt.Errorf("fetching diff: %w", err)
	}
	blocks = o.filterIgnored(blocks)

	stats := model.ReviewStats{SeverityCounts: model.CountMap{}}
	var comments []model.ReviewComment
	var summaries []string
	reviewed := 0

	for _, block := range blocks {
		if broker.SoftDeadlineReached(ctx) {
			logger.Warn("soft deadline reached, finishing review with partial coverage",
				zap.String("review_id", rev.ID),
				zap.Int("files_reviewed", reviewed),
				zap.Int("files_total", len(blocks)),
			)
			break
		}

		blockComments, summary, err := o.reviewBlock(ctx, rev, meta, cfg, block, kind, &stats)
		if err != nil {
			return nil, err
		}
		comments = append(comments, blockComments...)
		if summary != "" {
			summaries = append(summaries, summary)
		}
		reviewed++
	}

	for i := range comments {
		stats.SeverityCounts[string(comments[i].Severity)]++
	}
	stats.ExecutionTimeMs = time.Since(start).Milliseconds()

	summary := composeSummary(summaries, reviewed, len(comments))
	resp := &model.ReviewResponse{
		ReviewID: rev.ID,
		Summary:  summary,
		Comments: comments,
		Stats:    stats,
	}

	// Publication precedes persistence of the completed state: a transient
	// posting failure retries the task, and the completed fingerprint is
	// what short-circuits redeliveries.
	if reviewed > 0 {
		if err := o.postReview(ctx, adapter, meta, resp, kind); err != nil {
			if platform.IsAuthError(err) {
				return nil, broker.Permanent(fmt.Errorf("publishing review: %w", err))
			}
			return nil, fmt.Errorf("publishing review: %w", err)
		}
	}

	if err := o.store.Review().CompleteReview(rev.ID, summary, comments, stats); err != nil {
		return nil, fmt.Errorf("persisting completed review: %w", err)
	}
	rev.Status = model.ReviewStatusCompleted
	rev.Stats = stats

	logger.Info("review completed",
		zap.String("review_id", rev.ID),
		zap.String("task_id", task.TaskID),
		zap.String("repo_id", meta.RepoID),
		zap.Int("files", reviewed),
		zap.Int("findings", len(comments)),
		zap.Int64("duration_ms", stats.ExecutionTimeMs),
	)
	return resp, nil
}

// reviewBlock reviews a single file diff: retrieval, suppression lookup,
// one model call, then severity and suppression filtering.
func (o *Orchestrator) reviewBlock(ctx context.Context, rev *model.Review, meta *model.PRMetadata, cfg *model.ReviewConfig, block string, kind platform.EventKind, stats *model.ReviewStats) ([]model.ReviewComment, string, error) {
	filePath := output.DiffFilePath(block)
	level := o.monitor.Level()

	wantRAG := cfg.RAGEnabled() && level.RAGAvailable()
	wantRLHF := cfg.SuppressionsEnabled() && level.SuppressionsAvailable()

	var snippets []prompt.Snippet
	var citations []string
	var constraints []model.ConstraintMatch

	if wantRAG || wantRLHF {
		queryVec, err := o.embedQuery(ctx, block)
		if err != nil {
			// Retrieval is an enhancement; the review proceeds without it
			logger.Warn("query embedding failed, degrading to plain review",
				zap.String("review_id", rev.ID),
				zap.String("file", filePath),
				zap.Error(err),
			)
			telemetry.GetMetrics().RecordRAGRetrieval(ctx, meta.RepoID, 0, false, "embedding_failed")
			wantRAG, wantRLHF = false, false
		}

		if wantRAG {
			snippets, citations = o.retrieveContext(ctx, meta.RepoID, queryVec, cfg.ContextMatches(), stats)
		}
		if wantRLHF {
			constraints = o.retrieveConstraints(rev.ID, meta.RepoID, queryVec)
		}
	}

	suppressions := make([]string, 0, len(constraints))
	for i := range constraints {
		suppressions = append(suppressions, constraints[i].Constraint.ViolationReason)
	}

	spec := o.builder.Build(cfg, &prompt.BuildContext{
		Meta:           meta,
		Push:           kind == platform.EventPush,
		FilePath:       filePath,
		Diff:           block,
		Knowledge:      snippets,
		Suppressions:   suppressions,
		OutputLanguage: o.languageInstruction(cfg),
	})

	result, err := o.invokeModel(ctx, spec, stats)
	if err != nil {
		return nil, "", err
	}

	comments := make([]model.ReviewComment, 0, len(result.Findings))
	for i := range result.Findings {
		c := result.Findings[i].Comment()
		if c.Message == "" {
			continue
		}
		if c.FilePath == "" {
			c.FilePath = filePath
		}
		if !cfg.IncludeAutoFixPatches {
			c.FixPatch = ""
		}
		if !c.Severity.AtLeast(cfg.EffectiveSeverity()) {
			continue
		}
		c.ID = idgen.NewID()
		c.Citations = citations
		comments = append(comments, c)
	}

	comments = o.applySuppressions(ctx, meta.RepoID, comments, constraints, stats)
	return comments, strings.TrimSpace(result.Summary), nil
}

// fetchDiff fetches the diff, refreshing credentials once on an auth failure
func (o *Orchestrator) fetchDiff(ctx context.Context, adapter platform.Adapter, meta *model.PRMetadata, kind platform.EventKind) ([]string, error) {
	blocks, err := adapter.GetDiff(ctx, meta, kind)
	if err == nil || !platform.IsAuthError(err) {
		return blocks, err
	}
	if refreshErr := adapter.RefreshCredentials(ctx); refreshErr != nil {
		return nil, err
	}
	return adapter.GetDiff(ctx, meta, kind)
}

// postReview publishes the review, refreshing credentials once on an auth failure
func (o *Orchestrator) postReview(ctx context.Context, adapter platform.Adapter, meta *model.PRMetadata, resp *model.ReviewResponse, kind platform.EventKind) error {
	err := adapter.PostReview(ctx, meta, resp, kind)
	if err == nil || !platform.IsAuthError(err) {
		return err
	}
	if refreshErr := adapter.RefreshCredentials(ctx); refreshErr != nil {
		return err
	}
	return adapter.PostReview(ctx, meta, resp, kind)
}

// embedQuery embeds the diff block through the LLM plane breaker. The
// returned vector is normalized so store dot products equal cosine
// similarity.
func (o *Orchestrator) embedQuery(ctx context.Context, block string) (model.Vector, error) {
	text := block
	if len(text) > embedQueryLimit {
		text = text[:embedQueryLimit]
	}

	var resp *llm.EmbeddingResponse
	err := o.monitor.Do(health.PlaneLLM, func() error {
		var embedErr error
		resp, embedErr = o.embedder.Embed(ctx, &llm.EmbeddingRequest{Texts: []string{text}})
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Vectors) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	if resp.Usage != nil {
		telemetry.GetMetrics().RecordLLMTokens(ctx, "embedding", resp.Model, int64(resp.Usage.TotalTokens))
	}
	return vectors.Normalize(resp.Vectors[0]), nil
}

// retrieveContext searches the knowledge store for grounding snippets.
// Failures degrade to an empty context instead of failing the review.
func (o *Orchestrator) retrieveContext(ctx context.Context, repoID string, query model.Vector, k int, stats *model.ReviewStats) ([]prompt.Snippet, []string) {
	start := time.Now()
	matches, err := o.store.Knowledge().Search(repoID, query, o.cfg.RAGThreshold, k)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		logger.Warn("knowledge retrieval failed, continuing without context",
			zap.String("repo_id", repoID),
			zap.Error(err),
		)
		telemetry.GetMetrics().RecordRAGRetrieval(ctx, repoID, elapsed, false, "search_failed")
		return nil, nil
	}

	telemetry.GetMetrics().RecordRAGRetrieval(ctx, repoID, elapsed, true, "")
	if len(matches) == 0 {
		return nil, nil
	}

	stats.RAGContextUsed = true
	stats.RAGMatches += len(matches)

	snippets := make([]prompt.Snippet, 0, len(matches))
	citations := make([]string, 0, len(matches))
	for i := range matches {
		snippets = append(snippets, prompt.Snippet{
			Citation: matches[i].Citation(),
			Content:  matches[i].Chunk.Content,
		})
		citations = append(citations, matches[i].Citation())
	}
	return snippets, citations
}

// retrieveConstraints returns active learned constraints whose embedding
// similarity to the query clears the suppression threshold. Confidence is
// not a gate; every active match suppresses.
func (o *Orchestrator) retrieveConstraints(reviewID, repoID string, query model.Vector) []model.ConstraintMatch {
	matches, err := o.store.Constraint().Search(repoID, query, o.cfg.RLHFThreshold, constraintSearchK)
	if err != nil {
		logger.Warn("constraint retrieval failed, continuing without suppressions",
			zap.String("review_id", reviewID),
			zap.String("repo_id", repoID),
			zap.Error(err),
		)
		return nil
	}
	return matches
}

// invokeModel performs one chat completion through the LLM plane breaker,
// refreshing credentials once on an auth failure, and returns the parsed
// structured result.
func (o *Orchestrator) invokeModel(ctx context.Context, spec *prompt.Spec, stats *model.ReviewStats) (*prompt.Result, error) {
	userPrompt, err := o.renderer.Render(spec)
	if err != nil {
		return nil, broker.Permanent(fmt.Errorf("rendering prompt: %w", err))
	}
	systemPrompt, err := o.renderer.RenderSystemPrompt(spec)
	if err != nil {
		return nil, broker.Permanent(fmt.Errorf("rendering system prompt: %w", err))
	}

	req := llm.NewChatRequest(userPrompt).
		WithSystem(systemPrompt).
		WithSchema(prompt.ResultSchema())

	var resp *llm.ChatResponse
	err = o.monitor.Do(health.PlaneLLM, func() error {
		var chatErr error
		resp, chatErr = o.chat.Chat(ctx, req)
		if chatErr != nil && llm.IsAuthError(chatErr) {
			if refreshErr := o.chat.RefreshCredentials(); refreshErr == nil {
				resp, chatErr = o.chat.Chat(ctx, req)
			}
		}
		return chatErr
	})
	if err != nil {
		if llm.IsAuthError(err) {
			return nil, broker.Permanent(fmt.Errorf("chat completion: %w", err))
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if resp.Usage != nil {
		stats.TokensUsed += int64(resp.Usage.TotalTokens)
		telemetry.GetMetrics().RecordLLMTokens(ctx, "chat", resp.Model, int64(resp.Usage.TotalTokens))
	}

	if resp.ParseErr != nil {
		// Malformed output is usually transient; redelivery gets a fresh sample
		return nil, fmt.Errorf("parsing model output: %w", resp.ParseErr)
	}
	result, ok := resp.Parsed.(*prompt.Result)
	if !ok || result == nil {
		return nil, fmt.Errorf("model returned no structured result")
	}
	return result, nil
}

// applySuppressions withholds comments matched by learned constraints.
// Each constraint suppresses at most one comment per block.
func (o *Orchestrator) applySuppressions(ctx context.Context, repoID string, comments []model.ReviewComment, constraints []model.ConstraintMatch, stats *model.ReviewStats) []model.ReviewComment {
	if len(comments) == 0 || len(constraints) == 0 {
		return comments
	}

	suppressed := make([]bool, len(comments))
	for i := range constraints {
		reason := constraints[i].Constraint.ViolationReason
		for j := range comments {
			if suppressed[j] || !overlapsViolation(&comments[j], reason) {
				continue
			}
			suppressed[j] = true
			stats.RLHFConstraintsApplied++
			telemetry.GetMetrics().RecordConstraintSuppression(ctx, repoID,
				model.ConfidenceLevel(constraints[i].Constraint.ConfidenceScore))
			logger.Debug("finding suppressed by learned constraint",
				zap.String("repo_id", repoID),
				zap.String("constraint_id", constraints[i].Constraint.ID),
				zap.String("file", comments[j].FilePath),
			)
			break
		}
	}

	kept := comments[:0]
	for j := range comments {
		if !suppressed[j] {
			kept = append(kept, comments[j])
		}
	}
	return kept
}

// settleFailure records the terminal or retryable outcome of a failed
// execution. Permanent failures close the review row and notify the
// callback; retryable failures leave the row running for redelivery.
func (o *Orchestrator) settleFailure(ctx context.Context, task *model.ReviewTask, rev *model.Review, meta *model.PRMetadata, err error) error {
	if !broker.IsPermanent(err) {
		logger.Warn("review attempt failed, leaving task to redelivery",
			zap.String("review_id", rev.ID),
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
		return err
	}

	if failErr := o.store.Review().FailReview(rev.ID, err.Error()); failErr != nil {
		logger.Error("persisting failed review failed",
			zap.String("review_id", rev.ID),
			zap.Error(failErr),
		)
	}
	o.recordCompletion(ctx, meta.Platform, string(model.ReviewStatusFailed), rev)
	if meta.CallbackURL != "" {
		o.callback.Deliver(ctx, meta.CallbackURL, callback.FailedEvent(meta, task.TaskID, rev.ID, err.Error()))
	}
	return err
}

func (o *Orchestrator) recordCompletion(ctx context.Context, platformName, status string, rev *model.Review) {
	telemetry.GetMetrics().RecordReviewCompleted(ctx, platformName, status,
		float64(rev.Stats.ExecutionTimeMs)/1000)
}

// filterIgnored drops diff blocks whose file path carries an ignored suffix
func (o *Orchestrator) filterIgnored(blocks []string) []string {
	if len(o.ignored) == 0 {
		return blocks
	}
	kept := blocks[:0]
	for _, block := range blocks {
		path := output.DiffFilePath(block)
		if path != "" && hasIgnoredSuffix(path, o.ignored) {
			continue
		}
		kept = append(kept, block)
	}
	return kept
}

// languageInstruction resolves the configured output language into a
// prompt instruction, or "" for the default language.
func (o *Orchestrator) languageInstruction(cfg *model.ReviewConfig) string {
	if cfg.Language == "" {
		return ""
	}
	lang, err := config.ParseLanguage(cfg.Language)
	if err != nil {
		logger.Warn("unknown output language, using default", zap.String("language", cfg.Language))
		return ""
	}
	return lang.PromptInstruction()
}

func hasIgnoredSuffix(path string, suffixes []string) bool {
	lower := strings.ToLower(path)
	for _, suffix := range suffixes {
		if suffix != "" && strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// composeSummary builds the review-level summary from the per-file ones
func composeSummary(summaries []string, files, findings int) string {
	if len(summaries) == 1 {
		return summaries[0]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Reviewed %d file(s), %d finding(s).", files, findings)
	for _, s := range summaries {
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	return b.String()
}

// overlapsViolation reports whether a comment plausibly restates the
// violation a learned constraint was distilled from. The comparison is a
// token overlap between the constraint reason and the comment text.
func overlapsViolation(c *model.ReviewComment, reason string) bool {
	rt := significantTokens(reason)
	if len(rt) == 0 {
		return false
	}
	ct := significantTokens(c.Message + " " + string(c.Type) + " " + c.FilePath)
	if len(ct) == 0 {
		return false
	}

	shared := 0
	for t := range ct {
		if _, ok := rt[t]; ok {
			shared++
		}
	}

	min := len(rt)
	if len(ct) < min {
		min = len(ct)
	}
	return float64(shared)/float64(min) >= 0.3
}

// significantTokens lowercases and splits text, keeping tokens long enough
// to carry meaning
func significantTokens(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, t := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(t) >= 4 {
			tokens[t] = struct{}{}
		}
	}
	return tokens
}
