// Package feedback implements the learning loop: developer decisions on
// review comments are recorded in an append-only trail, and rejections are
// distilled into per-repository suppression constraints that future
// reviews apply. Accepting or modifying a comment never creates a
// constraint; only explicit rejections teach the system.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/health"
	"github.com/reviewhub/reviewhub/internal/llm"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/redact"
	"github.com/reviewhub/reviewhub/internal/store"
	"github.com/reviewhub/reviewhub/pkg/logger"
	"github.com/reviewhub/reviewhub/pkg/telemetry"
)

const (
	// duplicateSimilarity is the embedding similarity above which two
	// rejection reasons count as the same violation
	duplicateSimilarity = 0.7

	// fpWindow is the lookback for the false-positive-reduction gauge
	fpWindow = 30 * 24 * time.Hour

	// defaultExpiryDays applies when the learning config leaves expiry unset
	defaultExpiryDays = 90
)

// Processor executes feedback tasks
type Processor struct {
	store    store.Store
	embedder llm.Client
	monitor  *health.Monitor
	cfg      config.LearningConfig
	validate *validator.Validate
}

// NewProcessor creates a feedback processor
func NewProcessor(st store.Store, embedder llm.Client, monitor *health.Monitor, cfg config.LearningConfig) *Processor {
	return &Processor{
		store:    st,
		embedder: embedder,
		monitor:  monitor,
		cfg:      cfg,
		validate: validator.New(),
	}
}

// HandleTask is the broker handler for feedback tasks
func (p *Processor) HandleTask(ctx context.Context, task *model.ReviewTask) (any, error) {
	var req model.FeedbackRequest
	if err := model.DecodePayload(task.Payload, &req); err != nil {
		return nil, broker.Permanent(fmt.Errorf("decoding feedback payload: %w", err))
	}
	return p.Process(ctx, task.TraceID, &req)
}

// Process validates, records, and learns from one feedback submission.
// The returned record is the task result.
func (p *Processor) Process(ctx context.Context, traceID string, req *model.FeedbackRequest) (*model.FeedbackRecord, error) {
	if err := p.validate.Struct(req); err != nil {
		return nil, broker.Permanent(fmt.Errorf("invalid feedback: %w", err))
	}
	action := model.FeedbackAction(req.Action)

	// The snapshot may contain anything the developer pasted; it is
	// redacted before it can reach the audit trail or a constraint.
	snapshot, matches := redact.Redact(req.FinalCodeSnapshot)
	if len(matches) > 0 {
		logger.Info("secrets redacted from feedback snapshot",
			zap.String("repo_id", req.RepoID),
			zap.Int("count", len(matches)),
		)
	}

	record := &model.FeedbackRecord{
		RepoID:            req.RepoID,
		ReviewID:          req.ReviewID,
		CommentID:         req.CommentID,
		UserID:            req.UserID,
		Action:            action,
		Reason:            req.Reason,
		DeveloperComment:  req.DeveloperComment,
		FinalCodeSnapshot: snapshot,
		TraceID:           traceID,
	}
	if err := p.store.Feedback().Append(record); err != nil {
		return nil, fmt.Errorf("appending feedback record: %w", err)
	}
	telemetry.GetMetrics().RecordFeedbackSubmitted(ctx, req.Action)

	if action == model.FeedbackRejected {
		// Learning failures never roll back the recorded feedback; the
		// trail is the source of truth and learning is re-derivable.
		if err := p.learnConstraint(ctx, req, snapshot); err != nil {
			logger.Warn("constraint learning failed, feedback recorded without it",
				zap.String("repo_id", req.RepoID),
				zap.String("feedback_id", record.ID),
				zap.Error(err),
			)
		}
	}

	p.updateReductionGauge(ctx, req.RepoID)
	return record, nil
}

// learnConstraint turns a rejection into a suppression constraint, either
// reinforcing an existing similar one or creating a new one.
func (p *Processor) learnConstraint(ctx context.Context, req *model.FeedbackRequest, snapshot string) error {
	// The snapshot is what future diffs are matched against; the reason
	// lives in the constraint text. Rejections without a snapshot fall
	// back to the reason so the constraint still has an embedding.
	text := snapshot
	if text == "" {
		text = req.Reason
	}

	var resp *llm.EmbeddingResponse
	err := p.monitor.Do(health.PlaneLLM, func() error {
		var embedErr error
		resp, embedErr = p.embedder.Embed(ctx, &llm.EmbeddingRequest{Texts: []string{text}})
		return embedErr
	})
	if err != nil {
		return fmt.Errorf("embedding rejection: %w", err)
	}
	if len(resp.Vectors) == 0 {
		return fmt.Errorf("embedding response contained no vectors")
	}
	vec := model.Vector(resp.Vectors[0])

	expiryDays := p.cfg.ConstraintExpiryDays
	if expiryDays <= 0 {
		expiryDays = defaultExpiryDays
	}
	expiresAt := time.Now().Add(time.Duration(expiryDays) * 24 * time.Hour)

	// An active constraint for the same violation is reinforced: its
	// confidence steps up and its expiry resets.
	active, err := p.store.Constraint().Search(req.RepoID, vec, duplicateSimilarity, 1)
	if err != nil {
		return fmt.Errorf("searching active constraints: %w", err)
	}
	if len(active) > 0 {
		c := active[0].Constraint
		c.Reinforce()
		c.ExpiresAt = expiresAt
		if err := p.store.Constraint().Save(&c); err != nil {
			return fmt.Errorf("reinforcing constraint: %w", err)
		}
		logger.Info("constraint reinforced",
			zap.String("repo_id", req.RepoID),
			zap.String("constraint_id", c.ID),
			zap.Float64("confidence", c.ConfidenceScore),
			zap.Int("version", c.Version),
		)
		return nil
	}

	// A lapsed near-duplicate means the violation recurred after expiry;
	// the new constraint starts warmer, capped so cold history alone can
	// never reach suppression strength.
	confidence := model.ConstraintInitialConfidence
	lapsed, err := p.store.Constraint().SearchAny(req.RepoID, vec, duplicateSimilarity, 1)
	if err != nil {
		return fmt.Errorf("searching lapsed constraints: %w", err)
	}
	if len(lapsed) > 0 {
		confidence += model.ConstraintReinforceStep
		if confidence > model.ConstraintColdStartCap {
			confidence = model.ConstraintColdStartCap
		}
	}

	constraint := &model.LearnedConstraint{
		RepoID:          req.RepoID,
		ViolationReason: req.Reason,
		CodePattern:     snapshot,
		UserReason:      req.DeveloperComment,
		Embedding:       vec,
		ConfidenceScore: confidence,
		ExpiresAt:       expiresAt,
	}
	if err := p.store.Constraint().Create(constraint); err != nil {
		return fmt.Errorf("creating constraint: %w", err)
	}

	logger.Info("constraint learned",
		zap.String("repo_id", req.RepoID),
		zap.String("constraint_id", constraint.ID),
		zap.Float64("confidence", constraint.ConfidenceScore),
	)
	return nil
}

// updateReductionGauge recomputes the windowed rejection ratio for the repo
func (p *Processor) updateReductionGauge(ctx context.Context, repoID string) {
	since := time.Now().Add(-fpWindow)
	total, err := p.store.Feedback().CountSince(repoID, since)
	if err != nil || total == 0 {
		return
	}
	rejected, err := p.store.Feedback().CountByActionSince(repoID, model.FeedbackRejected, since)
	if err != nil {
		return
	}
	telemetry.GetMetrics().SetFalsePositiveReduction(ctx, repoID, float64(rejected)/float64(total))
}
