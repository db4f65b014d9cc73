// Package scheduler runs the periodic maintenance jobs: the constraint
// expiry sweep, retention enforcement for reviews, knowledge, and task
// records, scheduled re-indexing of registered repositories, and
// refreshing the observability gauges. It owns no business logic of its
// own; every job delegates to the stores or enqueues tasks.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/store"
	"github.com/reviewhub/reviewhub/pkg/logger"
	"github.com/reviewhub/reviewhub/pkg/telemetry"
)

const (
	// ExpirySchedule runs the constraint expiry sweep hourly
	ExpirySchedule = "0 * * * *"

	// RetentionSchedule enforces data retention daily at 3 AM
	RetentionSchedule = "0 3 * * *"

	// GaugeSchedule refreshes queue and learning gauges
	GaugeSchedule = "@every 1m"

	// reindexPageSize bounds one registry page during a re-index sweep
	reindexPageSize = 100
)

// Retention defaults, in days
const (
	DefaultReviewRetentionDays     = 365
	DefaultKnowledgeRetentionDays  = 180
	DefaultFailedTaskRetentionDays = 30
)

// Options wires the scheduler's collaborators
type Options struct {
	Store      store.Store
	Broker     broker.Broker
	Dispatcher *broker.Dispatcher
	Retention  config.RetentionConfig

	// ReindexInterval spaces scheduled re-index runs; zero disables them.
	ReindexInterval time.Duration

	// PlatformTokens maps platform name to its API token so scheduled
	// re-index clones can authenticate.
	PlatformTokens map[string]string
}

// Scheduler owns the cron jobs for background maintenance
type Scheduler struct {
	store        store.Store
	broker       broker.Broker
	disp         *broker.Dispatcher
	cfg          config.RetentionConfig
	reindexEvery time.Duration
	tokens       map[string]string
	cron         *cron.Cron
	mu           sync.Mutex
}

// NewScheduler creates a scheduler, applying retention defaults for
// unset values
func NewScheduler(opts Options) *Scheduler {
	cfg := opts.Retention
	if cfg.ReviewDays <= 0 {
		cfg.ReviewDays = DefaultReviewRetentionDays
	}
	if cfg.KnowledgeDays <= 0 {
		cfg.KnowledgeDays = DefaultKnowledgeRetentionDays
	}
	if cfg.FailedTaskDays <= 0 {
		cfg.FailedTaskDays = DefaultFailedTaskRetentionDays
	}
	return &Scheduler{
		store:        opts.Store,
		broker:       opts.Broker,
		disp:         opts.Dispatcher,
		cfg:          cfg,
		reindexEvery: opts.ReindexInterval,
		tokens:       opts.PlatformTokens,
		cron:         cron.New(),
	}
}

// Start schedules the maintenance jobs and runs an initial expiry sweep
// so a long-stopped instance catches up immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cron.AddFunc(ExpirySchedule, s.SweepExpiredConstraints); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(RetentionSchedule, s.EnforceRetention); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(GaugeSchedule, s.RefreshGauges); err != nil {
		return err
	}
	if s.disp != nil && s.reindexEvery > 0 {
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.reindexEvery), s.ReindexRepositories); err != nil {
			return err
		}
	}

	s.cron.Start()
	logger.Info("scheduler started",
		zap.String("expiry_schedule", ExpirySchedule),
		zap.String("retention_schedule", RetentionSchedule),
		zap.Duration("reindex_interval", s.reindexEvery),
		zap.Int("review_retention_days", s.cfg.ReviewDays),
		zap.Int("knowledge_retention_days", s.cfg.KnowledgeDays),
		zap.Int("failed_task_retention_days", s.cfg.FailedTaskDays),
	)

	go s.SweepExpiredConstraints()
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		logger.Info("scheduler stopped")
	}
}

// SweepExpiredConstraints deletes lapsed learned constraints. Expired
// constraints must never suppress a finding; the query-side expiry filter
// already guarantees that, the sweep reclaims the rows.
func (s *Scheduler) SweepExpiredConstraints() {
	ctx := context.Background()

	deleted, err := s.store.Constraint().DeleteExpired(time.Now())
	if err != nil {
		logger.Error("constraint expiry sweep failed", zap.Error(err))
		return
	}

	total := int64(0)
	for repoID, count := range deleted {
		total += count
		telemetry.GetMetrics().RecordConstraintExpirations(ctx, repoID, count)
	}
	if total > 0 {
		logger.Info("expired constraints removed",
			zap.Int64("count", total),
			zap.Int("repositories", len(deleted)),
		)
	}
}

// EnforceRetention deletes data past its retention window
func (s *Scheduler) EnforceRetention() {
	now := time.Now()

	reviews, err := s.store.Review().DeleteCompletedBefore(now.AddDate(0, 0, -s.cfg.ReviewDays))
	if err != nil {
		logger.Error("review retention failed", zap.Error(err))
	}

	chunks, err := s.store.Knowledge().DeleteExpired(now.AddDate(0, 0, -s.cfg.KnowledgeDays))
	if err != nil {
		logger.Error("knowledge retention failed", zap.Error(err))
	}

	tasks, err := s.store.Task().DeleteTerminalBefore(now.AddDate(0, 0, -s.cfg.FailedTaskDays))
	if err != nil {
		logger.Error("task retention failed", zap.Error(err))
	}

	if reviews > 0 || chunks > 0 || tasks > 0 {
		logger.Info("retention enforced",
			zap.Int64("reviews_deleted", reviews),
			zap.Int64("chunks_deleted", chunks),
			zap.Int64("tasks_deleted", tasks),
		)
	}
}

// ReindexRepositories enqueues a shallow indexing task for every
// registered repository whose last index run is older than the re-index
// interval. Repositories that were never indexed, or whose clone URL is
// unknown, are left alone; their first index must come through the API
// with explicit credentials.
func (s *Scheduler) ReindexRepositories() {
	ctx := context.Background()
	cutoff := time.Now().Add(-s.reindexEvery)

	enqueued := 0
	for offset := 0; ; offset += reindexPageSize {
		repos, _, err := s.store.Repository().List(reindexPageSize, offset)
		if err != nil {
			logger.Error("listing repositories for re-index failed", zap.Error(err))
			return
		}
		if len(repos) == 0 {
			break
		}

		for i := range repos {
			repo := &repos[i]
			if repo.LastIndexedAt == nil || repo.GitURL == "" {
				continue
			}
			if repo.LastIndexedAt.After(cutoff) {
				continue
			}
			if err := s.enqueueReindex(ctx, repo); err != nil {
				logger.Warn("enqueueing re-index failed",
					zap.String("repo_id", repo.RepoID),
					zap.Error(err),
				)
				continue
			}
			enqueued++
		}

		if len(repos) < reindexPageSize {
			break
		}
	}

	if enqueued > 0 {
		logger.Info("scheduled re-index enqueued", zap.Int("repositories", enqueued))
	}
}

func (s *Scheduler) enqueueReindex(ctx context.Context, repo *model.Repository) error {
	payload, err := model.EncodePayload(&model.IndexRequest{
		RepoID:      repo.RepoID,
		GitURL:      repo.GitURL,
		AccessToken: s.tokens[repo.Platform],
		Branch:      repo.DefaultBranch,
		IndexDepth:  model.IndexDepthShallow,
	})
	if err != nil {
		return err
	}
	return s.disp.Dispatch(ctx, &model.ReviewTask{
		Type:    model.TaskTypeIndexing,
		RepoID:  repo.RepoID,
		Payload: payload,
	})
}

// RefreshGauges updates the queue depth, constraint count, and
// false-positive-reduction gauges
func (s *Scheduler) RefreshGauges() {
	ctx := context.Background()
	m := telemetry.GetMetrics()

	if s.broker != nil {
		depths, err := s.broker.Depths(ctx)
		if err != nil {
			logger.Warn("reading queue depths failed", zap.Error(err))
		} else {
			for queue, depth := range depths {
				m.SetQueueDepth(ctx, queue, depth)
			}
		}
	}

	counts, err := s.store.Constraint().ActiveRepoCounts(time.Now())
	if err != nil {
		logger.Warn("reading constraint counts failed", zap.Error(err))
		return
	}

	since := time.Now().Add(-30 * 24 * time.Hour)
	for repoID, count := range counts {
		m.SetConstraintCount(ctx, repoID, count)

		total, err := s.store.Feedback().CountSince(repoID, since)
		if err != nil || total == 0 {
			continue
		}
		rejected, err := s.store.Feedback().CountByActionSince(repoID, model.FeedbackRejected, since)
		if err != nil {
			continue
		}
		m.SetFalsePositiveReduction(ctx, repoID, float64(rejected)/float64(total))
	}
}
