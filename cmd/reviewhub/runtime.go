package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/callback"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/database"
	"github.com/reviewhub/reviewhub/internal/feedback"
	"github.com/reviewhub/reviewhub/internal/health"
	"github.com/reviewhub/reviewhub/internal/indexer"
	"github.com/reviewhub/reviewhub/internal/llm"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/platform"
	"github.com/reviewhub/reviewhub/internal/review"
	"github.com/reviewhub/reviewhub/internal/scheduler"
	"github.com/reviewhub/reviewhub/internal/shared"
	"github.com/reviewhub/reviewhub/internal/store"
	"github.com/reviewhub/reviewhub/pkg/logger"
	"github.com/reviewhub/reviewhub/pkg/telemetry"
)

// runtime holds the wired service components shared by the serve,
// worker and submit commands.
type runtime struct {
	cfg      *config.Config
	store    store.Store
	queue    broker.Broker
	disp     *broker.Dispatcher
	adapters map[string]platform.Adapter
	llm      llm.Client
	monitor  *health.Monitor
	tel      *telemetry.Telemetry
	pool     *broker.Pool
	sched    *scheduler.Scheduler
	cancel   context.CancelFunc
}

// taskEventSink forwards broker lifecycle events to metrics
func taskEventSink(ev broker.Event) {
	telemetry.GetMetrics().RecordTaskEvent(context.Background(), ev.Queue, string(ev.Type))
}

// buildRuntime wires storage, broker, platform adapters, the LLM client
// and the health monitor. When withWorkers is set it also builds the
// task executors, the worker pool and the scheduler, and recovers tasks
// stranded by a previous crash.
func buildRuntime(cfg *config.Config, withWorkers bool) (*runtime, error) {
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := database.Init(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	dataStore := store.NewStore(database.Get())

	queue, err := broker.Open(cfg.Broker.URL, broker.Options{
		ResultTTL: time.Duration(cfg.Broker.ResultTTLHours) * time.Hour,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open broker: %w", err)
	}

	adapters := shared.InitAdapters(cfg)
	llmClient, err := shared.InitLLMClient(cfg)
	if err != nil {
		queue.Close()
		database.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	monitor := health.NewMonitor(time.Duration(cfg.Health.ProbeInterval) * time.Second)
	monitor.RegisterProbe(health.PlaneStore, func(context.Context) error {
		return database.HealthCheck()
	})
	monitor.RegisterProbe(health.PlaneQueue, queue.Ping)
	monitor.RegisterProbe(health.PlaneLLM, func(context.Context) error {
		if !llmClient.Available() {
			return fmt.Errorf("llm provider %s has no credentials", llmClient.Name())
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go monitor.Run(ctx)

	rt := &runtime{
		cfg:      cfg,
		store:    dataStore,
		queue:    queue,
		disp:     broker.NewDispatcher(queue, dataStore, taskEventSink),
		adapters: adapters,
		llm:      llmClient,
		monitor:  monitor,
		tel:      tel,
		cancel:   cancel,
	}

	if withWorkers {
		if err := rt.buildWorkers(ctx); err != nil {
			rt.Close()
			return nil, err
		}
	}

	return rt, nil
}

// buildWorkers builds the task executors, worker pool and scheduler
func (rt *runtime) buildWorkers(ctx context.Context) error {
	cfg := rt.cfg

	orchestrator := review.NewOrchestrator(review.Options{
		Store:    rt.store,
		Chat:     rt.llm,
		Embedder: rt.llm,
		Adapters: rt.adapters,
		Monitor:  rt.monitor,
		Review:   cfg.Review,
		Ignored:  cfg.Indexing.IgnoredSuffixes,
		Callback: callback.NewClient(cfg.Callback),
	})

	repoIndexer, err := indexer.NewIndexer(rt.store, rt.llm, rt.monitor, cfg.Indexing)
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}

	learner := feedback.NewProcessor(rt.store, rt.llm, rt.monitor, cfg.Learning)

	pool := broker.NewPool(ctx, rt.queue, rt.store, broker.PoolConfig{
		Concurrency:     cfg.Worker.Concurrency,
		Queues:          cfg.Worker.Queues,
		HardTimeout:     cfg.Worker.HardTimeout(),
		MaxTasksPerSlot: cfg.Worker.MaxTasksPerWorker,
		Retry: broker.RetryPolicy{
			MaxRetries:     cfg.Worker.MaxRetries,
			InitialBackoff: time.Duration(cfg.Worker.RetryBackoff) * time.Second,
			MaxBackoff:     time.Duration(cfg.Worker.RetryBackoffMax) * time.Second,
			JitterPercent:  broker.DefaultJitterPercent,
		},
	}, taskEventSink)
	pool.Register(model.TaskTypeCodeReview, orchestrator.HandleTask)
	pool.Register(model.TaskTypeIndexing, repoIndexer.HandleTask)
	pool.Register(model.TaskTypeFeedback, learner.HandleTask)

	// Re-enqueue tasks stranded by a previous crash before consuming
	recovered, err := broker.RecoverTasks(ctx, rt.store, rt.queue, broker.DefaultRecoveryConfig(), taskEventSink)
	if err != nil {
		logger.Warn("Task recovery failed", zap.Error(err))
	} else if recovered > 0 {
		logger.Info("Recovered stranded tasks", zap.Int("count", recovered))
	}

	pool.Start()
	rt.pool = pool

	tokens := make(map[string]string, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		tokens[p.Type] = p.Token
	}
	rt.sched = scheduler.NewScheduler(scheduler.Options{
		Store:           rt.store,
		Broker:          rt.queue,
		Dispatcher:      rt.disp,
		Retention:       cfg.Retention,
		ReindexInterval: cfg.Indexing.ReindexInterval(),
		PlatformTokens:  tokens,
	})
	if err := rt.sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

// Close stops workers and releases all runtime resources
func (rt *runtime) Close() {
	if rt.sched != nil {
		rt.sched.Stop()
	}
	if rt.pool != nil {
		rt.pool.Stop()
	}
	rt.cancel()
	if rt.queue != nil {
		if err := rt.queue.Close(); err != nil {
			logger.Error("Failed to close broker", zap.Error(err))
		}
	}
	if err := database.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.tel.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown telemetry", zap.Error(err))
	}
}
