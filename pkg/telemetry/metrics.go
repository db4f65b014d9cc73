// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/pkg/logger"
)

const (
	// MeterName is the default meter name for the application
	MeterName = "github.com/reviewhub/reviewhub"
)

// Metrics holds all application metrics
type Metrics struct {
	// Webhook and review metrics
	WebhookReceived metric.Int64Counter
	ReviewDuration  metric.Float64Histogram

	// RAG retrieval metrics
	RAGRetrievalSuccess metric.Int64Counter
	RAGRetrievalFailure metric.Int64Counter
	RAGRetrievalLatency metric.Float64Histogram

	// Indexing metrics
	IndexingDuration metric.Float64Histogram
	SecretsFound     metric.Int64Counter

	// LLM metrics
	LLMTokens metric.Int64Counter

	// Constraint and feedback metrics
	FeedbackSubmitted      metric.Int64Counter
	ConstraintSuppressions metric.Int64Counter
	ConstraintExpirations  metric.Int64Counter
	ConstraintCount        metric.Int64Gauge
	FalsePositiveReduction metric.Float64Gauge

	// Task queue metrics
	TaskEvents        metric.Int64Counter
	QueueDepth        metric.Int64Gauge
	WorkerActiveTasks metric.Int64Gauge

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Error metrics
	ErrorsTotal metric.Int64Counter
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		var err error
		globalMetrics, err = initMetrics()
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			// Return empty metrics to avoid nil pointer
			globalMetrics = &Metrics{}
		}
	})
	return globalMetrics
}

// initMetrics initializes all application metrics
func initMetrics() (*Metrics, error) {
	meter := otel.Meter(MeterName)
	m := &Metrics{}

	var err error

	// Webhook and review metrics
	m.WebhookReceived, err = meter.Int64Counter(
		"reviewhub_webhook_received_total",
		metric.WithDescription("Total number of webhook deliveries accepted"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	m.ReviewDuration, err = meter.Float64Histogram(
		"reviewhub_review_duration_seconds",
		metric.WithDescription("End-to-end duration of review tasks in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	// RAG retrieval metrics
	m.RAGRetrievalSuccess, err = meter.Int64Counter(
		"reviewhub_rag_retrieval_success_total",
		metric.WithDescription("Total number of successful context retrievals"),
		metric.WithUnit("{retrieval}"),
	)
	if err != nil {
		return nil, err
	}

	m.RAGRetrievalFailure, err = meter.Int64Counter(
		"reviewhub_rag_retrieval_failure_total",
		metric.WithDescription("Total number of failed context retrievals"),
		metric.WithUnit("{retrieval}"),
	)
	if err != nil {
		return nil, err
	}

	m.RAGRetrievalLatency, err = meter.Float64Histogram(
		"reviewhub_rag_retrieval_latency_seconds",
		metric.WithDescription("Latency of context retrieval queries in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	// Indexing metrics
	m.IndexingDuration, err = meter.Float64Histogram(
		"reviewhub_indexing_duration_seconds",
		metric.WithDescription("Duration of repository indexing runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, err
	}

	m.SecretsFound, err = meter.Int64Counter(
		"reviewhub_indexing_secrets_found_total",
		metric.WithDescription("Total number of secrets detected and redacted during indexing"),
		metric.WithUnit("{secret}"),
	)
	if err != nil {
		return nil, err
	}

	// LLM metrics
	m.LLMTokens, err = meter.Int64Counter(
		"reviewhub_llm_tokens_total",
		metric.WithDescription("Total number of LLM tokens consumed"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	// Constraint and feedback metrics
	m.FeedbackSubmitted, err = meter.Int64Counter(
		"reviewhub_feedback_submitted_total",
		metric.WithDescription("Total number of developer feedback submissions"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, err
	}

	m.ConstraintSuppressions, err = meter.Int64Counter(
		"reviewhub_constraint_suppressions_total",
		metric.WithDescription("Total number of findings suppressed by learned constraints"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		return nil, err
	}

	m.ConstraintExpirations, err = meter.Int64Counter(
		"reviewhub_constraint_expirations_total",
		metric.WithDescription("Total number of learned constraints expired by the sweep"),
		metric.WithUnit("{constraint}"),
	)
	if err != nil {
		return nil, err
	}

	m.ConstraintCount, err = meter.Int64Gauge(
		"reviewhub_constraint_count",
		metric.WithDescription("Number of active learned constraints per repository"),
		metric.WithUnit("{constraint}"),
	)
	if err != nil {
		return nil, err
	}

	m.FalsePositiveReduction, err = meter.Float64Gauge(
		"reviewhub_false_positive_reduction_ratio",
		metric.WithDescription("Fraction of candidate findings suppressed by learned constraints"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	// Task queue metrics
	m.TaskEvents, err = meter.Int64Counter(
		"reviewhub_task_events_total",
		metric.WithDescription("Total number of task lifecycle events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.QueueDepth, err = meter.Int64Gauge(
		"reviewhub_queue_depth",
		metric.WithDescription("Number of tasks waiting per queue"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	m.WorkerActiveTasks, err = meter.Int64Gauge(
		"reviewhub_worker_active_tasks",
		metric.WithDescription("Number of tasks currently executing per worker"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	// HTTP metrics
	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"reviewhub_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"reviewhub_http_request_duration_seconds",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	// Error metrics
	m.ErrorsTotal, err = meter.Int64Counter(
		"reviewhub_error_total",
		metric.WithDescription("Total number of errors by component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Metrics initialized successfully")
	return m, nil
}

// RecordWebhookReceived records an accepted webhook delivery
func (m *Metrics) RecordWebhookReceived(ctx context.Context, platform string) {
	if m.WebhookReceived == nil {
		return
	}
	m.WebhookReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.String("platform", platform)),
	)
}

// RecordReviewCompleted records a finished review task
func (m *Metrics) RecordReviewCompleted(ctx context.Context, platform, status string, durationSeconds float64) {
	if m.ReviewDuration == nil {
		return
	}
	m.ReviewDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(
			attribute.String("platform", platform),
			attribute.String("status", status),
		),
	)
}

// RecordRAGRetrieval records the outcome and latency of a context retrieval.
// The reason attribute is only attached to failures.
func (m *Metrics) RecordRAGRetrieval(ctx context.Context, repoID string, durationSeconds float64, success bool, reason string) {
	if success {
		if m.RAGRetrievalSuccess != nil {
			m.RAGRetrievalSuccess.Add(ctx, 1)
		}
	} else {
		if m.RAGRetrievalFailure != nil {
			m.RAGRetrievalFailure.Add(ctx, 1,
				metric.WithAttributes(attribute.String("reason", reason)),
			)
		}
	}
	if m.RAGRetrievalLatency != nil {
		m.RAGRetrievalLatency.Record(ctx, durationSeconds,
			metric.WithAttributes(attribute.String("repo_id", repoID)),
		)
	}
}

// RecordIndexingCompleted records a finished indexing run
func (m *Metrics) RecordIndexingCompleted(ctx context.Context, repoID, depth string, durationSeconds float64) {
	if m.IndexingDuration == nil {
		return
	}
	m.IndexingDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(
			attribute.String("repo_id", repoID),
			attribute.String("depth", depth),
		),
	)
}

// RecordSecretsFound records secrets detected during indexing
func (m *Metrics) RecordSecretsFound(ctx context.Context, repoID, secretType string, count int64) {
	if m.SecretsFound == nil || count <= 0 {
		return
	}
	m.SecretsFound.Add(ctx, count,
		metric.WithAttributes(
			attribute.String("repo_id", repoID),
			attribute.String("secret_type", secretType),
		),
	)
}

// RecordLLMTokens records token consumption for a model call
func (m *Metrics) RecordLLMTokens(ctx context.Context, modelType, modelName string, tokens int64) {
	if m.LLMTokens == nil || tokens <= 0 {
		return
	}
	m.LLMTokens.Add(ctx, tokens,
		metric.WithAttributes(
			attribute.String("model_type", modelType),
			attribute.String("model_name", modelName),
		),
	)
}

// RecordFeedbackSubmitted records a developer feedback submission
func (m *Metrics) RecordFeedbackSubmitted(ctx context.Context, action string) {
	if m.FeedbackSubmitted == nil {
		return
	}
	m.FeedbackSubmitted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", action)),
	)
}

// RecordConstraintSuppression records a finding suppressed by a learned constraint
func (m *Metrics) RecordConstraintSuppression(ctx context.Context, repoID, confidenceLevel string) {
	if m.ConstraintSuppressions == nil {
		return
	}
	m.ConstraintSuppressions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("repo_id", repoID),
			attribute.String("confidence_level", confidenceLevel),
		),
	)
}

// RecordConstraintExpirations records constraints removed by the expiry sweep
func (m *Metrics) RecordConstraintExpirations(ctx context.Context, repoID string, count int64) {
	if m.ConstraintExpirations == nil || count <= 0 {
		return
	}
	m.ConstraintExpirations.Add(ctx, count,
		metric.WithAttributes(attribute.String("repo_id", repoID)),
	)
}

// SetConstraintCount sets the active constraint gauge for a repository
func (m *Metrics) SetConstraintCount(ctx context.Context, repoID string, count int64) {
	if m.ConstraintCount == nil {
		return
	}
	m.ConstraintCount.Record(ctx, count,
		metric.WithAttributes(attribute.String("repo_id", repoID)),
	)
}

// SetFalsePositiveReduction sets the suppression ratio gauge for a repository
func (m *Metrics) SetFalsePositiveReduction(ctx context.Context, repoID string, ratio float64) {
	if m.FalsePositiveReduction == nil {
		return
	}
	m.FalsePositiveReduction.Record(ctx, ratio,
		metric.WithAttributes(attribute.String("repo_id", repoID)),
	)
}

// RecordTaskEvent records a task lifecycle event (enqueued, started, succeeded, retried, failed)
func (m *Metrics) RecordTaskEvent(ctx context.Context, queue, event string) {
	if m.TaskEvents == nil {
		return
	}
	m.TaskEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("queue_name", queue),
			attribute.String("event", event),
		),
	)
}

// SetQueueDepth sets the waiting-task gauge for a queue
func (m *Metrics) SetQueueDepth(ctx context.Context, queue string, depth int64) {
	if m.QueueDepth == nil {
		return
	}
	m.QueueDepth.Record(ctx, depth,
		metric.WithAttributes(attribute.String("queue_name", queue)),
	)
}

// SetWorkerActiveTasks sets the executing-task gauge for a worker
func (m *Metrics) SetWorkerActiveTasks(ctx context.Context, workerName string, active int64) {
	if m.WorkerActiveTasks == nil {
		return
	}
	m.WorkerActiveTasks.Record(ctx, active,
		metric.WithAttributes(attribute.String("worker_name", workerName)),
	)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m.HTTPRequestsTotal != nil {
		m.HTTPRequestsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
				attribute.Int("status_code", statusCode),
			),
		)
	}
	if m.HTTPRequestDuration != nil {
		m.HTTPRequestDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
			),
		)
	}
}

// RecordError records an error attributed to a component
func (m *Metrics) RecordError(ctx context.Context, component string) {
	if m.ErrorsTotal == nil {
		return
	}
	m.ErrorsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("component", component)),
	)
}
