package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for all application spans
const TracerName = "github.com/reviewhub/reviewhub"

// Tracer returns the application tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a named span. The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// SpanFromContext returns the span in ctx, or a no-op span
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// SetSpanError records an error on the span and sets its status to error
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanOK sets the span status to OK
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes sets attributes on the span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// Shared attribute keys so span consumers see consistent naming
var (
	// Task attributes
	AttrTaskID    = attribute.Key("task.id")
	AttrTaskType  = attribute.Key("task.type")
	AttrTaskQueue = attribute.Key("task.queue")
	AttrTaskRetry = attribute.Key("task.retry_count")

	// Repository attributes
	AttrRepoID       = attribute.Key("repo.id")
	AttrRepoURL      = attribute.Key("repo.url")
	AttrRepoPlatform = attribute.Key("repo.platform")
	AttrRepoRef      = attribute.Key("repo.ref")

	// Review attributes
	AttrReviewStatus   = attribute.Key("review.status")
	AttrReviewFindings = attribute.Key("review.findings")
	AttrPRNumber       = attribute.Key("review.pr_number")

	// Indexing attributes
	AttrIndexDepth  = attribute.Key("index.depth")
	AttrIndexChunks = attribute.Key("index.chunks")

	// Model attributes
	AttrModelType = attribute.Key("model.type")
	AttrModelName = attribute.Key("model.name")

	// Result attributes
	AttrDurationMs = attribute.Key("duration.ms")
)

// WithTaskAttributes returns span start options with task attributes
func WithTaskAttributes(taskID, taskType, queue string) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrTaskID.String(taskID),
		AttrTaskType.String(taskType),
		AttrTaskQueue.String(queue),
	)
}

// WithRepoAttributes returns span start options with repository attributes
func WithRepoAttributes(repoID, platform string) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrRepoID.String(repoID),
		AttrRepoPlatform.String(platform),
	)
}
