// Package broker implements the durable task queue between the API
// surface and the worker pool. Delivery is at least once: a dequeued
// message stays on a per-worker in-flight ledger until the worker
// acknowledges it, so a crash mid-task leads to redelivery rather than
// loss. Duplicate executions are absorbed downstream by the task row's
// guarded state transitions and by review fingerprinting.
//
// Two backends are provided, selected by the broker URL scheme:
// redis:// for multi-process deployments and memory:// for tests, the
// check command, and single-binary setups.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/reviewhub/reviewhub/internal/model"
)

const (
	// DefaultResultTTL is how long task outcomes stay readable after
	// the task finishes
	DefaultResultTTL = 24 * time.Hour

	// DefaultVisibilityTimeout is how long a delivery may stay
	// unacknowledged before it is treated as abandoned. It must exceed
	// the hard task time limit, or running tasks get redelivered.
	DefaultVisibilityTimeout = 10 * time.Minute

	// DefaultPollInterval is the dequeue polling cadence
	DefaultPollInterval = 200 * time.Millisecond
)

var (
	// ErrBrokerClosed is returned by operations on a closed broker
	ErrBrokerClosed = errors.New("broker is closed")

	// ErrResultNotFound is returned by GetResult when no outcome is
	// stored for the task, or its retention window has lapsed
	ErrResultNotFound = errors.New("task result not found")
)

// Message is the envelope carried on a queue. The durable task row
// remains the source of truth for task state; the message carries just
// enough for a worker to pick the task up.
type Message struct {
	ID         string          `json:"id"`
	TraceID    string          `json:"trace_id,omitempty"`
	Type       string          `json:"type"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RetryCount int             `json:"retry_count"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewMessage builds the queue envelope for a persisted task row.
func NewMessage(task *model.ReviewTask) (*Message, error) {
	if task == nil {
		return nil, errors.New("task is nil")
	}
	if task.TaskID == "" {
		return nil, errors.New("task has no ID")
	}

	var payload json.RawMessage
	if len(task.Payload) > 0 {
		raw, err := json.Marshal(task.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode task payload: %w", err)
		}
		payload = raw
	}

	queue := task.Queue
	if queue == "" {
		queue = task.Type.Queue()
	}

	return &Message{
		ID:         task.TaskID,
		TraceID:    task.TraceID,
		Type:       string(task.Type),
		Queue:      queue,
		Payload:    payload,
		RetryCount: task.RetryCount,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Delivery is a message leased to a worker. Every delivery must be
// settled with Ack (done) or Requeue (redeliver later); unsettled
// deliveries return to their queue after the visibility timeout.
type Delivery struct {
	Message *Message
	Queue   string
	Worker  string

	// receipt is the backend handle used to settle the lease
	receipt string
}

// TaskResult is the stored outcome of a finished task. It backs
// GET /tasks/{task_id} for ResultTTL after completion.
type TaskResult struct {
	TaskID      string          `json:"task_id"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Traceback   string          `json:"traceback,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Broker is the transport contract shared by the redis and memory
// backends. Backends move bytes; task bookkeeping (state transitions,
// retry accounting, events) lives in the worker pool and dispatcher.
type Broker interface {
	// Enqueue appends a message to its queue for immediate delivery
	Enqueue(ctx context.Context, msg *Message) error

	// EnqueueDelayed schedules a message to become deliverable after delay
	EnqueueDelayed(ctx context.Context, msg *Message, delay time.Duration) error

	// Dequeue blocks until a message is available on one of the queues
	// or ctx is done. Queues are polled in the order given; an empty
	// list means all known queues. The worker name keys the in-flight
	// ledger the delivery is parked on.
	Dequeue(ctx context.Context, worker string, queues []string) (*Delivery, error)

	// Ack settles a delivery as done
	Ack(ctx context.Context, d *Delivery) error

	// Requeue settles a delivery and schedules its message for
	// redelivery after delay. The message is re-serialized, so
	// RetryCount changes made by the caller are carried.
	Requeue(ctx context.Context, d *Delivery, delay time.Duration) error

	// Depths reports the number of deliverable messages per queue.
	// Scheduled and in-flight messages are not counted.
	Depths(ctx context.Context) (map[string]int64, error)

	// SetResult stores the outcome of a task for ResultTTL
	SetResult(ctx context.Context, taskID string, result *TaskResult) error

	// GetResult returns a stored outcome, or ErrResultNotFound
	GetResult(ctx context.Context, taskID string) (*TaskResult, error)

	// ReclaimStale returns abandoned in-flight messages to their queues
	// and reports how many were reclaimed
	ReclaimStale(ctx context.Context) (int, error)

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error

	// Close releases backend resources. In-flight deliveries are left
	// to the visibility timeout.
	Close() error
}

// Options tunes backend behavior. Zero values select the defaults.
type Options struct {
	// ResultTTL is how long task outcomes are retained
	ResultTTL time.Duration

	// VisibilityTimeout is how long a delivery may stay unacknowledged
	// before ReclaimStale returns it to its queue
	VisibilityTimeout time.Duration

	// PollInterval is the dequeue polling cadence
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ResultTTL <= 0 {
		o.ResultTTL = DefaultResultTTL
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Open creates the backend selected by the broker URL scheme:
// redis://host:port/db (or rediss:// for TLS) and memory://.
func Open(brokerURL string, opts Options) (Broker, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return NewMemoryBroker(opts), nil
	case "redis", "rediss":
		return NewRedisBroker(brokerURL, opts)
	default:
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}
