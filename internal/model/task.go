// Package model defines the data models for the application.
// This file defines the observable task record backing GET /tasks/{id}
// and startup recovery.
package model

import (
	"encoding/json"
	"time"

	"github.com/reviewhub/reviewhub/consts"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is final. Terminal tasks are immutable.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo reports whether the transition is allowed.
// The lifecycle forms a DAG: queued → processing → {completed, failed};
// rollback is forbidden. Re-entering processing from processing is allowed
// to account for broker redelivery after a worker crash.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusQueued:
		return next == TaskStatusProcessing || next == TaskStatusFailed
	case TaskStatusProcessing:
		return next == TaskStatusProcessing || next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// TaskType identifies the work a task performs and selects its queue
type TaskType string

const (
	TaskTypeCodeReview TaskType = "code_review"
	TaskTypeIndexing   TaskType = "indexing"
	TaskTypeFeedback   TaskType = "feedback"
)

// Queue returns the named queue this task type is routed to
func (t TaskType) Queue() string {
	switch t {
	case TaskTypeCodeReview:
		return consts.QueueCodeReview
	case TaskTypeIndexing:
		return consts.QueueIndexing
	case TaskTypeFeedback:
		return consts.QueueFeedback
	default:
		return consts.QueueDefault
	}
}

// ReviewTask is the durable record of a dispatched task. The broker owns
// delivery; this row makes task state observable and enables recovery of
// tasks stranded by a crash.
type ReviewTask struct {
	TaskID    string    `gorm:"primarykey;size:36" json:"task_id"` // uuid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`

	TraceID string   `gorm:"size:36;not null" json:"trace_id"`
	Type    TaskType `gorm:"size:50;not null;index" json:"type"`
	Queue   string   `gorm:"size:50;not null;index" json:"queue"`
	RepoID  string   `gorm:"size:255;index" json:"repo_id,omitempty"`

	Status     TaskStatus `gorm:"size:20;not null;default:queued;index" json:"status"`
	RetryCount int        `gorm:"default:0;not null" json:"retry_count"`

	// Payload is the queue message body, retained for redelivery on recovery
	Payload JSONMap `gorm:"type:text" json:"-"`

	// Timing
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error handling
	ErrorMessage string `gorm:"type:text" json:"error,omitempty"`
}

// ReviewTaskPayload is the message body of a code_review task. Event
// distinguishes pull request reviews from push reviews, which publish to
// a tracking issue instead of a native review.
type ReviewTaskPayload struct {
	Meta   PRMetadata   `json:"meta"`
	Config ReviewConfig `json:"config"`
	Event  string       `json:"event"`
}

// EncodePayload converts a typed payload into the JSONMap stored on the
// task row. The round trip through JSON keeps the stored form identical
// to what the queue delivers.
func EncodePayload(v interface{}) (JSONMap, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m JSONMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodePayload unmarshals a task payload into a typed value
func DecodePayload(m JSONMap, v interface{}) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// TaskStatusResponse is the wire form of GET /tasks/{task_id}
type TaskStatusResponse struct {
	TaskID      string      `json:"task_id"`
	Status      TaskStatus  `json:"status"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// TaskQuery represents query parameters for listing tasks
type TaskQuery struct {
	Status TaskStatus `json:"status,omitempty"`
	Type   TaskType   `json:"type,omitempty"`
	Queue  string     `json:"queue,omitempty"`
	RepoID string     `json:"repo_id,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}
