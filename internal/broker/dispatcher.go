// Package broker task dispatch.
// This file implements the write side of the queue: persisting a task
// row, handing the message to the broker, and serving task status reads
// that merge the row with the stored outcome.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/store"
	"github.com/reviewhub/reviewhub/pkg/idgen"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// Dispatcher persists tasks and hands them to the broker. The row is
// written first so the task is observable through GET /tasks/{task_id}
// and recoverable after a crash even if the enqueue fails.
type Dispatcher struct {
	broker Broker
	store  store.Store
	sink   EventSink
}

// NewDispatcher creates a dispatcher. The sink may be nil.
func NewDispatcher(b Broker, st store.Store, sink EventSink) *Dispatcher {
	return &Dispatcher{broker: b, store: st, sink: sink}
}

// Dispatch persists the task and enqueues it. Missing identifiers and
// the queue are filled in from the task type. If the broker rejects the
// message the row is failed so it does not linger as queued.
func (d *Dispatcher) Dispatch(ctx context.Context, task *model.ReviewTask) error {
	if task == nil {
		return errors.New("task is nil")
	}
	if task.Type == "" {
		return errors.New("task has no type")
	}

	if task.TaskID == "" {
		task.TaskID = idgen.NewTaskID()
	}
	if task.TraceID == "" {
		task.TraceID = idgen.NewTraceID()
	}
	if task.Queue == "" {
		task.Queue = task.Type.Queue()
	}
	task.Status = model.TaskStatusQueued

	if err := d.store.Task().Create(task); err != nil {
		return fmt.Errorf("persist task: %w", err)
	}

	msg, err := NewMessage(task)
	if err != nil {
		return fmt.Errorf("build task message: %w", err)
	}

	if err := d.broker.Enqueue(ctx, msg); err != nil {
		reason := "broker unavailable: " + err.Error()
		if markErr := d.store.Task().MarkFailed(task.TaskID, reason); markErr != nil {
			logger.Error("failing undeliverable task failed",
				zap.String("task_id", task.TaskID),
				zap.Error(markErr),
			)
		}
		return fmt.Errorf("enqueue task: %w", err)
	}

	emit(d.sink, Event{
		Type:       EventEnqueued,
		TaskID:     task.TaskID,
		TaskType:   string(task.Type),
		Queue:      task.Queue,
		RetryCount: task.RetryCount,
	})
	logger.Info("task enqueued",
		zap.String("task_id", task.TaskID),
		zap.String("trace_id", task.TraceID),
		zap.String("type", string(task.Type)),
		zap.String("queue", task.Queue),
	)
	return nil
}

// Status returns the observable state of a task: the durable row merged
// with the stored outcome while its retention window lasts.
func (d *Dispatcher) Status(ctx context.Context, taskID string) (*model.TaskStatusResponse, error) {
	task, err := d.store.Task().GetByID(taskID)
	if err != nil {
		return nil, err
	}

	createdAt := task.CreatedAt
	resp := &model.TaskStatusResponse{
		TaskID:      task.TaskID,
		Status:      task.Status,
		Error:       task.ErrorMessage,
		CreatedAt:   &createdAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
	}

	if !task.Status.Terminal() {
		return resp, nil
	}

	result, err := d.broker.GetResult(ctx, taskID)
	if err != nil {
		if !errors.Is(err, ErrResultNotFound) {
			logger.Warn("loading task result failed", zap.String("task_id", taskID), zap.Error(err))
		}
		return resp, nil
	}

	if len(result.Result) > 0 {
		var value any
		if err := json.Unmarshal(result.Result, &value); err == nil {
			resp.Result = value
		}
	}
	if resp.Error == "" && result.Traceback != "" {
		resp.Error = result.Traceback
	}
	return resp, nil
}
