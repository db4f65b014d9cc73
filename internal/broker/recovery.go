// Package broker startup recovery.
// This file reconciles the durable task table with the broker after a
// restart, so tasks stranded by a crash or a lost broker are not silent
// losses.
package broker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/store"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// DefaultStaleAfter is how long an unfinished task row may go untouched
// before recovery assumes its message was lost. It exceeds the hard
// task time limit plus the longest retry backoff, so neither a running
// task nor one waiting out its backoff is mistaken for stranded.
const DefaultStaleAfter = 20 * time.Minute

// RecoveryConfig controls startup reconciliation
type RecoveryConfig struct {
	// StaleAfter is the minimum age of an unfinished row before it is
	// treated as stranded
	StaleAfter time.Duration

	// Retry decides whether an interrupted task still has budget left
	Retry RetryPolicy
}

// DefaultRecoveryConfig returns the standard recovery settings
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		StaleAfter: DefaultStaleAfter,
		Retry:      DefaultRetryPolicy(),
	}
}

// RecoverTasks re-enqueues unfinished tasks whose rows have gone stale.
// Queued rows are re-enqueued as they were. Processing rows were
// interrupted mid-flight: they are re-enqueued with their retry count
// incremented, or failed outright when the budget is already spent.
// Redelivery of a task that is in fact still alive elsewhere is
// absorbed by the row's guarded state transitions and by review
// fingerprinting.
func RecoverTasks(ctx context.Context, st store.Store, b Broker, cfg RecoveryConfig, sink EventSink) (int, error) {
	return recoverTasks(ctx, st, b, cfg, sink, false)
}

// RecoverAll treats every unfinished row as stranded, regardless of
// age. Use it when starting against a broker known to be empty, such
// as the memory backend after a process restart.
func RecoverAll(ctx context.Context, st store.Store, b Broker, cfg RecoveryConfig, sink EventSink) (int, error) {
	return recoverTasks(ctx, st, b, cfg, sink, true)
}

func recoverTasks(ctx context.Context, st store.Store, b Broker, cfg RecoveryConfig, sink EventSink, ignoreAge bool) (int, error) {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}

	tasks, err := st.Task().ListUnfinished()
	if err != nil {
		return 0, fmt.Errorf("list unfinished tasks: %w", err)
	}

	recovered := 0
	for i := range tasks {
		task := &tasks[i]
		if !ignoreAge && time.Since(task.UpdatedAt) < cfg.StaleAfter {
			continue
		}

		switch task.Status {
		case model.TaskStatusQueued:
			if err := recoverQueued(ctx, st, b, task, sink); err != nil {
				return recovered, err
			}
			recovered++

		case model.TaskStatusProcessing:
			if err := recoverProcessing(ctx, st, b, cfg, task, sink); err != nil {
				return recovered, err
			}
			recovered++
		}
	}

	if recovered > 0 {
		logger.Info("recovered stranded tasks", zap.Int("count", recovered))
	}
	return recovered, nil
}

func recoverQueued(ctx context.Context, st store.Store, b Broker, task *model.ReviewTask, sink EventSink) error {
	msg, err := NewMessage(task)
	if err != nil {
		logger.Error("skipping unrecoverable task",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
		return nil
	}
	if err := b.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("re-enqueue task %s: %w", task.TaskID, err)
	}

	// refresh the row timestamp so periodic sweeps do not re-enqueue
	// the same task again within the stale window
	if err := st.Task().UpdateStatus(task.TaskID, model.TaskStatusQueued); err != nil {
		logger.Warn("refreshing recovered task failed", zap.String("task_id", task.TaskID), zap.Error(err))
	}

	emit(sink, Event{
		Type:       EventEnqueued,
		TaskID:     task.TaskID,
		TaskType:   string(task.Type),
		Queue:      msg.Queue,
		RetryCount: msg.RetryCount,
	})
	logger.Info("re-enqueued stranded task",
		zap.String("task_id", task.TaskID),
		zap.String("queue", msg.Queue),
	)
	return nil
}

func recoverProcessing(ctx context.Context, st store.Store, b Broker, cfg RecoveryConfig, task *model.ReviewTask, sink EventSink) error {
	if cfg.Retry.Exhausted(task.RetryCount) {
		const note = "interrupted by a restart; retry budget exhausted"
		if err := b.SetResult(ctx, task.TaskID, &TaskResult{
			TaskID:      task.TaskID,
			Status:      string(model.TaskStatusFailed),
			Traceback:   note,
			CompletedAt: time.Now().UTC(),
		}); err != nil {
			logger.Warn("storing recovery result failed", zap.String("task_id", task.TaskID), zap.Error(err))
		}
		if err := st.Task().MarkFailed(task.TaskID, note); err != nil {
			return fmt.Errorf("fail interrupted task %s: %w", task.TaskID, err)
		}

		emit(sink, Event{
			Type:       EventFailed,
			TaskID:     task.TaskID,
			TaskType:   string(task.Type),
			Queue:      task.Queue,
			RetryCount: task.RetryCount,
		})
		logger.Warn("interrupted task failed during recovery",
			zap.String("task_id", task.TaskID),
			zap.Int("retry_count", task.RetryCount),
		)
		return nil
	}

	if err := st.Task().IncrementRetryCount(task.TaskID); err != nil {
		return fmt.Errorf("bump retry count of %s: %w", task.TaskID, err)
	}

	msg, err := NewMessage(task)
	if err != nil {
		logger.Error("skipping unrecoverable task",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
		return nil
	}
	msg.RetryCount = task.RetryCount + 1

	if err := b.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("re-enqueue interrupted task %s: %w", task.TaskID, err)
	}

	emit(sink, Event{
		Type:       EventRetried,
		TaskID:     task.TaskID,
		TaskType:   string(task.Type),
		Queue:      msg.Queue,
		RetryCount: msg.RetryCount,
	})
	logger.Info("re-enqueued interrupted task",
		zap.String("task_id", task.TaskID),
		zap.String("queue", msg.Queue),
		zap.Int("retry_count", msg.RetryCount),
	)
	return nil
}
