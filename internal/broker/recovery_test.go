package broker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/reviewhub/reviewhub/consts"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/store"
)

// TestRecoverTasks tests reconciliation of stranded rows with an empty
// broker after a restart
func TestRecoverTasks(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()
	b := NewMemoryBroker(fastOptions())
	defer b.Close()
	rec := &eventRecorder{}
	ctx := context.Background()

	// stranded rows: one still queued, one interrupted with budget
	// left, one interrupted with the budget spent
	queued := store.CreateTestTask(t, st)
	interrupted := store.CreateTestTask(t, st, func(task *model.ReviewTask) {
		task.Type = model.TaskTypeIndexing
		task.Queue = consts.QueueIndexing
	})
	exhausted := store.CreateTestTask(t, st, func(task *model.ReviewTask) {
		task.Type = model.TaskTypeFeedback
		task.Queue = consts.QueueFeedback
		task.RetryCount = 3
	})
	for _, id := range []string{interrupted.TaskID, exhausted.TaskID} {
		if _, err := st.Task().MarkProcessing(id, time.Now()); err != nil {
			t.Fatalf("MarkProcessing(%s) error = %v", id, err)
		}
	}

	// age the rows past the stale window, then add a fresh one that
	// must be left alone
	staleAfter := 50 * time.Millisecond
	time.Sleep(60 * time.Millisecond)
	fresh := store.CreateTestTask(t, st)

	cfg := RecoveryConfig{StaleAfter: staleAfter, Retry: RetryPolicy{MaxRetries: 3}}
	recovered, err := RecoverTasks(ctx, st, b, cfg, rec.sink())
	if err != nil {
		t.Fatalf("RecoverTasks() error = %v", err)
	}
	if recovered != 3 {
		t.Errorf("RecoverTasks() = %d, want 3", recovered)
	}

	t.Run("queued row is re-enqueued", func(t *testing.T) {
		d := dequeueOne(t, b, "w1", []string{consts.QueueCodeReview})
		if d.Message.ID != queued.TaskID {
			t.Errorf("re-enqueued message ID = %q, want %q", d.Message.ID, queued.TaskID)
		}
		if d.Message.RetryCount != 0 {
			t.Errorf("RetryCount = %d, want 0", d.Message.RetryCount)
		}
	})

	t.Run("interrupted row consumes a retry", func(t *testing.T) {
		d := dequeueOne(t, b, "w1", []string{consts.QueueIndexing})
		if d.Message.ID != interrupted.TaskID {
			t.Errorf("re-enqueued message ID = %q, want %q", d.Message.ID, interrupted.TaskID)
		}
		if d.Message.RetryCount != 1 {
			t.Errorf("RetryCount = %d, want 1", d.Message.RetryCount)
		}

		row, err := st.Task().GetByID(interrupted.TaskID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if row.RetryCount != 1 {
			t.Errorf("row RetryCount = %d, want 1", row.RetryCount)
		}
	})

	t.Run("exhausted row is failed with a note", func(t *testing.T) {
		row, err := st.Task().GetByID(exhausted.TaskID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if row.Status != model.TaskStatusFailed {
			t.Errorf("status = %s, want failed", row.Status)
		}
		if !strings.Contains(row.ErrorMessage, "interrupted by a restart") {
			t.Errorf("error message = %q, want a recovery note", row.ErrorMessage)
		}

		result, err := b.GetResult(ctx, exhausted.TaskID)
		if err != nil {
			t.Fatalf("GetResult() error = %v", err)
		}
		if result.Status != string(model.TaskStatusFailed) {
			t.Errorf("result status = %q, want failed", result.Status)
		}

		depths, _ := b.Depths(ctx)
		if depths[consts.QueueFeedback] != 0 {
			t.Errorf("feedback depth = %d, want 0", depths[consts.QueueFeedback])
		}
	})

	t.Run("fresh row is left alone", func(t *testing.T) {
		depths, _ := b.Depths(ctx)
		if depths[consts.QueueCodeReview] != 0 {
			t.Errorf("code_review depth = %d, want 0 after draining", depths[consts.QueueCodeReview])
		}

		row, err := st.Task().GetByID(fresh.TaskID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if row.Status != model.TaskStatusQueued {
			t.Errorf("fresh row status = %s, want queued", row.Status)
		}
	})

	t.Run("events were emitted", func(t *testing.T) {
		if got := rec.byType(EventEnqueued); len(got) != 1 {
			t.Errorf("enqueued events = %d, want 1", len(got))
		}
		if got := rec.byType(EventRetried); len(got) != 1 {
			t.Errorf("retried events = %d, want 1", len(got))
		}
		if got := rec.byType(EventFailed); len(got) != 1 {
			t.Errorf("failed events = %d, want 1", len(got))
		}
	})
}

// TestRecoverAll tests that a fresh-broker recovery ignores row age
func TestRecoverAll(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()
	b := NewMemoryBroker(fastOptions())
	defer b.Close()

	task := store.CreateTestTask(t, st)

	recovered, err := RecoverAll(context.Background(), st, b, DefaultRecoveryConfig(), nil)
	if err != nil {
		t.Fatalf("RecoverAll() error = %v", err)
	}
	if recovered != 1 {
		t.Errorf("RecoverAll() = %d, want 1", recovered)
	}

	d := dequeueOne(t, b, "w1", nil)
	if d.Message.ID != task.TaskID {
		t.Errorf("recovered message ID = %q, want %q", d.Message.ID, task.TaskID)
	}
}

// TestRecoverTasks_NothingToDo tests the empty table case
func TestRecoverTasks_NothingToDo(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()
	b := NewMemoryBroker(fastOptions())
	defer b.Close()

	recovered, err := RecoverTasks(context.Background(), st, b, DefaultRecoveryConfig(), nil)
	if err != nil {
		t.Fatalf("RecoverTasks() error = %v", err)
	}
	if recovered != 0 {
		t.Errorf("RecoverTasks() = %d, want 0", recovered)
	}
}
