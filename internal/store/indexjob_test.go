package store

import (
	"testing"
	"time"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/pkg/idgen"
)

func createTestIndexJob(t *testing.T, store Store) *model.IndexJob {
	job := &model.IndexJob{
		ID:         idgen.NewTaskID(),
		RepoID:     "org/repo",
		GitURL:     "https://github.com/org/repo.git",
		Branch:     "main",
		IndexDepth: model.IndexDepthShallow,
		Stage:      model.IndexStageQueued,
	}
	if err := store.IndexJob().Create(job); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return job
}

// TestIndexJobStore_StageAdvance tests forward-only stage progression
func TestIndexJobStore_StageAdvance(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	job := createTestIndexJob(t, store)

	if err := store.IndexJob().UpdateStage(job.ID, model.IndexStageScanning, 10); err != nil {
		t.Fatalf("UpdateStage() failed: %v", err)
	}

	retrieved, _ := store.IndexJob().GetByID(job.ID)
	if retrieved.Stage != model.IndexStageScanning {
		t.Errorf("Expected stage scanning, got '%s'", retrieved.Stage)
	}
	if retrieved.Progress != 10 {
		t.Errorf("Expected progress 10, got %d", retrieved.Progress)
	}
	if retrieved.StartedAt == nil {
		t.Error("Expected StartedAt to be set once the job leaves queued")
	}

	// An update naming an earlier stage is ignored
	if err := store.IndexJob().UpdateStage(job.ID, model.IndexStageCloning, 5); err != nil {
		t.Fatalf("UpdateStage() failed: %v", err)
	}
	retrieved, _ = store.IndexJob().GetByID(job.ID)
	if retrieved.Stage != model.IndexStageScanning {
		t.Errorf("Stage must not move backward, got '%s'", retrieved.Stage)
	}
}

// TestIndexJobStore_Completion tests the terminal paths
func TestIndexJobStore_Completion(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	job := createTestIndexJob(t, store)

	counters := &model.IndexJob{
		FilesProcessed: 12,
		FilesSkipped:   3,
		ChunksIndexed:  48,
		ChunksSkipped:  2,
		SecretsFound:   1,
	}
	if err := store.IndexJob().UpdateCounters(job.ID, counters); err != nil {
		t.Fatalf("UpdateCounters() failed: %v", err)
	}
	if err := store.IndexJob().MarkCompleted(job.ID); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}

	retrieved, _ := store.IndexJob().GetByID(job.ID)
	if retrieved.Stage != model.IndexStageCompleted {
		t.Errorf("Expected stage completed, got '%s'", retrieved.Stage)
	}
	if retrieved.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", retrieved.Progress)
	}
	if retrieved.ChunksIndexed != 48 || retrieved.SecretsFound != 1 {
		t.Errorf("Expected counters persisted, got %+v", retrieved)
	}
	if retrieved.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}

	failed := createTestIndexJob(t, store)
	if err := store.IndexJob().MarkFailed(failed.ID, "clone failed: auth"); err != nil {
		t.Fatalf("MarkFailed() failed: %v", err)
	}
	retrieved, _ = store.IndexJob().GetByID(failed.ID)
	if retrieved.Stage != model.IndexStageFailed || retrieved.ErrorMessage == "" {
		t.Errorf("Expected failed stage with error, got %+v", retrieved)
	}
}

// TestIndexJobStore_GetLatestByRepo tests the re-index scheduling lookup
func TestIndexJobStore_GetLatestByRepo(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	first := createTestIndexJob(t, store)
	if err := store.IndexJob().MarkCompleted(first.ID); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}
	// Make ordering deterministic regardless of timestamp resolution
	if err := store.DB().Model(&model.IndexJob{}).
		Where("id = ?", first.ID).
		Update("created_at", first.CreatedAt.Add(-time.Minute)).Error; err != nil {
		t.Fatalf("Failed to backdate job: %v", err)
	}
	second := createTestIndexJob(t, store)

	latest, err := store.IndexJob().GetLatestByRepo("org/repo")
	if err != nil {
		t.Fatalf("GetLatestByRepo() failed: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Expected latest job '%s', got '%s'", second.ID, latest.ID)
	}

	unfinished, err := store.IndexJob().ListUnfinished()
	if err != nil {
		t.Fatalf("ListUnfinished() failed: %v", err)
	}
	if len(unfinished) != 1 || unfinished[0].ID != second.ID {
		t.Errorf("Expected only the queued job unfinished, got %+v", unfinished)
	}
}
