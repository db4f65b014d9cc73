// Package store provides test utilities for database testing.
package store

import (
	"fmt"
	"os"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/database"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/pkg/idgen"
)

// SetupTestDB creates a temporary SQLite database for testing.
// It returns a Store instance and a cleanup function.
// The cleanup function should be called with defer in tests.
func SetupTestDB(t *testing.T) (Store, func()) {
	// Reset database state to allow re-initialization
	database.ResetForTesting()

	// Create temporary database file
	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	// Initialize database with temp path
	if err := database.Init(tmpPath); err != nil {
		os.Remove(tmpPath)
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	db := database.Get()
	store := NewStore(db)

	// Cleanup function
	cleanup := func() {
		database.Close()
		database.ResetForTesting()
		os.Remove(tmpPath)
	}

	return store, cleanup
}

// SetupTestDBWithModels creates a temporary SQLite database and returns the
// raw connection for tests that need direct access.
func SetupTestDBWithModels(t *testing.T) (*gorm.DB, func()) {
	store, cleanup := SetupTestDB(t)
	return store.DB(), cleanup
}

// CreateTestReview creates a test Review with default values.
// Fields can be overridden by passing a function that modifies the review.
func CreateTestReview(t *testing.T, store Store, overrides ...func(*model.Review)) *model.Review {
	review := &model.Review{
		ID:       idgen.NewReviewID(),
		RepoID:   "testorg/testrepo",
		PRNumber: 42,
		Platform: model.PlatformGitHub,
		BaseSHA:  "a3f5c9e1b2d4f6a8c0e2b4d6f8a0c2e4b6d8f0a2",
		HeadSHA:  "b4a6d0f2c3e5a7b9d1f3c5e7a9b1d3f5c7e9b1d3",
		Source:   model.SourceWebhook,
		Status:   model.ReviewStatusPending,
		TaskID:   idgen.NewTaskID(),
		TraceID:  idgen.NewTraceID(),
	}
	// Unique per call so the fingerprint unique index never collides
	review.Fingerprint = model.ReviewFingerprint(review.RepoID, review.ID, "defaults")

	// Apply overrides
	for _, override := range overrides {
		override(review)
	}

	if err := store.Review().Create(review); err != nil {
		t.Fatalf("Failed to create test review: %v", err)
	}

	return review
}

// CreateTestTask creates a queued test ReviewTask with default values.
func CreateTestTask(t *testing.T, store Store, overrides ...func(*model.ReviewTask)) *model.ReviewTask {
	task := &model.ReviewTask{
		TaskID:  idgen.NewTaskID(),
		TraceID: idgen.NewTraceID(),
		Type:    model.TaskTypeCodeReview,
		Queue:   model.TaskTypeCodeReview.Queue(),
		RepoID:  "testorg/testrepo",
		Status:  model.TaskStatusQueued,
		Payload: model.JSONMap{"repo_id": "testorg/testrepo"},
	}

	// Apply overrides
	for _, override := range overrides {
		override(task)
	}

	if err := store.Task().Create(task); err != nil {
		t.Fatalf("Failed to create test task: %v", err)
	}

	return task
}

// CreateTestChunk creates an embedded knowledge chunk. The embedding
// defaults to a unit vector along the first axis.
func CreateTestChunk(t *testing.T, store Store, repoID, filePath string, chunkIndex int, embedding model.Vector) *model.KnowledgeChunk {
	if len(embedding) == 0 {
		embedding = model.Vector{1, 0, 0}
	}
	chunk := &model.KnowledgeChunk{
		RepoID:     repoID,
		FilePath:   filePath,
		ChunkIndex: chunkIndex,
		Content:    fmt.Sprintf("content %s#%d", filePath, chunkIndex),
		Embedding:  embedding,
	}
	if err := store.Knowledge().Upsert(chunk); err != nil {
		t.Fatalf("Failed to create test chunk: %v", err)
	}
	return chunk
}

// CreateTestConstraint creates an active learned constraint expiring in 90 days.
func CreateTestConstraint(t *testing.T, store Store, repoID string, embedding model.Vector, overrides ...func(*model.LearnedConstraint)) *model.LearnedConstraint {
	if len(embedding) == 0 {
		embedding = model.Vector{1, 0, 0}
	}
	constraint := &model.LearnedConstraint{
		RepoID:          repoID,
		ViolationReason: "style: prefer early returns",
		CodePattern:     "if x { return } else { ... }",
		Embedding:       embedding,
		ConfidenceScore: model.ConstraintInitialConfidence,
		ExpiresAt:       time.Now().Add(90 * 24 * time.Hour),
	}

	for _, override := range overrides {
		override(constraint)
	}

	if err := store.Constraint().Create(constraint); err != nil {
		t.Fatalf("Failed to create test constraint: %v", err)
	}
	return constraint
}
