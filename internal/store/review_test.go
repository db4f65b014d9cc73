package store

import (
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/model"
)

// TestReviewStore_Create tests creating a review
func TestReviewStore_Create(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)

	retrieved, err := store.Review().GetByID(review.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}

	if retrieved.ID != review.ID {
		t.Errorf("Expected ID '%s', got '%s'", review.ID, retrieved.ID)
	}
	if retrieved.RepoID != "testorg/testrepo" {
		t.Errorf("Expected RepoID 'testorg/testrepo', got '%s'", retrieved.RepoID)
	}
	if retrieved.Status != model.ReviewStatusPending {
		t.Errorf("Expected status pending, got '%s'", retrieved.Status)
	}

	// Non-existent review
	_, err = store.Review().GetByID("non-existent")
	if err != gorm.ErrRecordNotFound {
		t.Errorf("Expected gorm.ErrRecordNotFound, got %v", err)
	}
}

// TestReviewStore_FingerprintUnique tests that the same change under the
// same configuration cannot be stored twice
func TestReviewStore_FingerprintUnique(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	fingerprint := model.ReviewFingerprint("testorg/testrepo", strings.Repeat("a", 40), "cfg")
	CreateTestReview(t, store, func(r *model.Review) {
		r.Fingerprint = fingerprint
	})

	dup := &model.Review{
		ID:          "duplicate-review",
		RepoID:      "testorg/testrepo",
		Platform:    model.PlatformGitHub,
		Source:      model.SourceWebhook,
		Status:      model.ReviewStatusPending,
		Fingerprint: fingerprint,
	}
	if err := store.Review().Create(dup); err == nil {
		t.Error("Create() should reject a duplicate fingerprint")
	}
}

// TestReviewStore_GetByFingerprint tests the idempotency lookup
func TestReviewStore_GetByFingerprint(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)

	retrieved, err := store.Review().GetByFingerprint(review.Fingerprint)
	if err != nil {
		t.Fatalf("GetByFingerprint() failed: %v", err)
	}
	if retrieved.ID != review.ID {
		t.Errorf("Expected ID '%s', got '%s'", review.ID, retrieved.ID)
	}

	_, err = store.Review().GetByFingerprint("missing")
	if err != gorm.ErrRecordNotFound {
		t.Errorf("Expected gorm.ErrRecordNotFound, got %v", err)
	}
}

// TestReviewStore_GetByTaskID tests result retrieval by task linkage
func TestReviewStore_GetByTaskID(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)

	retrieved, err := store.Review().GetByTaskID(review.TaskID)
	if err != nil {
		t.Fatalf("GetByTaskID() failed: %v", err)
	}
	if retrieved.ID != review.ID {
		t.Errorf("Expected ID '%s', got '%s'", review.ID, retrieved.ID)
	}
}

// TestReviewStore_UpdateStatusToRunningIfPending tests the guarded
// pending -> running transition
func TestReviewStore_UpdateStatusToRunningIfPending(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)

	ok, err := store.Review().UpdateStatusToRunningIfPending(review.ID, time.Now())
	if err != nil {
		t.Fatalf("UpdateStatusToRunningIfPending() failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected transition to succeed for a pending review")
	}

	if err := store.Review().CompleteReview(review.ID, "done", nil, model.ReviewStats{}); err != nil {
		t.Fatalf("CompleteReview() failed: %v", err)
	}

	ok, err = store.Review().UpdateStatusToRunningIfPending(review.ID, time.Now())
	if err != nil {
		t.Fatalf("UpdateStatusToRunningIfPending() failed: %v", err)
	}
	if ok {
		t.Error("Completed review must not transition back to running")
	}
}

// TestReviewStore_CompleteReview tests persisting the review outcome
func TestReviewStore_CompleteReview(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)

	comments := model.CommentList{
		{
			ID:        "c-1",
			FilePath:  "main.go",
			LineRange: model.LineRange{Start: 10, End: 12},
			Type:      model.CommentTypeBug,
			Severity:  model.SeverityHigh,
			Message:   "possible nil dereference",
		},
	}
	stats := model.ReviewStats{
		SeverityCounts:         model.CountMap{"high": 1},
		ExecutionTimeMs:        1500,
		RAGContextUsed:         true,
		RAGMatches:             3,
		RLHFConstraintsApplied: 1,
		TokensUsed:             2048,
	}

	if err := store.Review().CompleteReview(review.ID, "1 issue found", comments, stats); err != nil {
		t.Fatalf("CompleteReview() failed: %v", err)
	}

	retrieved, err := store.Review().GetByID(review.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if retrieved.Status != model.ReviewStatusCompleted {
		t.Errorf("Expected status completed, got '%s'", retrieved.Status)
	}
	if retrieved.Summary != "1 issue found" {
		t.Errorf("Expected summary to be persisted, got '%s'", retrieved.Summary)
	}
	if len(retrieved.Comments) != 1 || retrieved.Comments[0].FilePath != "main.go" {
		t.Errorf("Expected comments to survive the column round trip, got %+v", retrieved.Comments)
	}
	if retrieved.Stats.RAGMatches != 3 || retrieved.Stats.TokensUsed != 2048 {
		t.Errorf("Expected stats to be persisted, got %+v", retrieved.Stats)
	}
	if retrieved.Stats.SeverityCounts["high"] != 1 {
		t.Errorf("Expected severity counts to be persisted, got %+v", retrieved.Stats.SeverityCounts)
	}
	if retrieved.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}

	// ToResponse carries the stored result
	resp := retrieved.ToResponse()
	if resp.ReviewID != review.ID || len(resp.Comments) != 1 {
		t.Errorf("Unexpected response form: %+v", resp)
	}
}

// TestReviewStore_FailReview tests persisting a failure
func TestReviewStore_FailReview(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)

	if err := store.Review().FailReview(review.ID, "LLM unavailable"); err != nil {
		t.Fatalf("FailReview() failed: %v", err)
	}

	retrieved, _ := store.Review().GetByID(review.ID)
	if retrieved.Status != model.ReviewStatusFailed {
		t.Errorf("Expected status failed, got '%s'", retrieved.Status)
	}
	if retrieved.ErrorMessage != "LLM unavailable" {
		t.Errorf("Expected error message, got '%s'", retrieved.ErrorMessage)
	}
}

// TestReviewStore_List tests filtered listing with pagination
func TestReviewStore_List(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		CreateTestReview(t, store)
	}
	other := CreateTestReview(t, store, func(r *model.Review) {
		r.RepoID = "otherorg/otherrepo"
	})

	reviews, total, err := store.Review().List("", "", 10, 0)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 4 || len(reviews) != 4 {
		t.Errorf("Expected 4 reviews, got total=%d len=%d", total, len(reviews))
	}

	reviews, total, err = store.Review().List("otherorg/otherrepo", "", 10, 0)
	if err != nil {
		t.Fatalf("List() with repo filter failed: %v", err)
	}
	if total != 1 || reviews[0].ID != other.ID {
		t.Errorf("Expected only the other repo's review, got total=%d", total)
	}

	reviews, total, err = store.Review().List("", "", 2, 0)
	if err != nil {
		t.Fatalf("List() with limit failed: %v", err)
	}
	if total != 4 || len(reviews) != 2 {
		t.Errorf("Expected total=4 with 2 returned, got total=%d len=%d", total, len(reviews))
	}
}

// TestReviewStore_DeleteCompletedBefore tests retention cleanup
func TestReviewStore_DeleteCompletedBefore(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	old := CreateTestReview(t, store)
	if err := store.Review().CompleteReview(old.ID, "ok", nil, model.ReviewStats{}); err != nil {
		t.Fatalf("CompleteReview() failed: %v", err)
	}
	if err := store.DB().Model(&model.Review{}).
		Where("id = ?", old.ID).
		Update("created_at", time.Now().Add(-48*time.Hour)).Error; err != nil {
		t.Fatalf("Failed to backdate review: %v", err)
	}

	pending := CreateTestReview(t, store)

	deleted, err := store.Review().DeleteCompletedBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteCompletedBefore() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted review, got %d", deleted)
	}

	if _, err := store.Review().GetByID(old.ID); err != gorm.ErrRecordNotFound {
		t.Errorf("Expected old review gone, got err=%v", err)
	}
	if _, err := store.Review().GetByID(pending.ID); err != nil {
		t.Errorf("Pending review must survive retention: %v", err)
	}
}

// TestReviewStore_CountAndStats tests the aggregate counters
func TestReviewStore_CountAndStats(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	a := CreateTestReview(t, store)
	CreateTestReview(t, store)
	if err := store.Review().CompleteReview(a.ID, "ok", nil, model.ReviewStats{ExecutionTimeMs: 1000}); err != nil {
		t.Fatalf("CompleteReview() failed: %v", err)
	}

	total, err := store.Review().CountAll()
	if err != nil || total != 2 {
		t.Errorf("CountAll() = %d, %v; want 2", total, err)
	}

	completed, err := store.Review().CountByStatusOnly(model.ReviewStatusCompleted)
	if err != nil || completed != 1 {
		t.Errorf("CountByStatusOnly(completed) = %d, %v; want 1", completed, err)
	}

	recent, err := store.Review().CountCreatedAfter(time.Now().Add(-time.Hour))
	if err != nil || recent != 2 {
		t.Errorf("CountCreatedAfter() = %d, %v; want 2", recent, err)
	}

	avg, err := store.Review().GetAverageDurationAfter(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetAverageDurationAfter() failed: %v", err)
	}
	if avg != 1000 {
		t.Errorf("Expected average duration 1000, got %f", avg)
	}
}
