package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/model"
)

// ReviewStore defines operations for persisted code reviews.
type ReviewStore interface {
	// Review CRUD
	Create(review *model.Review) error
	GetByID(id string) (*model.Review, error)
	Save(review *model.Review) error

	// Fingerprint lookup backs review idempotency: a webhook redelivered
	// for the same change under the same effective configuration returns
	// the stored result instead of re-executing.
	GetByFingerprint(fingerprint string) (*model.Review, error)
	GetByTaskID(taskID string) (*model.Review, error)

	// Review status updates
	UpdateStatusToRunningIfPending(id string, startedAt time.Time) (bool, error)
	CompleteReview(id string, summary string, comments model.CommentList, stats model.ReviewStats) error
	FailReview(id string, errMsg string) error

	// Review queries
	List(repoID, statusFilter string, limit, offset int) ([]model.Review, int64, error)
	ListByRepository(repoID string, limit, offset int) ([]model.Review, int64, error)

	// Statistics queries
	CountAll() (int64, error)
	CountByStatusOnly(status model.ReviewStatus) (int64, error)
	CountCreatedAfter(start time.Time) (int64, error)
	GetAverageDurationAfter(start time.Time) (float64, error)

	// Retention
	DeleteCompletedBefore(cutoff time.Time) (int64, error)
}

// reviewStore implements ReviewStore using GORM.
type reviewStore struct {
	db *gorm.DB
}

func newReviewStore(db *gorm.DB) ReviewStore {
	return &reviewStore{db: db}
}

// Review CRUD implementations

func (s *reviewStore) Create(review *model.Review) error {
	return s.db.Create(review).Error
}

func (s *reviewStore) GetByID(id string) (*model.Review, error) {
	var review model.Review
	err := s.db.First(&review, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (s *reviewStore) Save(review *model.Review) error {
	return s.db.Save(review).Error
}

func (s *reviewStore) GetByFingerprint(fingerprint string) (*model.Review, error) {
	var review model.Review
	err := s.db.Where("fingerprint = ?", fingerprint).First(&review).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (s *reviewStore) GetByTaskID(taskID string) (*model.Review, error) {
	var review model.Review
	err := s.db.Where("task_id = ?", taskID).Order("created_at DESC").First(&review).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// Review status updates

func (s *reviewStore) UpdateStatusToRunningIfPending(id string, startedAt time.Time) (bool, error) {
	result := s.db.Model(&model.Review{}).
		Where("id = ?", id).
		Where("status IN ?", []model.ReviewStatus{model.ReviewStatusPending, model.ReviewStatusRunning}).
		Updates(map[string]interface{}{
			"status":     model.ReviewStatusRunning,
			"started_at": startedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *reviewStore) CompleteReview(id string, summary string, comments model.CommentList, stats model.ReviewStats) error {
	now := time.Now()
	return s.db.Model(&model.Review{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":                         model.ReviewStatusCompleted,
		"summary":                        summary,
		"comments":                       comments,
		"stats_severity_counts":          stats.SeverityCounts,
		"stats_execution_time_ms":        stats.ExecutionTimeMs,
		"stats_rag_context_used":         stats.RAGContextUsed,
		"stats_rag_matches":              stats.RAGMatches,
		"stats_rlhf_constraints_applied": stats.RLHFConstraintsApplied,
		"stats_tokens_used":              stats.TokensUsed,
		"completed_at":                   now,
		"duration_ms":                    stats.ExecutionTimeMs,
		"error_message":                  "",
	}).Error
}

func (s *reviewStore) FailReview(id string, errMsg string) error {
	return s.db.Model(&model.Review{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.ReviewStatusFailed,
		"error_message": errMsg,
		"completed_at":  time.Now(),
	}).Error
}

// Review queries

func (s *reviewStore) List(repoID, statusFilter string, limit, offset int) ([]model.Review, int64, error) {
	var reviews []model.Review
	var total int64

	query := s.db.Model(&model.Review{})
	if repoID != "" {
		query = query.Where("repo_id = ?", repoID)
	}
	if statusFilter != "" {
		query = query.Where("status = ?", statusFilter)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&reviews).Error
	return reviews, total, err
}

func (s *reviewStore) ListByRepository(repoID string, limit, offset int) ([]model.Review, int64, error) {
	return s.List(repoID, "", limit, offset)
}

// Statistics queries

func (s *reviewStore) CountAll() (int64, error) {
	var count int64
	err := s.db.Model(&model.Review{}).Count(&count).Error
	return count, err
}

func (s *reviewStore) CountByStatusOnly(status model.ReviewStatus) (int64, error) {
	var count int64
	err := s.db.Model(&model.Review{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (s *reviewStore) CountCreatedAfter(start time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&model.Review{}).Where("created_at >= ?", start).Count(&count).Error
	return count, err
}

func (s *reviewStore) GetAverageDurationAfter(start time.Time) (float64, error) {
	var avgDuration float64
	err := s.db.Model(&model.Review{}).
		Where("completed_at >= ? AND status = ? AND duration_ms > 0", start, model.ReviewStatusCompleted).
		Select("COALESCE(AVG(duration_ms), 0)").Row().Scan(&avgDuration)
	return avgDuration, err
}

// Retention

// DeleteCompletedBefore hard-deletes terminal reviews past the retention
// window. Soft-deleted rows still satisfy the fingerprint unique index,
// so retention uses Unscoped.
func (s *reviewStore) DeleteCompletedBefore(cutoff time.Time) (int64, error) {
	result := s.db.Unscoped().
		Where("status IN ? AND created_at < ?", []model.ReviewStatus{
			model.ReviewStatusCompleted,
			model.ReviewStatusFailed,
		}, cutoff).
		Delete(&model.Review{})
	return result.RowsAffected, result.Error
}
