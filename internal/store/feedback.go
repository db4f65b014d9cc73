package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/pkg/idgen"
)

// FeedbackStore defines operations for the append-only feedback trail.
// Records are never updated; the only delete path is right-to-forget.
type FeedbackStore interface {
	Append(record *model.FeedbackRecord) error
	GetByID(id string) (*model.FeedbackRecord, error)
	ListByRepo(repoID string, limit, offset int) ([]model.FeedbackRecord, int64, error)

	// Windowed counts back the false-positive-reduction gauge.
	CountSince(repoID string, since time.Time) (int64, error)
	CountByActionSince(repoID string, action model.FeedbackAction, since time.Time) (int64, error)
	CountAll() (int64, error)

	// DeleteAll implements right-to-forget for one repository.
	DeleteAll(repoID string) (int64, error)
}

// feedbackStore implements FeedbackStore using GORM.
type feedbackStore struct {
	db *gorm.DB
}

func newFeedbackStore(db *gorm.DB) FeedbackStore {
	return &feedbackStore{db: db}
}

func (s *feedbackStore) Append(record *model.FeedbackRecord) error {
	if record.ID == "" {
		record.ID = idgen.NewFeedbackID()
	}
	return s.db.Create(record).Error
}

func (s *feedbackStore) GetByID(id string) (*model.FeedbackRecord, error) {
	var record model.FeedbackRecord
	err := s.db.First(&record, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *feedbackStore) ListByRepo(repoID string, limit, offset int) ([]model.FeedbackRecord, int64, error) {
	var records []model.FeedbackRecord
	var total int64

	query := s.db.Model(&model.FeedbackRecord{}).Where("repo_id = ?", repoID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&records).Error
	return records, total, err
}

func (s *feedbackStore) CountSince(repoID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&model.FeedbackRecord{}).
		Where("repo_id = ? AND created_at >= ?", repoID, since).
		Count(&count).Error
	return count, err
}

func (s *feedbackStore) CountByActionSince(repoID string, action model.FeedbackAction, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&model.FeedbackRecord{}).
		Where("repo_id = ? AND action = ? AND created_at >= ?", repoID, action, since).
		Count(&count).Error
	return count, err
}

func (s *feedbackStore) CountAll() (int64, error) {
	var count int64
	err := s.db.Model(&model.FeedbackRecord{}).Count(&count).Error
	return count, err
}

func (s *feedbackStore) DeleteAll(repoID string) (int64, error) {
	result := s.db.Where("repo_id = ?", repoID).Delete(&model.FeedbackRecord{})
	return result.RowsAffected, result.Error
}
