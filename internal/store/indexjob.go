package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/model"
)

// IndexJobStore defines operations for indexing progress records.
type IndexJobStore interface {
	Create(job *model.IndexJob) error
	GetByID(id string) (*model.IndexJob, error)
	Save(job *model.IndexJob) error

	// UpdateStage advances the observable stage. Stages only move forward;
	// an update naming an earlier stage is ignored.
	UpdateStage(id string, stage model.IndexStage, progress int) error
	UpdateCounters(id string, job *model.IndexJob) error
	MarkCompleted(id string) error
	MarkFailed(id string, errMsg string) error

	GetLatestByRepo(repoID string) (*model.IndexJob, error)
	ListUnfinished() ([]model.IndexJob, error)
}

// indexJobStore implements IndexJobStore using GORM.
type indexJobStore struct {
	db *gorm.DB
}

func newIndexJobStore(db *gorm.DB) IndexJobStore {
	return &indexJobStore{db: db}
}

func (s *indexJobStore) Create(job *model.IndexJob) error {
	return s.db.Create(job).Error
}

func (s *indexJobStore) GetByID(id string) (*model.IndexJob, error) {
	var job model.IndexJob
	err := s.db.First(&job, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *indexJobStore) Save(job *model.IndexJob) error {
	return s.db.Save(job).Error
}

func (s *indexJobStore) UpdateStage(id string, stage model.IndexStage, progress int) error {
	job, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if stage.Ordinal() < job.Stage.Ordinal() {
		return nil
	}

	updates := map[string]interface{}{
		"stage":    stage,
		"progress": progress,
	}
	if job.StartedAt == nil && stage != model.IndexStageQueued {
		updates["started_at"] = time.Now()
	}
	return s.db.Model(&model.IndexJob{}).Where("id = ?", id).Updates(updates).Error
}

func (s *indexJobStore) UpdateCounters(id string, job *model.IndexJob) error {
	return s.db.Model(&model.IndexJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"files_processed": job.FilesProcessed,
		"files_skipped":   job.FilesSkipped,
		"chunks_indexed":  job.ChunksIndexed,
		"chunks_skipped":  job.ChunksSkipped,
		"secrets_found":   job.SecretsFound,
	}).Error
}

func (s *indexJobStore) MarkCompleted(id string) error {
	return s.db.Model(&model.IndexJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"stage":        model.IndexStageCompleted,
		"progress":     100,
		"completed_at": time.Now(),
	}).Error
}

func (s *indexJobStore) MarkFailed(id string, errMsg string) error {
	return s.db.Model(&model.IndexJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"stage":         model.IndexStageFailed,
		"error_message": errMsg,
		"completed_at":  time.Now(),
	}).Error
}

func (s *indexJobStore) GetLatestByRepo(repoID string) (*model.IndexJob, error) {
	var job model.IndexJob
	err := s.db.Where("repo_id = ?", repoID).Order("created_at DESC").First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *indexJobStore) ListUnfinished() ([]model.IndexJob, error) {
	var jobs []model.IndexJob
	err := s.db.Where("stage NOT IN ?", []model.IndexStage{
		model.IndexStageCompleted,
		model.IndexStageFailed,
	}).Order("created_at ASC").Find(&jobs).Error
	return jobs, err
}
