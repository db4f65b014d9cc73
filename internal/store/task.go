package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/model"
)

// TaskStore defines operations for the durable ReviewTask records that
// back task status queries and startup recovery.
type TaskStore interface {
	Create(task *model.ReviewTask) error
	GetByID(taskID string) (*model.ReviewTask, error)
	Save(task *model.ReviewTask) error

	// Status updates
	UpdateStatus(taskID string, status model.TaskStatus) error
	UpdateStatusIfAllowed(taskID string, next model.TaskStatus) (bool, error)
	MarkProcessing(taskID string, startedAt time.Time) (bool, error)
	MarkCompleted(taskID string) error
	MarkFailed(taskID string, errMsg string) error
	IncrementRetryCount(taskID string) error

	// Queries
	List(q model.TaskQuery) ([]model.ReviewTask, int64, error)
	ListUnfinished() ([]model.ReviewTask, error)
	CountByStatus(status model.TaskStatus) (int64, error)

	// Retention
	DeleteTerminalBefore(cutoff time.Time) (int64, error)
}

// taskStore implements TaskStore using GORM.
type taskStore struct {
	db *gorm.DB
}

func newTaskStore(db *gorm.DB) TaskStore {
	return &taskStore{db: db}
}

func (s *taskStore) Create(task *model.ReviewTask) error {
	return s.db.Create(task).Error
}

func (s *taskStore) GetByID(taskID string) (*model.ReviewTask, error) {
	var task model.ReviewTask
	err := s.db.First(&task, "task_id = ?", taskID).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *taskStore) Save(task *model.ReviewTask) error {
	return s.db.Save(task).Error
}

func (s *taskStore) UpdateStatus(taskID string, status model.TaskStatus) error {
	return s.db.Model(&model.ReviewTask{}).Where("task_id = ?", taskID).Update("status", status).Error
}

// UpdateStatusIfAllowed applies the transition only when the stored status
// permits it, so a slow worker cannot roll a terminal task backward.
func (s *taskStore) UpdateStatusIfAllowed(taskID string, next model.TaskStatus) (bool, error) {
	var allowed []model.TaskStatus
	for _, from := range []model.TaskStatus{
		model.TaskStatusQueued,
		model.TaskStatusProcessing,
		model.TaskStatusCompleted,
		model.TaskStatusFailed,
	} {
		if from.CanTransitionTo(next) {
			allowed = append(allowed, from)
		}
	}
	if len(allowed) == 0 {
		return false, nil
	}

	result := s.db.Model(&model.ReviewTask{}).
		Where("task_id = ? AND status IN ?", taskID, allowed).
		Update("status", next)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *taskStore) MarkProcessing(taskID string, startedAt time.Time) (bool, error) {
	result := s.db.Model(&model.ReviewTask{}).
		Where("task_id = ?", taskID).
		Where("status IN ?", []model.TaskStatus{model.TaskStatusQueued, model.TaskStatusProcessing}).
		Updates(map[string]interface{}{
			"status":     model.TaskStatusProcessing,
			"started_at": startedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *taskStore) MarkCompleted(taskID string) error {
	return s.db.Model(&model.ReviewTask{}).
		Where("task_id = ?", taskID).
		Where("status = ?", model.TaskStatusProcessing).
		Updates(map[string]interface{}{
			"status":       model.TaskStatusCompleted,
			"completed_at": time.Now(),
		}).Error
}

func (s *taskStore) MarkFailed(taskID string, errMsg string) error {
	return s.db.Model(&model.ReviewTask{}).
		Where("task_id = ?", taskID).
		Where("status IN ?", []model.TaskStatus{model.TaskStatusQueued, model.TaskStatusProcessing}).
		Updates(map[string]interface{}{
			"status":        model.TaskStatusFailed,
			"error_message": errMsg,
			"completed_at":  time.Now(),
		}).Error
}

func (s *taskStore) IncrementRetryCount(taskID string) error {
	return s.db.Model(&model.ReviewTask{}).
		Where("task_id = ?", taskID).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error
}

func (s *taskStore) List(q model.TaskQuery) ([]model.ReviewTask, int64, error) {
	var tasks []model.ReviewTask
	var total int64

	query := s.db.Model(&model.ReviewTask{})
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Type != "" {
		query = query.Where("type = ?", q.Type)
	}
	if q.Queue != "" {
		query = query.Where("queue = ?", q.Queue)
	}
	if q.RepoID != "" {
		query = query.Where("repo_id = ?", q.RepoID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(q.Offset).Find(&tasks).Error
	return tasks, total, err
}

// ListUnfinished returns every task stranded in a non-terminal state,
// oldest first. Startup recovery re-enqueues these.
func (s *taskStore) ListUnfinished() ([]model.ReviewTask, error) {
	var tasks []model.ReviewTask
	err := s.db.Where("status IN ?", []model.TaskStatus{
		model.TaskStatusQueued,
		model.TaskStatusProcessing,
	}).Order("created_at ASC").Find(&tasks).Error
	return tasks, err
}

func (s *taskStore) CountByStatus(status model.TaskStatus) (int64, error) {
	var count int64
	err := s.db.Model(&model.ReviewTask{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (s *taskStore) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	result := s.db.Where("status IN ? AND created_at < ?", []model.TaskStatus{
		model.TaskStatusCompleted,
		model.TaskStatusFailed,
	}, cutoff).Delete(&model.ReviewTask{})
	return result.RowsAffected, result.Error
}
