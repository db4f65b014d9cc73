package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/model"
)

// RepositoryStore defines operations for the repository registry.
// Records are created lazily the first time a task references a repo_id.
type RepositoryStore interface {
	Ensure(repoID string) (*model.Repository, error)
	GetByRepoID(repoID string) (*model.Repository, error)
	List(limit, offset int) ([]model.Repository, int64, error)
	CountAll() (int64, error)

	// UpdateDetails fills in platform metadata learned from webhooks.
	UpdateDetails(repoID, platform, gitURL, defaultBranch string) error
	// MarkIndexed records a completed indexing run.
	MarkIndexed(repoID string, chunkCount int64, at time.Time) error
}

// repositoryStore implements RepositoryStore using GORM.
type repositoryStore struct {
	db *gorm.DB
}

func newRepositoryStore(db *gorm.DB) RepositoryStore {
	return &repositoryStore{db: db}
}

func (s *repositoryStore) Ensure(repoID string) (*model.Repository, error) {
	return model.EnsureRepository(s.db, repoID)
}

func (s *repositoryStore) GetByRepoID(repoID string) (*model.Repository, error) {
	var repo model.Repository
	err := s.db.Where("repo_id = ?", repoID).First(&repo).Error
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *repositoryStore) List(limit, offset int) ([]model.Repository, int64, error) {
	var repos []model.Repository
	var total int64

	if err := s.db.Model(&model.Repository{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := s.db.Order("repo_id ASC").Limit(limit).Offset(offset).Find(&repos).Error
	return repos, total, err
}

func (s *repositoryStore) CountAll() (int64, error) {
	var count int64
	err := s.db.Model(&model.Repository{}).Count(&count).Error
	return count, err
}

func (s *repositoryStore) UpdateDetails(repoID, platform, gitURL, defaultBranch string) error {
	updates := map[string]interface{}{}
	if platform != "" {
		updates["platform"] = platform
	}
	if gitURL != "" {
		updates["git_url"] = gitURL
	}
	if defaultBranch != "" {
		updates["default_branch"] = defaultBranch
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.Model(&model.Repository{}).Where("repo_id = ?", repoID).Updates(updates).Error
}

func (s *repositoryStore) MarkIndexed(repoID string, chunkCount int64, at time.Time) error {
	return s.db.Model(&model.Repository{}).Where("repo_id = ?", repoID).Updates(map[string]interface{}{
		"last_indexed_at": at,
		"chunk_count":     chunkCount,
	}).Error
}
