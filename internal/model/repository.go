// Package model defines the data models for the application.
package model

import (
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/pkg/idgen"
)

// Repository tracks a repository known to the system, created lazily the
// first time a review or indexing task references its repo_id.
type Repository struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// RepoID is the canonical "owner/name" identifier used across tasks,
	// knowledge chunks, constraints, and feedback.
	RepoID   string `gorm:"size:255;not null;uniqueIndex" json:"repo_id"`
	Platform string `gorm:"size:50" json:"platform,omitempty"`
	GitURL   string `gorm:"size:512" json:"git_url,omitempty"`

	DefaultBranch string `gorm:"size:255" json:"default_branch,omitempty"`

	// Indexing bookkeeping
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty"`
	ChunkCount    int        `gorm:"default:0" json:"chunk_count"`
}

// EnsureRepository ensures a Repository record exists for the given repo ID.
// If not exists, creates a new record.
// Thread-safe: uses GORM's FirstOrCreate which handles concurrent creation gracefully.
func EnsureRepository(db *gorm.DB, repoID string) (*Repository, error) {
	if repoID == "" {
		return nil, nil
	}

	repo := Repository{
		RepoID: repoID,
	}

	// FirstOrCreate: if record exists, does nothing; if not, creates it
	// The unique index on repo_id ensures no duplicates
	result := db.Where("repo_id = ?", repoID).
		Attrs(Repository{ID: idgen.NewID()}).
		FirstOrCreate(&repo)
	if result.Error != nil {
		return nil, result.Error
	}

	return &repo, nil
}
