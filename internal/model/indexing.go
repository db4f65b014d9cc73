// Package model defines the data models for the application.
// This file defines the repository indexing job and its progress stages.
package model

import (
	"time"
)

// IndexStage is a step in the indexing pipeline. Stages advance strictly
// forward; the observable progress sequence is always a prefix of this
// enumeration ending in completed or failed.
type IndexStage string

const (
	IndexStageQueued     IndexStage = "queued"
	IndexStageCloning    IndexStage = "cloning"
	IndexStageScanning   IndexStage = "scanning"
	IndexStageChunking   IndexStage = "chunking"
	IndexStageSecrets    IndexStage = "secret_scanning"
	IndexStageEmbedding  IndexStage = "generating_embeddings"
	IndexStageStoring    IndexStage = "storing"
	IndexStageCompleted  IndexStage = "completed"
	IndexStageFailed     IndexStage = "failed"
)

var indexStageOrder = map[IndexStage]int{
	IndexStageQueued:    0,
	IndexStageCloning:   1,
	IndexStageScanning:  2,
	IndexStageChunking:  3,
	IndexStageSecrets:   4,
	IndexStageEmbedding: 5,
	IndexStageStoring:   6,
	IndexStageCompleted: 7,
	IndexStageFailed:    7,
}

// Ordinal returns the position of the stage in the pipeline
func (s IndexStage) Ordinal() int {
	if o, ok := indexStageOrder[s]; ok {
		return o
	}
	return -1
}

// Terminal reports whether the stage is final
func (s IndexStage) Terminal() bool {
	return s == IndexStageCompleted || s == IndexStageFailed
}

// IndexDepth selects the git clone depth for an indexing run
const (
	IndexDepthShallow = "shallow" // depth-1 clone (default)
	IndexDepthFull    = "full"    // full history clone
)

// IndexJob is the externally observable progress record of an indexing run.
// Its primary key is the task_id of the indexing task.
type IndexJob struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"` // task_id (uuid)
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RepoID     string `gorm:"size:255;not null;index" json:"repo_id"`
	GitURL     string `gorm:"size:512;not null" json:"git_url"`
	Branch     string `gorm:"size:255" json:"branch,omitempty"`
	IndexDepth string `gorm:"size:20;default:shallow" json:"index_depth"`

	Stage    IndexStage `gorm:"size:50;not null;default:queued;index" json:"stage"`
	Progress int        `gorm:"default:0" json:"progress"` // percent, 0..100

	// Counters
	FilesProcessed int `gorm:"default:0" json:"files_processed"`
	FilesSkipped   int `gorm:"default:0" json:"files_skipped"`
	ChunksIndexed  int `gorm:"default:0" json:"chunks_indexed"`
	ChunksSkipped  int `gorm:"default:0" json:"chunks_skipped"`
	SecretsFound   int `gorm:"default:0" json:"secrets_found"`

	// Timing
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error handling
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
}

// IndexRequest is the ingress payload for POST /repositories/{repo_id}/index.
// It travels through the indexing queue unchanged.
type IndexRequest struct {
	RepoID      string `json:"repo_id" binding:"omitempty" validate:"required"`
	GitURL      string `json:"git_url" binding:"required,url" validate:"required,url"`
	AccessToken string `json:"access_token" binding:"required" validate:"required"`
	Branch      string `json:"branch"`
	IndexDepth  string `json:"index_depth" binding:"omitempty,oneof=shallow full" validate:"omitempty,oneof=shallow full"`
}
