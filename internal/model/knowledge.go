// Package model defines the data models for the application.
package model

import (
	"fmt"
	"time"
)

// KnowledgeChunk is one embedded slice of repository content. Chunks are
// scoped to a repository and never returned across repo_id boundaries.
// The unique index on (repo_id, file_path, chunk_index) makes re-indexing
// supersede the prior chunk for the same position.
type KnowledgeChunk struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`

	RepoID     string `gorm:"size:255;not null;index;uniqueIndex:idx_chunk_identity,priority:1" json:"repo_id"`
	FilePath   string `gorm:"size:1024;not null;uniqueIndex:idx_chunk_identity,priority:2" json:"file_path"`
	ChunkIndex int    `gorm:"not null;uniqueIndex:idx_chunk_identity,priority:3" json:"chunk_index"`

	Branch     string `gorm:"size:255" json:"branch,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
	PRNumber   int    `json:"pr_number,omitempty"`
	LineNumber int    `json:"line_number,omitempty"`

	// Content is stored post-redaction; secrets never reach this column
	Content   string `gorm:"type:text;not null" json:"content"`
	Embedding Vector `gorm:"type:text" json:"-"`
}

// KnowledgeMatch is a retrieval hit with its similarity to the query
type KnowledgeMatch struct {
	Chunk      KnowledgeChunk `json:"chunk"`
	Similarity float64        `json:"similarity"`
}

// Citation renders the match as a human-readable reference for review output
func (m *KnowledgeMatch) Citation() string {
	if m.Chunk.PRNumber > 0 {
		return fmt.Sprintf("See PR #%d", m.Chunk.PRNumber)
	}
	if m.Chunk.LineNumber > 0 {
		return fmt.Sprintf("See %s:%d", m.Chunk.FilePath, m.Chunk.LineNumber)
	}
	return fmt.Sprintf("See %s", m.Chunk.FilePath)
}
