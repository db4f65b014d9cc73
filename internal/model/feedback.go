// Package model defines the data models for the application.
package model

import (
	"time"
)

// FeedbackAction is a developer's decision on a review comment
type FeedbackAction string

const (
	FeedbackAccepted FeedbackAction = "accepted"
	FeedbackRejected FeedbackAction = "rejected"
	FeedbackModified FeedbackAction = "modified"
)

// Valid reports whether the action is a known decision
func (a FeedbackAction) Valid() bool {
	switch a {
	case FeedbackAccepted, FeedbackRejected, FeedbackModified:
		return true
	}
	return false
}

// FeedbackRecord is the append-only audit trail of developer decisions.
// Records are never updated or deleted, so the model carries no UpdatedAt
// or DeletedAt columns.
type FeedbackRecord struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	RepoID            string         `gorm:"size:255;not null;index" json:"repo_id"`
	ReviewID          string         `gorm:"size:20;not null;index" json:"review_id"`
	CommentID         string         `gorm:"size:64;not null" json:"comment_id"`
	UserID            string         `gorm:"size:255" json:"user_id,omitempty"`
	Action            FeedbackAction `gorm:"size:20;not null;index" json:"action"`
	Reason            string         `gorm:"size:255" json:"reason,omitempty"`
	DeveloperComment  string         `gorm:"size:1000" json:"developer_comment"`
	FinalCodeSnapshot string         `gorm:"type:text" json:"final_code_snapshot,omitempty"` // stored post-redaction
	TraceID           string         `gorm:"size:36" json:"trace_id"`
}

// FeedbackRequest is the ingress payload for POST /feedback. It travels
// through the feedback queue unchanged, so it carries both gin binding
// tags for the HTTP edge and validate tags for the worker side.
type FeedbackRequest struct {
	RepoID            string `json:"repo_id" binding:"required" validate:"required"`
	ReviewID          string `json:"review_id" binding:"required" validate:"required"`
	CommentID         string `json:"comment_id" binding:"required" validate:"required"`
	UserID            string `json:"user_id" binding:"omitempty,max=255" validate:"omitempty,max=255"`
	Action            string `json:"action" binding:"required,oneof=accepted rejected modified" validate:"required,oneof=accepted rejected modified"`
	Reason            string `json:"reason" binding:"required_if=Action rejected,max=255" validate:"required_if=Action rejected,max=255"`
	DeveloperComment  string `json:"developer_comment" binding:"required,min=1,max=1000" validate:"required,min=1,max=1000"`
	FinalCodeSnapshot string `json:"final_code_snapshot"`
}
