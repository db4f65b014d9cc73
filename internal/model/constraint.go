// Package model defines the data models for the application.
package model

import (
	"time"
)

// Constraint confidence scoring parameters
const (
	// ConstraintInitialConfidence is the score assigned to a brand-new constraint
	ConstraintInitialConfidence = 0.5
	// ConstraintReinforceStep is added for each similar rejection
	ConstraintReinforceStep = 0.1
	// ConstraintMaxConfidence caps reinforcement
	ConstraintMaxConfidence = 1.0
	// ConstraintColdStartCap caps the initial score even when a near-duplicate existed
	ConstraintColdStartCap = 0.7
)

// LearnedConstraint is a per-repository suppression rule distilled from
// rejected review comments. Constraints expire unless reinforced.
type LearnedConstraint struct {
	ID        string    `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RepoID          string `gorm:"size:255;not null;index" json:"repo_id"`
	ViolationReason string `gorm:"type:text;not null" json:"violation_reason"`
	CodePattern     string `gorm:"type:text" json:"code_pattern"` // stored post-redaction
	UserReason      string `gorm:"type:text" json:"user_reason,omitempty"`
	Embedding       Vector `gorm:"type:text" json:"-"`

	ConfidenceScore float64   `gorm:"not null;default:0.5" json:"confidence_score"`
	ExpiresAt       time.Time `gorm:"index" json:"expires_at"`
	Version         int       `gorm:"default:1" json:"version"`
}

// IsExpired reports whether the constraint has lapsed
func (c *LearnedConstraint) IsExpired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// Reinforce bumps the confidence by one step, capped at the maximum,
// and increments the version
func (c *LearnedConstraint) Reinforce() {
	c.ConfidenceScore += ConstraintReinforceStep
	if c.ConfidenceScore > ConstraintMaxConfidence {
		c.ConfidenceScore = ConstraintMaxConfidence
	}
	c.Version++
}

// ConstraintMatch is a retrieval hit from the constraint store
type ConstraintMatch struct {
	Constraint LearnedConstraint `json:"constraint"`
	Similarity float64           `json:"similarity"`
}

// ConfidenceLevel buckets a confidence score for metric labels.
// All above-threshold constraints suppress equally; the bucket is
// observability only.
func ConfidenceLevel(score float64) string {
	switch {
	case score < 0.6:
		return "low"
	case score < 0.8:
		return "medium"
	default:
		return "high"
	}
}
