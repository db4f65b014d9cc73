// Package model defines the data models for the application.
package model

// SystemStats is the aggregate operational snapshot served by the
// operator stats endpoint.
type SystemStats struct {
	TotalReviews     int64 `json:"total_reviews"`
	CompletedReviews int64 `json:"completed_reviews"`
	FailedReviews    int64 `json:"failed_reviews"`

	TotalRepositories int64 `json:"total_repositories"`
	IndexedChunks     int64 `json:"indexed_chunks"`
	ActiveConstraints int64 `json:"active_constraints"`
	FeedbackRecords   int64 `json:"feedback_records"`

	QueuedTasks     int64 `json:"queued_tasks"`
	ProcessingTasks int64 `json:"processing_tasks"`
	FailedTasks     int64 `json:"failed_tasks"`
}

// RepoLearningStats summarizes the learning loop for one repository over
// the trailing 30-day feedback window.
type RepoLearningStats struct {
	RepoID            string  `json:"repo_id"`
	TotalFeedback     int64   `json:"total_feedback"`
	AcceptedFeedback  int64   `json:"accepted_feedback"`
	RejectedFeedback  int64   `json:"rejected_feedback"`
	ModifiedFeedback  int64   `json:"modified_feedback"`
	ActiveConstraints int64   `json:"active_constraints"`

	// FalsePositiveRatio is rejected/total within the window; 0 when the
	// window holds no feedback.
	FalsePositiveRatio float64 `json:"false_positive_ratio"`
}
