// Package consts defines cross-module constants used throughout the application.
package consts

import (
	"sync"
	"time"
)

// ServiceName is the application service name
const ServiceName = "reviewhub"

// MetricPrefix is prepended to every metric name exposed by the application
const MetricPrefix = "reviewhub_"

// Queue names for the task broker. Every task is routed to exactly one of these.
const (
	// QueueCodeReview carries pull-request and push review tasks
	QueueCodeReview = "code_review"

	// QueueIndexing carries repository indexing tasks
	QueueIndexing = "indexing"

	// QueueFeedback carries user feedback processing tasks
	QueueFeedback = "feedback"

	// QueueDefault carries everything else
	QueueDefault = "default"
)

// Queues lists all broker queues in routing order
var Queues = []string{QueueCodeReview, QueueIndexing, QueueFeedback, QueueDefault}

// Project information constants
const (
	// ProjectName is the display name of the project
	ProjectName = "ReviewHub"

	// ProjectURL is the GitHub repository URL
	ProjectURL = "https://github.com/reviewhub/reviewhub"
)

// Build information - set via ldflags during build or programmatically
var (
	// Version is the application version
	Version = "dev"

	// BuildTime is the build timestamp
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Server runtime information
var (
	startedAt   time.Time
	startedOnce sync.Once
)

// SetStartedAt records the server start time (can only be called once)
func SetStartedAt(t time.Time) {
	startedOnce.Do(func() {
		startedAt = t
	})
}

// GetStartedAt returns the server start time
func GetStartedAt() time.Time {
	return startedAt
}

// GetUptime returns the duration since server started
func GetUptime() time.Duration {
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt)
}
