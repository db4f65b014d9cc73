// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/health"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/store"
	pkgerrors "github.com/reviewhub/reviewhub/pkg/errors"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// StatsHandler serves the operator stats snapshot
type StatsHandler struct {
	store   store.Store
	queue   broker.Broker
	monitor *health.Monitor
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(st store.Store, queue broker.Broker, monitor *health.Monitor) *StatsHandler {
	return &StatsHandler{store: st, queue: queue, monitor: monitor}
}

// HandleStats handles GET /api/v1/stats
func (h *StatsHandler) HandleStats(c *gin.Context) {
	var stats model.SystemStats
	var err error

	count := func(name string, dst *int64, fn func() (int64, error)) {
		if err != nil {
			return
		}
		*dst, err = fn()
		if err != nil {
			logger.Error("Failed to compute stats", zap.String("counter", name), zap.Error(err))
		}
	}

	count("total_reviews", &stats.TotalReviews, h.store.Review().CountAll)
	count("completed_reviews", &stats.CompletedReviews, func() (int64, error) {
		return h.store.Review().CountByStatusOnly(model.ReviewStatusCompleted)
	})
	count("failed_reviews", &stats.FailedReviews, func() (int64, error) {
		return h.store.Review().CountByStatusOnly(model.ReviewStatusFailed)
	})
	count("total_repositories", &stats.TotalRepositories, h.store.Repository().CountAll)
	count("indexed_chunks", &stats.IndexedChunks, h.store.Knowledge().CountAll)
	count("active_constraints", &stats.ActiveConstraints, func() (int64, error) {
		return h.store.Constraint().CountAllActive(time.Now())
	})
	count("feedback_records", &stats.FeedbackRecords, h.store.Feedback().CountAll)
	count("queued_tasks", &stats.QueuedTasks, func() (int64, error) {
		return h.store.Task().CountByStatus(model.TaskStatusQueued)
	})
	count("processing_tasks", &stats.ProcessingTasks, func() (int64, error) {
		return h.store.Task().CountByStatus(model.TaskStatusProcessing)
	})
	count("failed_tasks", &stats.FailedTasks, func() (int64, error) {
		return h.store.Task().CountByStatus(model.TaskStatusFailed)
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to compute stats")
		return
	}

	resp := gin.H{"stats": stats}

	// Queue depths come from the broker, not the task table; a broker
	// outage degrades this field rather than failing the endpoint
	if depths, derr := h.queue.Depths(c.Request.Context()); derr == nil {
		resp["queue_depths"] = depths
	} else {
		logger.Warn("Failed to read queue depths", zap.Error(derr))
	}
	if h.monitor != nil {
		resp["fallback_level"] = h.monitor.Level()
	}

	c.JSON(http.StatusOK, resp)
}
