// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/model"
	pkgerrors "github.com/reviewhub/reviewhub/pkg/errors"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// FeedbackHandler accepts developer feedback submissions and routes
// them to the feedback queue; learning happens asynchronously.
type FeedbackHandler struct {
	dispatcher *broker.Dispatcher
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(dispatcher *broker.Dispatcher) *FeedbackHandler {
	return &FeedbackHandler{dispatcher: dispatcher}
}

// HandleFeedback handles POST /feedback
func (h *FeedbackHandler) HandleFeedback(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		status, code := bindingStatus(err)
		respondError(c, status, code, "invalid feedback: "+err.Error())
		return
	}

	payload, err := model.EncodePayload(&req)
	if err != nil {
		logger.Error("Failed to encode feedback payload", zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to encode task payload")
		return
	}

	task := &model.ReviewTask{
		Type:    model.TaskTypeFeedback,
		RepoID:  req.RepoID,
		Payload: payload,
	}
	if err := h.dispatcher.Dispatch(c.Request.Context(), task); err != nil {
		logger.Error("Failed to enqueue feedback task",
			zap.String("repo_id", req.RepoID),
			zap.Error(err),
		)
		respondError(c, http.StatusServiceUnavailable, pkgerrors.ErrCodeQueueUnavailable,
			"task queue unavailable")
		return
	}

	logger.Info("Feedback accepted",
		zap.String("repo_id", req.RepoID),
		zap.String("review_id", req.ReviewID),
		zap.String("action", req.Action),
		zap.String("task_id", task.TaskID),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":  task.TaskID,
		"trace_id": task.TraceID,
	})
}
