// Package handler provides HTTP handlers for the API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/store"
	pkgerrors "github.com/reviewhub/reviewhub/pkg/errors"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// IndexHandler manages repository indexing jobs and the per-repository
// knowledge lifecycle.
type IndexHandler struct {
	store      store.Store
	dispatcher *broker.Dispatcher
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(st store.Store, dispatcher *broker.Dispatcher) *IndexHandler {
	return &IndexHandler{store: st, dispatcher: dispatcher}
}

// HandleIndex handles POST /repositories/:owner/:repo/index
func (h *IndexHandler) HandleIndex(c *gin.Context) {
	var req model.IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		status, code := bindingStatus(err)
		respondError(c, status, code, "invalid index request: "+err.Error())
		return
	}
	// The route owns the repository identity; a repo_id in the body is
	// ignored rather than trusted
	req.RepoID = pathRepoID(c)
	if req.IndexDepth == "" {
		req.IndexDepth = model.IndexDepthShallow
	}

	payload, err := model.EncodePayload(&req)
	if err != nil {
		logger.Error("Failed to encode index payload", zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to encode task payload")
		return
	}

	task := &model.ReviewTask{
		Type:    model.TaskTypeIndexing,
		RepoID:  req.RepoID,
		Payload: payload,
	}
	if err := h.dispatcher.Dispatch(c.Request.Context(), task); err != nil {
		logger.Error("Failed to enqueue indexing task",
			zap.String("repo_id", req.RepoID),
			zap.Error(err),
		)
		respondError(c, http.StatusServiceUnavailable, pkgerrors.ErrCodeQueueUnavailable,
			"task queue unavailable")
		return
	}

	logger.Info("Indexing queued",
		zap.String("repo_id", req.RepoID),
		zap.String("index_depth", req.IndexDepth),
		zap.String("task_id", task.TaskID),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.TaskID,
		"status":  "queued",
		"repo_id": req.RepoID,
	})
}

// HandleIndexStatus handles GET /repositories/:owner/:repo/index
func (h *IndexHandler) HandleIndexStatus(c *gin.Context) {
	repoID := pathRepoID(c)

	job, err := h.store.IndexJob().GetLatestByRepo(repoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, pkgerrors.ErrCodeNotFound,
				"repository has never been indexed")
			return
		}
		logger.Error("Failed to load index job", zap.String("repo_id", repoID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to load index job")
		return
	}

	c.JSON(http.StatusOK, job)
}

// HandleForget handles DELETE /api/v1/repositories/:owner/:repo/knowledge.
// It removes everything learned from one repository: knowledge chunks,
// constraints, and the feedback history behind them.
func (h *IndexHandler) HandleForget(c *gin.Context) {
	repoID := pathRepoID(c)

	chunks, err := h.store.Knowledge().DeleteAll(repoID)
	if err != nil {
		logger.Error("Failed to delete knowledge", zap.String("repo_id", repoID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to delete repository knowledge")
		return
	}
	constraints, err := h.store.Constraint().DeleteAll(repoID)
	if err != nil {
		logger.Error("Failed to delete constraints", zap.String("repo_id", repoID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to delete repository constraints")
		return
	}
	feedback, err := h.store.Feedback().DeleteAll(repoID)
	if err != nil {
		logger.Error("Failed to delete feedback", zap.String("repo_id", repoID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to delete repository feedback")
		return
	}

	logger.Info("Repository knowledge deleted",
		zap.String("repo_id", repoID),
		zap.Int64("chunks", chunks),
		zap.Int64("constraints", constraints),
		zap.Int64("feedback", feedback),
	)

	c.JSON(http.StatusOK, gin.H{
		"repo_id":             repoID,
		"deleted_chunks":      chunks,
		"deleted_constraints": constraints,
		"deleted_feedback":    feedback,
	})
}
