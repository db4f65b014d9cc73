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
	"github.com/reviewhub/reviewhub/internal/platform"
	"github.com/reviewhub/reviewhub/internal/platform/prurl"
	"github.com/reviewhub/reviewhub/internal/store"
	pkgerrors "github.com/reviewhub/reviewhub/pkg/errors"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// SubmitReviewRequest is the operator submission body. Reviews enter by
// PR URL; the platform API resolves the commit range.
type SubmitReviewRequest struct {
	PRURL       string             `json:"pr_url" binding:"required"`
	Config      model.ReviewConfig `json:"config"`
	Source      string             `json:"source" binding:"omitempty,oneof=cli mcp"`
	CallbackURL string             `json:"callback_url" binding:"omitempty,url"`
}

// ReviewHandler serves operator review submissions and lookups
type ReviewHandler struct {
	store      store.Store
	dispatcher *broker.Dispatcher
	adapters   map[string]platform.Adapter
	parser     *prurl.Parser
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(st store.Store, dispatcher *broker.Dispatcher, adapters map[string]platform.Adapter, parser *prurl.Parser) *ReviewHandler {
	if parser == nil {
		parser = prurl.DefaultParser
	}
	return &ReviewHandler{
		store:      st,
		dispatcher: dispatcher,
		adapters:   adapters,
		parser:     parser,
	}
}

// HandleSubmitReview handles POST /api/v1/reviews
func (h *ReviewHandler) HandleSubmitReview(c *gin.Context) {
	var req SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		status, code := bindingStatus(err)
		respondError(c, status, code, "invalid review request: "+err.Error())
		return
	}

	ref, err := h.parser.Parse(req.PRURL)
	if err != nil {
		respondError(c, http.StatusBadRequest, pkgerrors.ErrCodeValidation,
			"cannot parse PR URL: "+err.Error())
		return
	}

	adapter, ok := h.adapters[ref.Platform]
	if !ok {
		respondError(c, http.StatusBadRequest, pkgerrors.ErrCodePlatformNotFound,
			"platform not configured: "+ref.Platform)
		return
	}

	meta, err := adapter.ResolvePR(c.Request.Context(), ref.RepoID, ref.Number)
	if err != nil {
		logger.Warn("Failed to resolve PR",
			zap.String("pr", ref.String()),
			zap.Error(err),
		)
		respondError(c, http.StatusBadGateway, pkgerrors.ErrCodePlatformUnavailable,
			"failed to resolve PR from platform: "+err.Error())
		return
	}

	source := model.SourceCLI
	if req.Source == string(model.SourceMCP) {
		source = model.SourceMCP
	}
	meta.Source = source
	meta.CallbackURL = req.CallbackURL

	payload, err := model.EncodePayload(&model.ReviewTaskPayload{
		Meta:   *meta,
		Config: req.Config,
		Event:  string(platform.EventPullRequest),
	})
	if err != nil {
		logger.Error("Failed to encode review payload", zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to encode task payload")
		return
	}

	task := &model.ReviewTask{
		Type:    model.TaskTypeCodeReview,
		RepoID:  meta.RepoID,
		Payload: payload,
	}
	if err := h.dispatcher.Dispatch(c.Request.Context(), task); err != nil {
		logger.Error("Failed to enqueue review task",
			zap.String("pr", ref.String()),
			zap.Error(err),
		)
		respondError(c, http.StatusServiceUnavailable, pkgerrors.ErrCodeQueueUnavailable,
			"task queue unavailable")
		return
	}

	logger.Info("Review submitted",
		zap.String("pr", ref.String()),
		zap.String("source", string(source)),
		zap.String("task_id", task.TaskID),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":  task.TaskID,
		"trace_id": task.TraceID,
		"repo_id":  meta.RepoID,
		"status":   "pending",
	})
}

// HandleListReviews handles GET /api/v1/reviews
func (h *ReviewHandler) HandleListReviews(c *gin.Context) {
	limit, offset := pagination(c, 20, 100)

	reviews, total, err := h.store.Review().List(c.Query("repo_id"), c.Query("status"), limit, offset)
	if err != nil {
		logger.Error("Failed to list reviews", zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to list reviews")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reviews": reviews,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// HandleGetReview handles GET /api/v1/reviews/:review_id
func (h *ReviewHandler) HandleGetReview(c *gin.Context) {
	reviewID := c.Param("review_id")

	review, err := h.store.Review().GetByID(reviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, pkgerrors.ErrCodeNotFound,
				"review not found: "+reviewID)
			return
		}
		logger.Error("Failed to load review", zap.String("review_id", reviewID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to load review")
		return
	}

	c.JSON(http.StatusOK, review)
}
