// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/platform"
	pkgerrors "github.com/reviewhub/reviewhub/pkg/errors"
	"github.com/reviewhub/reviewhub/pkg/logger"
	"github.com/reviewhub/reviewhub/pkg/telemetry"
)

// WebhookHandler is the ingress for platform webhooks. It verifies,
// normalizes, and enqueues; no review work runs on the request path.
type WebhookHandler struct {
	adapters   map[string]platform.Adapter
	cfg        *config.Config
	dispatcher *broker.Dispatcher
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(adapters map[string]platform.Adapter, cfg *config.Config, dispatcher *broker.Dispatcher) *WebhookHandler {
	return &WebhookHandler{
		adapters:   adapters,
		cfg:        cfg,
		dispatcher: dispatcher,
	}
}

// HandleWebhook handles POST /webhook/:platform
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	platformName := c.Param("platform")

	adapter, ok := h.adapters[platformName]
	if !ok {
		logger.Warn("Webhook for unknown platform", zap.String("platform", platformName))
		respondError(c, http.StatusBadRequest, pkgerrors.ErrCodePlatformNotFound,
			"unknown platform: "+platformName)
		return
	}
	telemetry.GetMetrics().RecordWebhookReceived(c.Request.Context(), platformName)

	var secret string
	if pc := h.cfg.GetPlatform(platformName); pc != nil {
		secret = pc.WebhookSecret
	}
	if secret == "" {
		logger.Warn("Webhook secret not configured, signature validation skipped",
			zap.String("platform", platformName),
		)
	}

	event, err := adapter.ParseWebhook(c.Request, secret)
	if err != nil {
		if platform.IsSignatureError(err) {
			logger.Warn("Webhook signature rejected",
				zap.String("platform", platformName),
				zap.String("ip", c.ClientIP()),
			)
			respondError(c, http.StatusUnauthorized, pkgerrors.ErrCodePlatformSignature,
				"webhook signature verification failed")
			return
		}
		logger.Warn("Failed to parse webhook",
			zap.String("platform", platformName),
			zap.Error(err),
		)
		respondError(c, http.StatusBadRequest, pkgerrors.ErrCodePlatformPayload,
			"failed to parse webhook: "+err.Error())
		return
	}

	// Unrecognized events and non-reviewable PR actions are acknowledged
	// so the platform does not retry them
	if event.Kind == platform.EventIgnored {
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "ignored",
			"message": "event acknowledged but not reviewed",
			"action":  event.Action,
		})
		return
	}

	meta := event.Metadata
	if meta == nil {
		respondError(c, http.StatusBadRequest, pkgerrors.ErrCodePlatformPayload,
			"webhook carries no review metadata")
		return
	}
	if err := meta.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, pkgerrors.ErrCodePlatformPayload,
			"invalid review metadata: "+err.Error())
		return
	}

	payload, err := model.EncodePayload(&model.ReviewTaskPayload{
		Meta:  *meta,
		Event: string(event.Kind),
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
			zap.String("platform", platformName),
			zap.String("repo_id", meta.RepoID),
			zap.Error(err),
		)
		respondError(c, http.StatusServiceUnavailable, pkgerrors.ErrCodeQueueUnavailable,
			"task queue unavailable")
		return
	}

	logger.Info("Webhook accepted",
		zap.String("platform", platformName),
		zap.String("repo_id", meta.RepoID),
		zap.Int("pr_number", meta.PRNumber),
		zap.String("event", string(event.Kind)),
		zap.String("task_id", task.TaskID),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":  task.TaskID,
		"trace_id": task.TraceID,
		"status":   "pending",
		"message":  "review queued",
	})
}
