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

// TaskHandler serves task status lookups and the operator task listing
type TaskHandler struct {
	store      store.Store
	dispatcher *broker.Dispatcher
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(st store.Store, dispatcher *broker.Dispatcher) *TaskHandler {
	return &TaskHandler{store: st, dispatcher: dispatcher}
}

// HandleGetTask handles GET /tasks/:task_id
func (h *TaskHandler) HandleGetTask(c *gin.Context) {
	taskID := c.Param("task_id")

	status, err := h.dispatcher.Status(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, pkgerrors.ErrCodeTaskNotFound,
				"task not found: "+taskID)
			return
		}
		logger.Error("Failed to load task status", zap.String("task_id", taskID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to load task status")
		return
	}

	c.JSON(http.StatusOK, status)
}

// HandleListTasks handles GET /api/v1/tasks
func (h *TaskHandler) HandleListTasks(c *gin.Context) {
	limit, offset := pagination(c, 50, 200)
	query := model.TaskQuery{
		Status: model.TaskStatus(c.Query("status")),
		Type:   model.TaskType(c.Query("type")),
		Queue:  c.Query("queue"),
		RepoID: c.Query("repo_id"),
		Limit:  limit,
		Offset: offset,
	}

	tasks, total, err := h.store.Task().List(query)
	if err != nil {
		logger.Error("Failed to list tasks", zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to list tasks")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks":  tasks,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
