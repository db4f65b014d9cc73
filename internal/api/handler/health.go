// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reviewhub/reviewhub/internal/health"
)

// HealthHandler reports plane availability and the fallback level
type HealthHandler struct {
	monitor *health.Monitor
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(monitor *health.Monitor) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// HandleHealth handles GET /health. The endpoint always answers 200;
// degraded operation is reported in the body, not the status code, so
// load balancers keep routing while the pipeline sheds features.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	snap := h.monitor.Snapshot()

	status := "ok"
	if snap.Level != health.LevelFull {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"fallback_level": snap.Level,
		"planes":         snap.Planes,
	})
}
