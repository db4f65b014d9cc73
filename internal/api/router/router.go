// Package router sets up the API routes for the application.
// Public ingress endpoints live at the root; the operator surface is
// grouped under /api/v1 behind JWT authentication.
package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/reviewhub/reviewhub/consts"
	"github.com/reviewhub/reviewhub/internal/api/handler"
	"github.com/reviewhub/reviewhub/internal/api/middleware"
	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/health"
	"github.com/reviewhub/reviewhub/internal/platform"
	"github.com/reviewhub/reviewhub/internal/platform/prurl"
	"github.com/reviewhub/reviewhub/internal/store"
)

// Deps carries the shared components the routes are built on
type Deps struct {
	Config     *config.Config
	Store      store.Store
	Broker     broker.Broker
	Dispatcher *broker.Dispatcher
	Adapters   map[string]platform.Adapter
	Monitor    *health.Monitor
	Parser     *prurl.Parser
}

// Setup configures all API routes
func Setup(r *gin.Engine, d Deps) {
	// Apply global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger(&middleware.LoggerConfig{
		AccessLog: d.Config.Logging.AccessLog,
	}))
	r.Use(middleware.CORS(d.Config.Server.CORSOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler(d.Config.Server.Debug))

	// Apply OpenTelemetry tracing middleware
	r.Use(otelgin.Middleware(consts.ServiceName))

	// ============== Public ingress ==============

	healthHandler := handler.NewHealthHandler(d.Monitor)
	r.GET("/health", healthHandler.HandleHealth)

	// Webhooks authenticate with the platform signature, not a session
	webhookHandler := handler.NewWebhookHandler(d.Adapters, d.Config, d.Dispatcher)
	r.POST("/webhook/:platform", webhookHandler.HandleWebhook)

	feedbackHandler := handler.NewFeedbackHandler(d.Dispatcher)
	r.POST("/feedback", feedbackHandler.HandleFeedback)

	indexHandler := handler.NewIndexHandler(d.Store, d.Dispatcher)
	r.POST("/repositories/:owner/:repo/index", indexHandler.HandleIndex)
	r.GET("/repositories/:owner/:repo/index", indexHandler.HandleIndexStatus)

	taskHandler := handler.NewTaskHandler(d.Store, d.Dispatcher)
	r.GET("/tasks/:task_id", taskHandler.HandleGetTask)

	mcpHandler := handler.NewMCPHandler()
	r.GET("/mcp/manifest", mcpHandler.HandleManifest)

	// ============== Operator API (protected) ==============

	v1 := r.Group("/api/v1")

	authHandler := handler.NewAuthHandler(&d.Config.Auth)
	v1.POST("/auth/login", authHandler.HandleLogin)
	v1.GET("/auth/me", middleware.JWTAuth(authHandler), authHandler.HandleMe)

	reviewHandler := handler.NewReviewHandler(d.Store, d.Dispatcher, d.Adapters, d.Parser)
	reviews := v1.Group("/reviews")
	reviews.Use(middleware.JWTAuth(authHandler))
	{
		reviews.POST("", reviewHandler.HandleSubmitReview)
		reviews.GET("", reviewHandler.HandleListReviews)
		reviews.GET("/:review_id", reviewHandler.HandleGetReview)
	}

	v1.GET("/tasks", middleware.JWTAuth(authHandler), taskHandler.HandleListTasks)

	statsHandler := handler.NewStatsHandler(d.Store, d.Broker, d.Monitor)
	v1.GET("/stats", middleware.JWTAuth(authHandler), statsHandler.HandleStats)

	// Right to forget: drops everything learned from one repository
	v1.DELETE("/repositories/:owner/:repo/knowledge",
		middleware.JWTAuth(authHandler), indexHandler.HandleForget)
}
