package router

import (
	"context"
	"net/http"
	"time"

	"instagram-webhook/api/handlers"
	"instagram-webhook/api/middleware"
	"instagram-webhook/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether the relational store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Webhook *handlers.InstagramWebhookHandler
	Admin   *handlers.AdminHandler
	DB      Pinger
}

func Setup(logger *zap.Logger, deps Dependencies, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	security := middleware.NewSecurityMiddleware(
		logger,
		cfg.Security.APIKeys,
		cfg.Security.APIKeyHeader,
	)

	// Health check endpoint (no authentication required)
	router.GET("/health", func(c *gin.Context) {
		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.DB.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Metrics endpoint for Prometheus (no authentication required)
	metricsPath := cfg.Monitoring.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	router.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	// Meta authenticates with hub.verify_token and X-Hub-Signature-256;
	// the handler answers 405 for anything but GET and POST.
	router.Any("/webhook", deps.Webhook.HandleWebhook)

	if deps.Admin != nil {
		api := router.Group("/api")
		api.Use(security.CORS(), security.Authenticate(), security.RateLimit())
		{
			api.GET("/comments", deps.Admin.ListComments)
			api.GET("/comments/:comment_id/replies", deps.Admin.ListReplies)
			api.POST("/comments/:comment_id/replies", security.ValidatePayload(), deps.Admin.PostReply)
			api.GET("/messages", deps.Admin.ListMessages)
			api.POST("/messages", security.ValidatePayload(), deps.Admin.SendMessage)
			api.GET("/events", deps.Admin.ListEvents)
			api.GET("/account", deps.Admin.GetAccount)
			// preflight; answered by CORS before authentication
			api.OPTIONS("/*path", func(c *gin.Context) {})
		}
	}

	logger.Info("Router configured",
		zap.String("api_key_header", cfg.Security.APIKeyHeader),
		zap.Int("configured_clients", len(cfg.Security.APIKeys)),
	)

	return router
}
