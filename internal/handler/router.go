package handler

import (
	"log/slog"
	"net/http"

	"github.com/ad-tracker/video-catalog-go/internal/metrics"
	"github.com/ad-tracker/video-catalog-go/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	// Prefix is "" or a path like "/api" under which the catalog is mounted.
	Prefix    string
	Videos    *VideoHandler
	Health    *HealthHandler
	APIKeys   []string
	AccessLog *zap.Logger
	Logger    *slog.Logger
}

// NewRouter builds the gin engine. Health, metrics and the root greeting
// stay outside the prefix and never require an API key.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.AccessLog == nil {
		cfg.AccessLog = zap.NewNop()
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(cfg.AccessLog),
		metrics.GinMiddleware(),
	)

	r.GET("/", cfg.Health.Root)
	r.GET("/health/live", cfg.Health.LivenessProbe)
	r.GET("/health/ready", cfg.Health.ReadinessProbe)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group(cfg.Prefix)
	if len(cfg.APIKeys) > 0 {
		api.Use(middleware.NewAPIKeyAuth(cfg.APIKeys, cfg.Logger).Handler())
	}
	cfg.Videos.RegisterRoutes(api)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	})

	return r
}
