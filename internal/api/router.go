package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/domain"
	"github.com/persistorai/kpfed/internal/middleware"
	"github.com/persistorai/kpfed/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log       *logrus.Logger
	Expander  domain.Expander
	Directory domain.Directory
	Hub       *ws.Hub
	// DB is nil when no synonym database is configured.
	DB           HealthChecker
	CORSOrigins  []string
	Version      string
	RateLimitRPS float64
}

// Router-level limits.
const (
	maxBodySize      = 10 << 20 // 10 MB; seeded knowledge graphs can be large
	defaultRateLimit = 20
	rateBurstFactor  = 2
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(middleware.AccessLog(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins: deps.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		MaxAge:       1 * time.Hour,
	}))

	rps := deps.RateLimitRPS
	if rps <= 0 {
		rps = defaultRateLimit
	}

	r.Use(middleware.NewRateLimiter(ctx, rps, int(rps)*rateBurstFactor).Handler())
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	var clients ClientCounter
	if deps.Hub != nil {
		clients = deps.Hub
	}

	health := NewHealthHandler(deps.Directory, deps.DB, clients, deps.Log, deps.Version)
	expand := NewExpandHandler(deps.Expander, deps.Log)
	providers := NewProviderHandler(deps.Directory, deps.Log)

	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	api.POST("/expand", expand.Expand)

	api.GET("/providers", providers.List)
	api.POST("/providers/refresh", providers.Refresh)

	if deps.Hub != nil {
		api.GET("/ws", wsHandler(ctx, deps.Log, deps.Hub, deps.CORSOrigins))
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
