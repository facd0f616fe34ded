// Package api provides the HTTP handlers of the kpfed server.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/db"
	"github.com/persistorai/kpfed/internal/domain"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	dir       domain.Directory
	db        HealthChecker
	ws        ClientCounter
	log       *logrus.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler. db and ws may be nil.
func NewHealthHandler(dir domain.Directory, db HealthChecker, ws ClientCounter, log *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{dir: dir, db: db, ws: ws, log: log, version: version, startTime: time.Now()}
}

type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Database      string  `json:"database"`
	Providers     int     `json:"providers"`
	WSClients     int     `json:"ws_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type readinessResponse struct {
	Status        string            `json:"status"`
	Checks        map[string]string `json:"checks"`
	SchemaVersion int               `json:"schema_version,omitempty"`
}

// Liveness handles GET /api/v1/health.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		Database:      "not_configured",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		resp.Database = "connected"
		if err := h.db.HealthCheck(ctx); err != nil {
			resp.Database = "disconnected"
		}
	}

	if snap := h.dir.Current(); snap != nil {
		resp.Providers = len(snap.Providers)
	}

	if h.ws != nil {
		resp.WSClients = h.ws.ClientCount()
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /api/v1/ready. The server is ready once a directory
// snapshot is loaded and, when configured, the synonym database answers.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := map[string]string{"directory": "ok"}
	status, code := "ready", http.StatusOK
	resp := readinessResponse{}

	if h.dir.Current() == nil {
		checks["directory"] = "not_loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks["database"] = "ok"
		resp.SchemaVersion = db.SchemaVersion()

		if err := h.db.HealthCheck(ctx); err != nil {
			h.log.WithError(err).Error("readiness: database health check failed")
			checks["database"] = "error"
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}

	resp.Status, resp.Checks = status, checks
	c.JSON(code, resp)
}
