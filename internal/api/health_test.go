package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/kpfed/internal/api"
	"github.com/persistorai/kpfed/internal/models"
)

func healthRouter(h *api.HealthHandler) *gin.Engine {
	r := gin.New()
	r.GET("/health", h.Liveness)
	r.GET("/ready", h.Readiness)

	return r
}

func TestLiveness_ReturnsOK(t *testing.T) {
	t.Parallel()

	h := api.NewHealthHandler(&mockDirectory{current: sampleSnapshot()}, nil, nil, testLogger(), "test-v1")

	w := doRequest(healthRouter(h), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if body["status"] != "ok" || body["version"] != "test-v1" {
		t.Errorf("body = %v", body)
	}

	if body["database"] != "not_configured" || body["providers"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		dir    *mockDirectory
		db     api.HealthChecker
		status int
	}{
		{"ready", &mockDirectory{current: sampleSnapshot()}, nil, http.StatusOK},
		{"no snapshot", &mockDirectory{}, nil, http.StatusServiceUnavailable},
		{"database down", &mockDirectory{current: sampleSnapshot()}, mockDB{err: errors.New("down")}, http.StatusServiceUnavailable},
		{"database up", &mockDirectory{current: sampleSnapshot()}, mockDB{}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := api.NewHealthHandler(tt.dir, tt.db, nil, testLogger(), "test")

			if w := doRequest(healthRouter(h), http.MethodGet, "/ready", ""); w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestReadiness_ReportsSchemaVersionWithDatabase(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		db   api.HealthChecker
		want any
	}{
		{"database configured", mockDB{}, float64(2)},
		{"no database", nil, nil},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := api.NewHealthHandler(&mockDirectory{current: sampleSnapshot()}, tt.db, nil, testLogger(), "test")

			w := doRequest(healthRouter(h), http.MethodGet, "/ready", "")

			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}

			if body["schema_version"] != tt.want {
				t.Errorf("schema_version = %v, want %v", body["schema_version"], tt.want)
			}
		})
	}
}

func TestRouter_WiresRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := api.NewRouter(ctx, &api.RouterDeps{
		Log:       testLogger(),
		Directory: &mockDirectory{current: sampleSnapshot()},
		Expander: &mockExpander{expandFn: func(context.Context, *models.ExpandRequest) (*models.ExpandResponse, error) {
			return &models.ExpandResponse{ExpansionID: "exp-1"}, nil
		}},
		CORSOrigins: []string{"http://localhost:3000"},
		Version:     "test",
	})

	for _, tc := range []struct {
		method, path, body string
		status             int
	}{
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/ready", "", http.StatusOK},
		{http.MethodGet, "/api/v1/providers", "", http.StatusOK},
		{http.MethodPost, "/api/v1/expand", expandBody, http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/v1/ws?expansion_id=x", "", http.StatusNotFound},
	} {
		w := doRequest(r, tc.method, tc.path, tc.body)
		if w.Code != tc.status {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, w.Code, tc.status)
		}

		if w.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s %s: missing request id", tc.method, tc.path)
		}
	}
}
