package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/kpfed/internal/api"
	"github.com/persistorai/kpfed/internal/directory"
	"github.com/persistorai/kpfed/internal/models"
)

func sampleSnapshot() *directory.Snapshot {
	return &directory.Snapshot{
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Providers: map[string]directory.ProviderInfo{
			"infores:b": {URL: "http://b"},
			"infores:a": {
				URL:      "http://a",
				Prefixes: map[string][]string{"biolink:Gene": {"NCBIGene"}, "biolink:Disease": {"MONDO"}},
				Predicates: map[string]map[string][]string{
					"biolink:Disease": {"biolink:Gene": {"biolink:related_to", "biolink:causes"}},
					"biolink:Gene":    {"biolink:Disease": {"biolink:related_to"}},
				},
			},
		},
	}
}

func providerRouter(dir *mockDirectory) *gin.Engine {
	h := api.NewProviderHandler(dir, testLogger())

	r := gin.New()
	r.GET("/providers", h.List)
	r.POST("/providers/refresh", h.Refresh)

	return r
}

func TestProviders_List(t *testing.T) {
	r := providerRouter(&mockDirectory{current: sampleSnapshot()})

	w := doRequest(r, http.MethodGet, "/providers", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp models.ProvidersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if len(resp.Providers) != 2 || resp.Providers[0].Infores != "infores:a" {
		t.Fatalf("providers = %+v", resp.Providers)
	}

	a := resp.Providers[0]
	if !reflect.DeepEqual(a.Categories, []string{"biolink:Disease", "biolink:Gene"}) || a.PredicateCount != 2 {
		t.Errorf("infores:a summary = %+v", a)
	}

	if resp.Providers[1].Categories == nil {
		t.Error("categories should encode as an empty list")
	}
}

func TestProviders_ListUnavailable(t *testing.T) {
	r := providerRouter(&mockDirectory{snapshotFn: func(context.Context) (*directory.Snapshot, error) {
		return nil, directory.ErrNoSnapshot
	}})

	if w := doRequest(r, http.MethodGet, "/providers", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestProviders_Refresh(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"already running", directory.ErrRefreshInProgress, http.StatusConflict},
		{"failed", errors.New("registry unreadable"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := providerRouter(&mockDirectory{refreshFn: func(context.Context) (*directory.Snapshot, error) {
				if tt.err != nil {
					return nil, tt.err
				}

				return sampleSnapshot(), nil
			}})

			if w := doRequest(r, http.MethodPost, "/providers/refresh", ""); w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}
