package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/directory"
	"github.com/persistorai/kpfed/internal/domain"
	"github.com/persistorai/kpfed/internal/middleware"
	"github.com/persistorai/kpfed/internal/models"
)

// ProviderHandler serves the provider directory endpoints.
type ProviderHandler struct {
	dir domain.Directory
	log *logrus.Logger
}

// NewProviderHandler creates a ProviderHandler.
func NewProviderHandler(dir domain.Directory, log *logrus.Logger) *ProviderHandler {
	return &ProviderHandler{dir: dir, log: log}
}

// List handles GET /api/v1/providers.
func (h *ProviderHandler) List(c *gin.Context) {
	snap, err := h.dir.Snapshot(c.Request.Context())
	if err != nil {
		middleware.Logger(c, h.log).WithError(err).Warn("providers.list")
		respondError(c, http.StatusServiceUnavailable, ErrCodeDirectoryUnavailable, "provider directory unavailable")

		return
	}

	c.JSON(http.StatusOK, summarize(snap))
}

// Refresh handles POST /api/v1/providers/refresh.
func (h *ProviderHandler) Refresh(c *gin.Context) {
	log := middleware.Logger(c, h.log)

	snap, err := h.dir.TryRefresh(c.Request.Context())
	if err != nil {
		if errors.Is(err, directory.ErrRefreshInProgress) {
			respondError(c, http.StatusConflict, ErrCodeRefreshInProgress, "a directory refresh is already running")
			return
		}

		log.WithError(err).Error("providers.refresh")
		respondError(c, http.StatusBadGateway, ErrCodeDirectoryUnavailable, "directory refresh failed")

		return
	}

	log.WithField("providers", len(snap.Providers)).Info("providers.refresh")

	c.JSON(http.StatusOK, summarize(snap))
}

func summarize(snap *directory.Snapshot) models.ProvidersResponse {
	out := models.ProvidersResponse{UpdatedAt: snap.UpdatedAt, Providers: []models.ProviderSummary{}}

	for _, name := range snap.ProviderNames() {
		info := snap.Providers[name]

		categories := make([]string, 0, len(info.Prefixes))
		for category := range info.Prefixes {
			categories = append(categories, category)
		}

		sort.Strings(categories)

		predicates := map[string]bool{}
		for _, objs := range info.Predicates {
			for _, preds := range objs {
				for _, p := range preds {
					predicates[p] = true
				}
			}
		}

		out.Providers = append(out.Providers, models.ProviderSummary{
			Infores:        name,
			URL:            info.URL,
			Categories:     categories,
			PredicateCount: len(predicates),
		})
	}

	return out
}
