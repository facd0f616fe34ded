package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/domain"
	"github.com/persistorai/kpfed/internal/httputil"
	"github.com/persistorai/kpfed/internal/metrics"
	"github.com/persistorai/kpfed/internal/middleware"
	"github.com/persistorai/kpfed/internal/models"
)

// ExpandHandler serves the expansion endpoint.
type ExpandHandler struct {
	svc domain.Expander
	log *logrus.Logger
}

// NewExpandHandler creates an ExpandHandler.
func NewExpandHandler(svc domain.Expander, log *logrus.Logger) *ExpandHandler {
	return &ExpandHandler{svc: svc, log: log}
}

// Expand handles POST /api/v1/expand. A binding conflict still returns the
// graph built before it, under "partial".
func (h *ExpandHandler) Expand(c *gin.Context) {
	var req models.ExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	log := middleware.Logger(c, h.log)

	resp, err := h.svc.Expand(c.Request.Context(), &req)
	if err != nil {
		status, code := classify(err)

		if status >= http.StatusInternalServerError {
			log.WithError(err).Error("expand.request")
			respondError(c, status, code, "expansion failed")

			return
		}

		log.WithError(err).Info("expand.rejected")

		if code == ErrCodeInconsistentBindings && resp != nil {
			metrics.ErrorsTotal.WithLabelValues(code).Inc()
			httputil.RespondErrorWithPartial(c, status, code, err.Error(), resp)

			return
		}

		respondError(c, status, code, err.Error())

		return
	}

	log.WithFields(logrus.Fields{
		"expansion_id": resp.ExpansionID,
		"nodes":        resp.NodeCount,
		"edges":        resp.EdgeCount,
	}).Info("expand.request")

	c.JSON(http.StatusOK, resp)
}
