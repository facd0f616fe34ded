package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/kpfed/internal/directory"
	"github.com/persistorai/kpfed/internal/httputil"
	"github.com/persistorai/kpfed/internal/metrics"
	"github.com/persistorai/kpfed/internal/models"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeInvalidQuery         = "invalid_query"
	ErrCodeUnknownValue         = "unknown_value"
	ErrCodeValidationError      = "validation_error"
	ErrCodeUnsupportedQG        = "unsupported_query_graph"
	ErrCodeInconsistentBindings = "inconsistent_bindings"
	ErrCodeDirectoryUnavailable = "directory_unavailable"
	ErrCodeRefreshInProgress    = "refresh_in_progress"
	ErrCodeTimeout              = "timeout"
	ErrCodeInternalError        = "internal_error"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// classify maps a service error to an HTTP status and error code. Unknown
// errors are internal.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, ErrCodeValidationError
	case errors.Is(err, models.ErrInvalidQuery):
		return http.StatusBadRequest, ErrCodeInvalidQuery
	case errors.Is(err, models.ErrUnknownValue):
		return http.StatusBadRequest, ErrCodeUnknownValue
	case errors.Is(err, models.ErrUnsupportedQG):
		return http.StatusUnprocessableEntity, ErrCodeUnsupportedQG
	case errors.Is(err, models.ErrMissingProperty), errors.Is(err, models.ErrMultipleQGIDs):
		return http.StatusConflict, ErrCodeInconsistentBindings
	case errors.Is(err, directory.ErrNoSnapshot):
		return http.StatusServiceUnavailable, ErrCodeDirectoryUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}
