package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a structured error response from the kpfed API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
	// Partial is set on inconsistent-binding errors.
	Partial *ExpandResponse `json:"partial,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("kpfed: %d %s: %s (request_id=%s)", e.StatusCode, e.Code, e.Message, e.RequestID)
	}

	return fmt.Sprintf("kpfed: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func statusIs(err error, status int) bool {
	var e *APIError
	return errors.As(err, &e) && e.StatusCode == status
}

// IsConflict reports a 409: inconsistent bindings or a refresh already running.
func IsConflict(err error) bool { return statusIs(err, http.StatusConflict) }

// IsUnsupported reports a 422: the chosen provider cannot answer the query graph.
func IsUnsupported(err error) bool { return statusIs(err, http.StatusUnprocessableEntity) }

// IsRateLimited reports a 429.
func IsRateLimited(err error) bool { return statusIs(err, http.StatusTooManyRequests) }

// parseAPIError attempts to decode a JSON error body; falls back to raw text.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "unknown"
		apiErr.Message = string(body)
	}

	return apiErr
}
