// Package httputil provides shared HTTP response helpers.
package httputil

import "github.com/gin-gonic/gin"

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	// Partial carries whatever was computed before the failure, if anything.
	Partial any `json:"partial,omitempty"`
}

// RespondError writes a standardized JSON error response and aborts the request.
func RespondError(c *gin.Context, status int, code, message string) {
	RespondErrorWithPartial(c, status, code, message, nil)
}

// RespondErrorWithPartial is RespondError with a partial result attached.
func RespondErrorWithPartial(c *gin.Context, status int, code, message string, partial any) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: c.GetString("request_id"),
		Partial:   partial,
	})
}
