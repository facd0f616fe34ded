// Package middleware provides the gin middleware chain of the kpfed server.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDKey is the gin context key for the request ID.
	RequestIDKey = "request_id"

	// RequestIDHeader is the HTTP header used to propagate the request ID.
	RequestIDHeader = "X-Request-ID"

	loggerKey = "logger"
)

// RequestID assigns every request a fresh server-side UUID and a logger
// carrying it. A client-supplied X-Request-ID is logged alongside but never
// becomes the canonical ID.
func RequestID(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		entry := log.WithField("request_id", id)

		if clientID := c.GetHeader(RequestIDHeader); clientID != "" {
			entry = entry.WithField("client_request_id", clientID)
		}

		c.Set(RequestIDKey, id)
		c.Set(loggerKey, entry)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Logger returns the request-scoped logger, or an entry on fallback when
// RequestID did not run.
func Logger(c *gin.Context, fallback *logrus.Logger) *logrus.Entry {
	if v, ok := c.Get(loggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}

	return logrus.NewEntry(fallback)
}

// AccessLog writes one line per request once it completes. Server errors log
// at warn level.
func AccessLog(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := Logger(c, log).WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})

		if c.Writer.Status() >= 500 {
			entry.Warn("http.request")
			return
		}

		entry.Debug("http.request")
	}
}
