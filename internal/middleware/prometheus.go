package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/kpfed/internal/metrics"
)

// Metrics records HTTP request duration and count, and counts server errors.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath() // route pattern keeps label cardinality bounded
		if path == "" {
			path = "unknown"
		}

		code := strconv.Itoa(status)
		metrics.RequestDuration.WithLabelValues(c.Request.Method, path, code).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, path, code).Inc()

		if status >= 500 {
			metrics.ErrorsTotal.WithLabelValues("http_" + code).Inc()
		}
	}
}
