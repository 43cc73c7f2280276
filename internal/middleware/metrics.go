package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/consultportal/portal/pkg/metrics"
)

// Metrics records request latency metrics for each routed HTTP request.
// Unmatched paths are folded into one label to bound cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
