package middleware

import (
	"strconv"
	"time"

	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics counts requests per route template. Unmatched paths share the
// "unmatched" label so scanners cannot blow up the series count.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
