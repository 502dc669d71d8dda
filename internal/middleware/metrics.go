package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-schedule-api/internal/service"
)

// Metrics records request latency labelled by the matched route template, so
// ids in paths do not multiply series. Unmatched paths share one label.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
