package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-schedule-api/pkg/response"
)

// WithResponseMeta stamps the request start so success envelopes can report
// processing time.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(response.StartedAtKey, time.Now())
		c.Next()
	}
}
