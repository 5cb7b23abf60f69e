package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware records request counts and latency for every handler.
func GinMiddleware(metrics *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.Begin()

		c.Next()

		metrics.End(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
