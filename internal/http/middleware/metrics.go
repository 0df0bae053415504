package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/medicore-backend/internal/observability"
)

const unmatchedRoute = "unmatched"

// Metrics records request counts and latency per route template. Requests that
// match no route share one label so probing clients cannot blow up cardinality.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		m.APIInflightInc()
		defer m.APIInflightDec()
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.ObserveAPI(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
