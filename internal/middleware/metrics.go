// Package middleware provides the Gin middleware of the status API: request
// IDs, metrics, access logging, security headers, rate limiting and bearer
// token authentication.
//
// Registration order is fixed in api.NewRouter:
//
//	Recovery → RequestID → Metrics → Logger → SecurityHeaders → handlers
//
// RateLimit and TokenAuth are applied to the mutating route group only.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fairpm/fair-go/internal/telemetry"
)

// NoRouteLabel is the path label for requests that matched no route.
const NoRouteLabel = "<no-route>"

// MetricsMiddleware records telemetry.HTTPRequestsTotal and
// telemetry.HTTPRequestDuration for every request. The path label is the
// matched route template (c.FullPath()), never the raw URL, so slugs and DIDs
// in paths do not create new series.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = NoRouteLabel
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
