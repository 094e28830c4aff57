package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/careerhub/pkg/metrics"
)

// unmatchedRoute labels requests that hit no registered route so probes for
// arbitrary paths cannot grow the label set.
const unmatchedRoute = "unmatched"

// Metrics records request latency by route template. Websocket upgrades are
// skipped because their duration is the lifetime of the stream.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isWebsocketUpgrade(c) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

func isWebsocketUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}
