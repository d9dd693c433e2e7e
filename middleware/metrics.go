package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yashrajoria/graphql-gateway/awsutil"
	"github.com/yashrajoria/graphql-gateway/metrics"
)

// RouteKey is where the dispatcher stores the matched route name, used as
// a low-cardinality metrics label instead of the raw path.
const RouteKey = "route"

func routeLabel(c *gin.Context) string {
	if route := c.GetString(RouteKey); route != "" {
		return route
	}
	if full := c.FullPath(); full != "" {
		return full
	}
	return "unmatched"
}

// Prometheus records request count and latency per route.
func Prometheus(m *metrics.GatewayMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}

// CloudWatchMetrics records HTTP metrics to CloudWatch asynchronously.
func CloudWatchMetrics(metricsClient *awsutil.MetricsClient, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !metricsClient.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		dimensions := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Route":   routeLabel(c),
			"Status":  statusCodeToRange(statusCode),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = metricsClient.RecordCount(ctx, awsutil.MetricHTTPRequests, dimensions)
			_ = metricsClient.RecordLatency(ctx, awsutil.MetricHTTPLatency, duration, dimensions)

			switch {
			case statusCode >= 500:
				_ = metricsClient.RecordCount(ctx, awsutil.MetricHTTPErrors, dimensions)
				_ = metricsClient.RecordCount(ctx, awsutil.MetricHTTP5xx, dimensions)
			case statusCode >= 400:
				_ = metricsClient.RecordCount(ctx, awsutil.MetricHTTPErrors, dimensions)
				_ = metricsClient.RecordCount(ctx, awsutil.MetricHTTP4xx, dimensions)
			}
		}()
	}
}

// statusCodeToRange converts status code to a range string (2xx, 3xx, 4xx, 5xx)
func statusCodeToRange(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
