package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/yashrajoria/graphql-gateway/logger"
	"github.com/yashrajoria/graphql-gateway/metrics"
	"github.com/yashrajoria/graphql-gateway/requestctx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestLoggerLevelByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(logger.CorrelationKey, "corr-9"); c.Next() })
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	serve(r, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "x=1", fields["query"])
	assert.Equal(t, "corr-9", fields[logger.CorrelationKey])
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestRateLimitPerClient(t *testing.T) {
	limiter := NewRateLimiter(rate.Limit(0.001), 2, time.Minute)
	r := gin.New()
	r.Use(RateLimit(limiter))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := func(ip string) int {
		q := httptest.NewRequest(http.MethodGet, "/", nil)
		q.RemoteAddr = ip + ":1234"
		return serve(r, q).Code
	}

	assert.Equal(t, http.StatusOK, req("10.0.0.1"))
	assert.Equal(t, http.StatusOK, req("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, req("10.0.0.1"))
	assert.Equal(t, http.StatusOK, req("10.0.0.2"))
}

func TestRateLimiterCleanup(t *testing.T) {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(rate.Limit(1), 1, time.Minute)
	limiter.now = func() time.Time { return current }

	first := limiter.GetLimiter("a")
	assert.Same(t, first, limiter.GetLimiter("a"))

	current = current.Add(2 * time.Minute)
	limiter.Cleanup()
	assert.NotSame(t, first, limiter.GetLimiter("a"))
}

func TestPerMinute(t *testing.T) {
	assert.InDelta(t, 10.0, float64(PerMinute(600)), 0.0001)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://shop.example.com"}))
	r.POST("/graphql", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Session-Id, Currency")
	w := serve(r, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Session-Id")

	req = httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPrometheusUsesRouteLabel(t *testing.T) {
	m := metrics.NewGatewayMetrics()
	r := gin.New()
	r.Use(Prometheus(m))
	r.NoRoute(func(c *gin.Context) {
		c.Set(RouteKey, "GraphQL")
		c.Status(http.StatusOK)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/graphql/", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/graphql", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("GraphQL", "200")))
}

func TestStatusCodeToRange(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToRange(204))
	assert.Equal(t, "3xx", statusCodeToRange(302))
	assert.Equal(t, "4xx", statusCodeToRange(429))
	assert.Equal(t, "5xx", statusCodeToRange(503))
	assert.Equal(t, "unknown", statusCodeToRange(100))
}

func TestCloudWatchMetricsDisabledPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(CloudWatchMetrics(nil, "gateway"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	assert.Equal(t, http.StatusTeapot, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	m := metrics.NewGatewayMetrics()
	release := make(chan struct{})
	entered := make(chan struct{}, 4)

	r := gin.New()
	r.Use(WorkerPool(1, m))
	r.GET("/", func(c *gin.Context) {
		entered <- struct{}{}
		<-release
		c.Status(http.StatusOK)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	}()
	<-entered
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolInUse))

	// A second request whose client gives up while queued is rejected.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- serve(r, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	}()
	require.Eventually(t, func() bool { return testutil.ToFloat64(m.PoolWaiting) == 1 }, time.Second, time.Millisecond)
	cancel()

	w := <-done
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolRejected))

	close(release)
	wg.Wait()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PoolInUse))
	assert.Len(t, entered, 0)
}

func TestRequestContextStoresPerRequestState(t *testing.T) {
	shared := &requestctx.Shared{}
	r := gin.New()
	r.Use(RequestContext(shared))

	var (
		rc   *requestctx.Context
		ok   bool
		corr string
	)
	r.GET("/", func(c *gin.Context) {
		rc, ok = requestctx.FromContext(c.Request.Context())
		corr = logger.Correlation(c.Request.Context())
		c.String(http.StatusOK, c.GetString(logger.CorrelationKey))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestctx.HeaderCorrelationToken, "corr-42")
	req.Header.Set(requestctx.HeaderCurrency, "usd")
	w := serve(r, req)

	require.True(t, ok)
	assert.Equal(t, "corr-42", w.Body.String())
	assert.Equal(t, "corr-42", corr)
	assert.Equal(t, "corr-42", w.Header().Get(requestctx.HeaderCorrelationToken))
	currency, _ := rc.Currency()
	assert.Equal(t, "USD", currency)
}
