package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yashrajoria/graphql-gateway/awsutil"
	apperrors "github.com/yashrajoria/graphql-gateway/errors"
)

var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// GatewayMetrics holds every Prometheus collector of the gateway on its own
// registry.
type GatewayMetrics struct {
	registry *prometheus.Registry

	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	BackendCalls     *prometheus.CounterVec
	BackendLatencyMS *prometheus.HistogramVec

	PoolInUse    prometheus.Gauge
	PoolWaiting  prometheus.Gauge
	PoolRejected prometheus.Counter

	CacheLookups  *prometheus.CounterVec
	GraphQLErrors *prometheus.CounterVec
}

func NewGatewayMetrics() *GatewayMetrics {
	const namespace = "gateway"

	m := &GatewayMetrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"route"}),
		BackendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Outbound backend calls by outcome.",
		}, []string{"backend", "method", "outcome"}),
		BackendLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_ms",
			Help:      "Outbound backend call latency in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"backend"}),
		PoolInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_in_use",
			Help:      "Requests currently holding a worker slot.",
		}),
		PoolWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_waiting",
			Help:      "Requests waiting for a worker slot.",
		}),
		PoolRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_pool_abandoned_total",
			Help:      "Requests whose client went away while waiting for a slot.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result.",
		}, []string{"cache", "result"}),
		GraphQLErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graphql_errors_total",
			Help:      "Field errors returned to clients by error code.",
		}, []string{"code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests, m.LatencyMS,
		m.BackendCalls, m.BackendLatencyMS,
		m.PoolInUse, m.PoolWaiting, m.PoolRejected,
		m.CacheLookups, m.GraphQLErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *GatewayMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveRequest records one finished inbound request.
func (m *GatewayMetrics) ObserveRequest(route string, status int, d time.Duration) {
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(d.Milliseconds()))
}

// ObserveBackendCall implements clients.Observer.
func (m *GatewayMetrics) ObserveBackendCall(backend, method string, _ int, d time.Duration, err error) {
	m.BackendCalls.WithLabelValues(backend, method, outcome(err)).Inc()
	m.BackendLatencyMS.WithLabelValues(backend).Observe(float64(d.Milliseconds()))
}

// ObserveCache implements cache.Observer.
func (m *GatewayMetrics) ObserveCache(name string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(name, result).Inc()
}

// ObserveGraphQLError counts one field error by its numeric code.
func (m *GatewayMetrics) ObserveGraphQLError(code int) {
	m.GraphQLErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperrors.From(err).Kind.String()
}

// CloudWatchBackendObserver forwards backend call metrics to CloudWatch.
type CloudWatchBackendObserver struct {
	Client *awsutil.MetricsClient
}

// ObserveBackendCall implements clients.Observer. Sending happens off the
// request path.
func (o CloudWatchBackendObserver) ObserveBackendCall(backend, method string, _ int, d time.Duration, err error) {
	if !o.Client.IsEnabled() {
		return
	}
	dims := map[string]string{"Backend": backend, "Method": method, "Outcome": outcome(err)}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Client.RecordCount(ctx, awsutil.MetricBackendCalls, dims)
		_ = o.Client.RecordLatency(ctx, awsutil.MetricBackendLatency, d, dims)
		if err != nil {
			_ = o.Client.RecordCount(ctx, awsutil.MetricBackendFailures, dims)
		}
	}()
}
