package providers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"memoryd/internal/structures"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	IncCacheFallback(operation string)
	SetBreakerState(dependency string, state int)
	ObserveStoreDuration(operation string, duration time.Duration)
	IncTaskResult(task, result string)
	SetQueueDepth(depth int)
	IncRateLimited(kind string)
	IncEngagementRecomputed()
	IncDegradedContext(entity string)
}

type MetricsProvider struct {
	requestsTotal         *prometheus.CounterVec
	requestDuration       *prometheus.HistogramVec
	cacheHits             prometheus.Counter
	cacheMisses           prometheus.Counter
	cacheFallbacks        *prometheus.CounterVec
	breakerState          *prometheus.GaugeVec
	storeDuration         *prometheus.HistogramVec
	taskResults           *prometheus.CounterVec
	queueDepth            prometheus.Gauge
	rateLimited           *prometheus.CounterVec
	engagementRecomputed  prometheus.Counter
	degradedContextFields *prometheus.CounterVec
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) IncCacheFallback(operation string) {
	m.cacheFallbacks.WithLabelValues(operation).Inc()
}

func (m *MetricsProvider) SetBreakerState(dependency string, state int) {
	m.breakerState.WithLabelValues(dependency).Set(float64(state))
}

func (m *MetricsProvider) ObserveStoreDuration(operation string, duration time.Duration) {
	m.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncTaskResult(task, result string) {
	m.taskResults.WithLabelValues(task, result).Inc()
}

func (m *MetricsProvider) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *MetricsProvider) IncRateLimited(kind string) {
	m.rateLimited.WithLabelValues(kind).Inc()
}

func (m *MetricsProvider) IncEngagementRecomputed() {
	m.engagementRecomputed.Inc()
}

func (m *MetricsProvider) IncDegradedContext(entity string) {
	m.degradedContextFields.WithLabelValues(entity).Inc()
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	return &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memoryd_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memoryd_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memoryd_cache_hits_total",
			Help: "Total number of cache hits",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memoryd_cache_misses_total",
			Help: "Total number of cache misses",
		}),
		cacheFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memoryd_cache_fallbacks_total",
			Help: "Operations served in store-only mode because the cache was unavailable",
		}, []string{"operation"}),
		breakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "memoryd_breaker_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open)",
		}, []string{"dependency"}),
		storeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memoryd_store_duration_seconds",
			Help:    "Durable store call duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		taskResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memoryd_background_tasks_total",
			Help: "Background learning task outcomes",
		}, []string{"task", "result"}),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "memoryd_task_queue_depth",
			Help: "Current number of queued background tasks",
		}),
		rateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memoryd_rate_limited_total",
			Help: "Requests rejected by the per-creator rate limiter",
		}, []string{"kind"}),
		engagementRecomputed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memoryd_engagement_recomputed_total",
			Help: "Engagement metric recomputations",
		}),
		degradedContextFields: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memoryd_context_degraded_total",
			Help: "Memory context fields served from defaults after a dependency failure",
		}, []string{"entity"}),
	}
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits()                                    {}
func (n *noopMetrics) IncCacheMisses()                                  {}
func (n *noopMetrics) IncCacheFallback(_ string)                        {}
func (n *noopMetrics) SetBreakerState(_ string, _ int)                  {}
func (n *noopMetrics) ObserveStoreDuration(_ string, _ time.Duration)   {}
func (n *noopMetrics) IncTaskResult(_, _ string)                        {}
func (n *noopMetrics) SetQueueDepth(_ int)                              {}
func (n *noopMetrics) IncRateLimited(_ string)                          {}
func (n *noopMetrics) IncEngagementRecomputed()                         {}
func (n *noopMetrics) IncDegradedContext(_ string)                      {}
