package providers

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/structures"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	prevRegisterer := prometheus.DefaultRegisterer
	prevGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = prevRegisterer
		prometheus.DefaultGatherer = prevGatherer
	})
	return reg
}

func TestNoopMetrics_WhenDisabled(t *testing.T) {
	conf := &structures.Config{
		Metrics: structures.MetricsConfig{Enabled: false},
	}
	m := NewMetricsProvider(conf)
	_, ok := m.(*noopMetrics)
	assert.True(t, ok, "should return noopMetrics when disabled")

	// Ensure no-op methods don't panic
	m.IncRequestsTotal("/memory/{fanId}", 200)
	m.ObserveRequestDuration("/memory/{fanId}", time.Millisecond)
	m.IncCacheHits()
	m.IncCacheMisses()
	m.IncCacheFallback("get")
	m.SetBreakerState("store", 2)
	m.ObserveStoreDuration("get", time.Millisecond)
	m.IncTaskResult("calibrate", "ok")
	m.SetQueueDepth(3)
	m.IncRateLimited("write")
	m.IncEngagementRecomputed()
	m.IncDegradedContext("personality")
}

func TestMetricsProvider_WhenEnabled(t *testing.T) {
	withTestRegistry(t)

	conf := &structures.Config{
		Metrics: structures.MetricsConfig{Enabled: true},
	}
	m := NewMetricsProvider(conf)
	_, ok := m.(*MetricsProvider)
	assert.True(t, ok, "should return MetricsProvider when enabled")
}

func TestMetricsProvider_RecordsValues(t *testing.T) {
	reg := withTestRegistry(t)

	conf := &structures.Config{
		Metrics: structures.MetricsConfig{Enabled: true},
	}
	m := NewMetricsProvider(conf).(*MetricsProvider)

	m.IncRequestsTotal("GET /memory/{fanId}", 200)
	m.IncRequestsTotal("GET /memory/{fanId}", 404)
	m.IncRequestsTotal("GET /memory/{fanId}", 201)
	m.ObserveRequestDuration("GET /memory/{fanId}", 5*time.Millisecond)
	m.IncCacheHits()
	m.IncCacheMisses()
	m.IncCacheFallback("get")
	m.IncCacheFallback("get")
	m.SetBreakerState("cache", 2)
	m.ObserveStoreDuration("append", 2*time.Millisecond)
	m.IncTaskResult("preferences", "failed")
	m.SetQueueDepth(7)
	m.IncRateLimited("read")
	m.IncEngagementRecomputed()
	m.IncDegradedContext("emotional_state")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET /memory/{fanId}", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET /memory/{fanId}", "4xx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheFallbacks.WithLabelValues("get")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.breakerState.WithLabelValues("cache")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.taskResults.WithLabelValues("preferences", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.degradedContextFields.WithLabelValues("emotional_state")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "memoryd_cache_hits_total")
	assert.Contains(t, names, "memoryd_store_duration_seconds")
}

func TestHttpStatusBucket(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{202, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, httpStatusBucket(tt.code))
	}
}
