package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/models"
)

type cacheMetricsTestMetrics struct {
	noopMetrics
	hits   int
	misses int
}

func (m *cacheMetricsTestMetrics) IncCacheHits()   { m.hits++ }
func (m *cacheMetricsTestMetrics) IncCacheMisses() { m.misses++ }

type cacheMetricsTestInner struct {
	data map[string][]byte
	err  error
}

func (c *cacheMetricsTestInner) Get(_ context.Context, key string) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	v, ok := c.data[key]
	if !ok {
		return nil, models.ErrCacheMiss
	}
	return v, nil
}

func (c *cacheMetricsTestInner) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *cacheMetricsTestInner) Invalidate(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func TestMetricsCacheProvider_Hit(t *testing.T) {
	inner := &cacheMetricsTestInner{data: map[string][]byte{"key1": []byte("val1")}}
	metrics := &cacheMetricsTestMetrics{}
	cache := &MetricsCacheProvider{inner: inner, metrics: metrics}

	val, err := cache.Get(context.Background(), "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("val1"), val)
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 0, metrics.misses)
}

func TestMetricsCacheProvider_Miss(t *testing.T) {
	inner := &cacheMetricsTestInner{data: map[string][]byte{}}
	metrics := &cacheMetricsTestMetrics{}
	cache := &MetricsCacheProvider{inner: inner, metrics: metrics}

	val, err := cache.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrCacheMiss)
	assert.Nil(t, val)
	assert.Equal(t, 0, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
}

func TestMetricsCacheProvider_FailureIsNeitherHitNorMiss(t *testing.T) {
	inner := &cacheMetricsTestInner{data: map[string][]byte{}, err: errors.New("connection refused")}
	metrics := &cacheMetricsTestMetrics{}
	cache := &MetricsCacheProvider{inner: inner, metrics: metrics}

	_, err := cache.Get(context.Background(), "key")
	assert.Error(t, err)
	assert.Equal(t, 0, metrics.hits)
	assert.Equal(t, 0, metrics.misses)
}

func TestMetricsCacheProvider_SetAndInvalidateDelegate(t *testing.T) {
	ctx := context.Background()
	inner := &cacheMetricsTestInner{data: map[string][]byte{}}
	cache := &MetricsCacheProvider{inner: inner, metrics: &cacheMetricsTestMetrics{}}

	require.NoError(t, cache.Set(ctx, "key2", []byte("val2"), time.Minute))
	assert.Equal(t, []byte("val2"), inner.data["key2"])

	require.NoError(t, cache.Invalidate(ctx, "key2"))
	_, ok := inner.data["key2"]
	assert.False(t, ok)
}

func TestMetricsCacheProvider_MultipleOperations(t *testing.T) {
	ctx := context.Background()
	inner := &cacheMetricsTestInner{data: map[string][]byte{"a": []byte("1")}}
	metrics := &cacheMetricsTestMetrics{}
	cache := &MetricsCacheProvider{inner: inner, metrics: metrics}

	cache.Get(ctx, "a") // hit
	cache.Get(ctx, "b") // miss
	cache.Get(ctx, "a") // hit
	cache.Get(ctx, "c") // miss

	assert.Equal(t, 2, metrics.hits)
	assert.Equal(t, 2, metrics.misses)
}

func TestNewInstrumentedCacheProvider_DisabledSkipsWrapping(t *testing.T) {
	c := NewInstrumentedCacheProvider(cacheConfig(false, 1), &cacheTestLogger{}, &cacheMetricsTestMetrics{})
	assert.IsType(t, &noopCache{}, c)

	c = NewInstrumentedCacheProvider(cacheConfig(true, 1), &cacheTestLogger{}, &cacheMetricsTestMetrics{})
	assert.IsType(t, &MetricsCacheProvider{}, c)
}
