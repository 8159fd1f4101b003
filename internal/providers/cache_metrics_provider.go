package providers

import (
	"context"
	"errors"
	"time"

	"memoryd/internal/models"
	"memoryd/internal/structures"
)

// MetricsCacheProvider wraps a CacheProviderInterface and increments
// hit/miss counters on every Get call.
type MetricsCacheProvider struct {
	inner   CacheProviderInterface
	metrics MetricsProviderInterface
}

func (c *MetricsCacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.inner.Get(ctx, key)
	switch {
	case err == nil:
		c.metrics.IncCacheHits()
	case errors.Is(err, models.ErrCacheMiss):
		c.metrics.IncCacheMisses()
	}
	return val, err
}

func (c *MetricsCacheProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.inner.Set(ctx, key, value, ttl)
}

func (c *MetricsCacheProvider) Invalidate(ctx context.Context, keys ...string) error {
	return c.inner.Invalidate(ctx, keys...)
}

// NewInstrumentedCacheProvider creates a cache provider wrapped with metrics instrumentation.
// When cache is disabled, returns the plain noopCache without metrics wrapping
// to avoid counting phantom cache misses.
func NewInstrumentedCacheProvider(conf *structures.Config, logger Logger, metrics MetricsProviderInterface) CacheProviderInterface {
	inner := NewCacheProvider(conf, logger)
	if !conf.Cache.Enabled {
		return inner
	}
	return &MetricsCacheProvider{
		inner:   inner,
		metrics: metrics,
	}
}
