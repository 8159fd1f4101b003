package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/models"
	"memoryd/internal/structures"
)

// local mock logger to avoid import cycle with testutil
type cacheTestLogger struct{}

func (m *cacheTestLogger) Errorf(_ TypeEnum, _ string, _ ...interface{}) {}
func (m *cacheTestLogger) Warnf(_ TypeEnum, _ string, _ ...interface{})  {}
func (m *cacheTestLogger) Debugf(_ TypeEnum, _ string, _ ...interface{}) {}
func (m *cacheTestLogger) Infof(_ TypeEnum, _ string, _ ...interface{})  {}
func (m *cacheTestLogger) Fatalf(_ TypeEnum, _ string, _ ...interface{}) {}
func (m *cacheTestLogger) Close()                                        {}

func cacheConfig(enabled bool, size int) *structures.Config {
	return &structures.Config{
		Cache: structures.CacheConfig{
			Enabled: enabled,
			Size:    size,
		},
	}
}

func TestCacheProvider_DisabledReturnsNoop(t *testing.T) {
	c := NewCacheProvider(cacheConfig(false, 10), &cacheTestLogger{})
	_, err := c.Get(context.Background(), "any")
	assert.ErrorIs(t, err, models.ErrCacheMiss)
	assert.IsType(t, &noopCache{}, c)
}

func TestCacheProvider_ZeroSizeReturnsNoop(t *testing.T) {
	c := NewCacheProvider(cacheConfig(true, 0), &cacheTestLogger{})
	assert.IsType(t, &noopCache{}, c)
}

func TestCacheProvider_EnabledReturnsCacheProvider(t *testing.T) {
	c := NewCacheProvider(cacheConfig(true, 1), &cacheTestLogger{})
	assert.IsType(t, &CacheProvider{}, c)
}

func TestCacheProvider_SetAndGet(t *testing.T) {
	ctx := context.Background()
	c := NewCacheProvider(cacheConfig(true, 1), &cacheTestLogger{})
	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), time.Minute))

	val, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), val)
}

func TestCacheProvider_Miss(t *testing.T) {
	c := NewCacheProvider(cacheConfig(true, 1), &cacheTestLogger{})
	val, err := c.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, models.ErrCacheMiss)
	assert.Nil(t, val)
}

func TestCacheProvider_Overwrite(t *testing.T) {
	ctx := context.Background()
	c := NewCacheProvider(cacheConfig(true, 1), &cacheTestLogger{})
	require.NoError(t, c.Set(ctx, "key1", []byte("v1"), time.Minute))
	require.NoError(t, c.Set(ctx, "key1", []byte("v2"), time.Minute))

	val, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), val)
}

func TestCacheProvider_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := NewCacheProvider(cacheConfig(true, 1), &cacheTestLogger{})
	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	require.NoError(t, c.Invalidate(ctx, "a", "b", "missing"))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, models.ErrCacheMiss)
	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, models.ErrCacheMiss)
	val, err := c.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), val)
}

func TestCacheProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCacheProvider(cacheConfig(true, 1), &cacheTestLogger{})
	_, err := c.Get(ctx, "key")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoopCache_AlwaysMiss(t *testing.T) {
	ctx := context.Background()
	c := &noopCache{}
	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), time.Minute))
	val, err := c.Get(ctx, "key1")
	assert.ErrorIs(t, err, models.ErrCacheMiss)
	assert.Nil(t, val)
}

func TestCacheProvider_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewCacheProvider(cacheConfig(true, 1), &cacheTestLogger{})
	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), time.Second))

	val, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), val)

	time.Sleep(2100 * time.Millisecond)

	_, err = c.Get(ctx, "key1")
	assert.ErrorIs(t, err, models.ErrCacheMiss)
}

func TestTTLSeconds_MinimumOne(t *testing.T) {
	assert.Equal(t, 1, ttlSeconds(200*time.Millisecond))
	assert.Equal(t, 120, ttlSeconds(2*time.Minute))
}
