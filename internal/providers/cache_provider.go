package providers

import (
	"context"
	"time"
	"unsafe"

	"github.com/coocood/freecache"

	"memoryd/internal/models"
	"memoryd/internal/structures"
)

// CacheProviderInterface is the hot shadow copy in front of the durable store.
// Get returns models.ErrCacheMiss on a miss; any other error means the cache is unhealthy.
type CacheProviderInterface interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type CacheProvider struct {
	cache *freecache.Cache
}

func NewCacheProvider(conf *structures.Config, logger Logger) CacheProviderInterface {
	if !conf.Cache.Enabled || conf.Cache.Size <= 0 {
		logger.Infof(TypeApp, "Cache disabled")
		return &noopCache{}
	}
	sizeBytes := conf.Cache.Size * 1024 * 1024
	logger.Infof(TypeApp, "Cache initialized: %dMB", conf.Cache.Size)
	return &CacheProvider{
		cache: freecache.NewCache(sizeBytes),
	}
}

// unsafeStringToBytes converts string to []byte without allocation.
// The result must stay read-only; freecache copies keys internally.
func unsafeStringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func ttlSeconds(ttl time.Duration) int {
	return max(int(ttl/time.Second), 1)
}

func (c *CacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, err := c.cache.Get(unsafeStringToBytes(key))
	if err != nil {
		return nil, models.ErrCacheMiss
	}
	return val, nil
}

func (c *CacheProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.cache.Set(unsafeStringToBytes(key), value, ttlSeconds(ttl))
}

func (c *CacheProvider) Invalidate(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, key := range keys {
		c.cache.Del(unsafeStringToBytes(key))
	}
	return nil
}

func (c *CacheProvider) EntryCount() int64 {
	return c.cache.EntryCount()
}

type noopCache struct{}

func (n *noopCache) Get(_ context.Context, _ string) ([]byte, error) { return nil, models.ErrCacheMiss }
func (n *noopCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}
func (n *noopCache) Invalidate(_ context.Context, _ ...string) error { return nil }
