package repository

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"memoryd/internal/breaker"
	"memoryd/internal/maintenance/interfaces"
	"memoryd/internal/models"
	"memoryd/internal/providers"
	"memoryd/internal/store"
	"memoryd/internal/structures"
)

const (
	DependencyStore = "store"
	DependencyCache = "cache"

	stripeCount = 256
)

// Store is the durable store contract the repository depends on.
type Store interface {
	AppendInteraction(ctx context.Context, in *models.Interaction) (int64, error)
	RecentInteractions(ctx context.Context, key models.PairKey, limit int) ([]*models.Interaction, error)
	RecentInteractionsBulk(ctx context.Context, keys []models.PairKey, limit int) (map[models.PairKey][]*models.Interaction, error)
	InteractionsSince(ctx context.Context, key models.PairKey, since time.Time, limit int) ([]*models.Interaction, error)
	AllInteractions(ctx context.Context, key models.PairKey) ([]*models.Interaction, error)
	CountInteractions(ctx context.Context, key models.PairKey) (int, error)
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	SaveDocument(ctx context.Context, entity models.EntityType, key models.PairKey, body []byte) (int64, error)
	SaveDocumentIf(ctx context.Context, entity models.EntityType, key models.PairKey, body []byte, expected int64) (int64, error)
	GetDocument(ctx context.Context, entity models.EntityType, key models.PairKey) (*store.Document, error)
	GetDocuments(ctx context.Context, entity models.EntityType, keys []models.PairKey) (map[models.PairKey]*store.Document, error)
	CreatorDocuments(ctx context.Context, entity models.EntityType, creatorID string, limit int) ([]*store.Document, error)
	DeletePair(ctx context.Context, key models.PairKey) error

	EngagementTotals(ctx context.Context, key models.PairKey) (*models.EngagementTotals, error)
	ActivePairs(ctx context.Context, since time.Time) ([]models.PairKey, error)
	CreatorTotals(ctx context.Context, creatorID string, activeSince time.Time) (*models.CreatorStats, error)

	InsertAudit(ctx context.Context, rec *models.AuditRecord) error
	ListAudit(ctx context.Context, key models.PairKey) ([]*models.AuditRecord, error)
	CreateErasureRequest(ctx context.Context, req *models.ErasureRequest) error
	CompleteErasureRequest(ctx context.Context, id string, at time.Time) error
	PendingErasureRequests(ctx context.Context) ([]*models.ErasureRequest, error)
	LatestErasureRequest(ctx context.Context, key models.PairKey) (*models.ErasureRequest, error)

	Ping(ctx context.Context) error
}

type MemoryRepositoryInterface interface {
	// Save persists a document entity (or appends a *models.Interaction for messages).
	Save(ctx context.Context, entity models.EntityType, key models.PairKey, value any) error
	// Get decodes the entity into dest; for messages dest is *[]*models.Interaction holding the recent window.
	Get(ctx context.Context, entity models.EntityType, key models.PairKey, dest any) error
	BulkGet(ctx context.Context, entity models.EntityType, keys []models.PairKey) (map[models.PairKey]*Entry, error)
	// GetVersioned is Get for a read-modify-write; the version feeds SaveIfVersion.
	GetVersioned(ctx context.Context, entity models.EntityType, key models.PairKey, dest any) (int64, error)
	// SaveIfVersion saves a document only while the store still holds the expected
	// version (zero: no document yet) and returns models.ErrVersionConflict otherwise.
	SaveIfVersion(ctx context.Context, entity models.EntityType, key models.PairKey, value any, expected int64) error
	Delete(ctx context.Context, key models.PairKey) error
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	AppendInteraction(ctx context.Context, in *models.Interaction) error
	RecentMessages(ctx context.Context, key models.PairKey, limit int) ([]*models.Interaction, error)
	History(ctx context.Context, key models.PairKey, since time.Time) ([]*models.Interaction, error)
	AllInteractions(ctx context.Context, key models.PairKey) ([]*models.Interaction, error)
	InteractionCount(ctx context.Context, key models.PairKey) (int, error)

	EngagementTotals(ctx context.Context, key models.PairKey) (*models.EngagementTotals, error)
	ActivePairs(ctx context.Context, since time.Time) ([]models.PairKey, error)
	CreatorTotals(ctx context.Context, creatorID string, activeSince time.Time) (*models.CreatorStats, error)
	CreatorEngagement(ctx context.Context, creatorID string) ([]*models.EngagementMetrics, error)
	CreatorPreferences(ctx context.Context, creatorID string, limit int) ([]*models.FanPreferences, error)

	InsertAudit(ctx context.Context, rec *models.AuditRecord) error
	ListAudit(ctx context.Context, key models.PairKey) ([]*models.AuditRecord, error)
	CreateErasureRequest(ctx context.Context, req *models.ErasureRequest) error
	CompleteErasureRequest(ctx context.Context, id string, at time.Time) error
	PendingErasureRequests(ctx context.Context) ([]*models.ErasureRequest, error)
	LatestErasureRequest(ctx context.Context, key models.PairKey) (*models.ErasureRequest, error)

	Ping(ctx context.Context) error
	BreakerStates() map[string]string
	StoreRetryAfter() time.Duration
}

// stripe serializes cache mutations of the keys hashed to it. gen is bumped on
// every write so a read that raced a write never fills the cache with stale data.
type stripe struct {
	mu  sync.Mutex
	gen uint64
}

type MemoryRepository struct {
	conf       *structures.Config
	store      Store
	cache      providers.CacheProviderInterface
	compressor interfaces.CompressorInterface
	metrics    providers.MetricsProviderInterface
	logger     providers.Logger

	storeBreaker *breaker.Breaker
	cacheBreaker *breaker.Breaker

	stripes [stripeCount]stripe

	// dirty holds keys whose cached value may be stale because an update
	// could not reach the cache. They bypass the cache until invalidated.
	dirtyMu    sync.Mutex
	dirty      map[string]struct{}
	dirtyCount atomic.Int64
}

func NewMemoryRepository(conf *structures.Config, st Store, cache providers.CacheProviderInterface, compressor interfaces.CompressorInterface, metrics providers.MetricsProviderInterface, logger providers.Logger) MemoryRepositoryInterface {
	r := &MemoryRepository{
		conf:       conf,
		store:      st,
		cache:      cache,
		compressor: compressor,
		metrics:    metrics,
		logger:     logger,
		dirty:      make(map[string]struct{}),
	}

	onChange := func(name string, from, to breaker.State) {
		metrics.SetBreakerState(name, int(to))
		if to == breaker.StateOpen {
			logger.Errorf(providers.TypeApp, "Circuit breaker %s: %s -> %s", name, from, to)
			return
		}
		logger.Warnf(providers.TypeApp, "Circuit breaker %s: %s -> %s", name, from, to)
	}
	r.storeBreaker = breaker.New(breaker.Settings{
		Name:             DependencyStore,
		FailureThreshold: conf.Breaker.FailureThreshold,
		ResetTimeout:     conf.Breaker.ResetTimeout,
		OnStateChange:    onChange,
	})
	r.cacheBreaker = breaker.New(breaker.Settings{
		Name:             DependencyCache,
		FailureThreshold: conf.Breaker.FailureThreshold,
		ResetTimeout:     conf.Breaker.ResetTimeout,
		OnStateChange:    onChange,
	})
	metrics.SetBreakerState(DependencyStore, int(breaker.StateClosed))
	metrics.SetBreakerState(DependencyCache, int(breaker.StateClosed))

	return r
}

func (r *MemoryRepository) BreakerStates() map[string]string {
	return map[string]string{
		DependencyStore: r.storeBreaker.State().String(),
		DependencyCache: r.cacheBreaker.State().String(),
	}
}

func (r *MemoryRepository) StoreRetryAfter() time.Duration {
	if d := r.storeBreaker.RetryAfter(); d > 0 {
		return d
	}
	return time.Second
}

func (r *MemoryRepository) stripeFor(key string) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &r.stripes[h.Sum32()%stripeCount]
}

func (r *MemoryRepository) generation(key string) uint64 {
	s := r.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (r *MemoryRepository) storeTimeout() time.Duration {
	if r.conf.Store.Timeout > 0 {
		return r.conf.Store.Timeout
	}
	return 250 * time.Millisecond
}

func (r *MemoryRepository) cacheTimeout() time.Duration {
	if r.conf.Cache.Timeout > 0 {
		return r.conf.Cache.Timeout
	}
	return 50 * time.Millisecond
}

// storeRead runs a read under the store breaker with the store timeout.
// NotFound passes through; other failures map to ErrStoreUnavailable.
func (r *MemoryRepository) storeRead(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := r.storeBreaker.Allow(); err != nil {
		return models.ErrStoreUnavailable
	}
	callCtx, cancel := context.WithTimeout(ctx, r.storeTimeout())
	start := time.Now()
	err := fn(callCtx)
	cancel()
	r.metrics.ObserveStoreDuration(op, time.Since(start))
	r.storeBreaker.Done(err)

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, models.ErrNotFound):
		return err
	}
	r.logger.Errorf(providers.TypeStore, "Store %s failed: %s", op, err)
	return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err)
}

// storeWrite is storeRead for mutations: an unhealthy store yields a RetryableError.
func (r *MemoryRepository) storeWrite(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := r.storeBreaker.Allow(); err != nil {
		return &models.RetryableError{Err: models.ErrStoreUnavailable, RetryAfter: r.StoreRetryAfter()}
	}
	callCtx, cancel := context.WithTimeout(ctx, r.storeTimeout())
	start := time.Now()
	err := fn(callCtx)
	cancel()
	r.metrics.ObserveStoreDuration(op, time.Since(start))
	r.storeBreaker.Done(err)

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, models.ErrVersionConflict):
		return err
	}
	r.logger.Errorf(providers.TypeStore, "Store %s failed: %s", op, err)
	return &models.RetryableError{
		Err:        fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err),
		RetryAfter: r.StoreRetryAfter(),
	}
}

// cacheCall runs fn under the cache breaker; ErrCacheMiss is a healthy outcome.
func (r *MemoryRepository) cacheCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := r.cacheBreaker.Allow(); err != nil {
		r.metrics.IncCacheFallback(op)
		return models.ErrCacheUnavailable
	}
	callCtx, cancel := context.WithTimeout(ctx, r.cacheTimeout())
	err := fn(callCtx)
	cancel()
	r.cacheBreaker.Done(err)

	if err == nil || errors.Is(err, models.ErrCacheMiss) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.metrics.IncCacheFallback(op)
	r.logger.Warnf(providers.TypeCache, "Cache %s failed, serving from store: %s", op, err)
	return fmt.Errorf("%w: %v", models.ErrCacheUnavailable, err)
}

func (r *MemoryRepository) markDirty(keys ...string) {
	r.dirtyMu.Lock()
	defer r.dirtyMu.Unlock()
	for _, k := range keys {
		r.dirty[k] = struct{}{}
	}
	r.dirtyCount.Store(int64(len(r.dirty)))
}

func (r *MemoryRepository) clearDirty(keys ...string) {
	if r.dirtyCount.Load() == 0 {
		return
	}
	r.dirtyMu.Lock()
	defer r.dirtyMu.Unlock()
	for _, k := range keys {
		delete(r.dirty, k)
	}
	r.dirtyCount.Store(int64(len(r.dirty)))
}

func (r *MemoryRepository) isDirty(key string) bool {
	if r.dirtyCount.Load() == 0 {
		return false
	}
	r.dirtyMu.Lock()
	defer r.dirtyMu.Unlock()
	_, ok := r.dirty[key]
	return ok
}

// flushDirty retries pending invalidations once the cache is reachable again.
func (r *MemoryRepository) flushDirty(ctx context.Context) {
	if r.dirtyCount.Load() == 0 || r.cacheBreaker.State() == breaker.StateOpen {
		return
	}
	r.dirtyMu.Lock()
	keys := make([]string, 0, len(r.dirty))
	for k := range r.dirty {
		keys = append(keys, k)
	}
	r.dirtyMu.Unlock()

	err := r.cacheCall(ctx, "invalidate", func(ctx context.Context) error {
		return r.cache.Invalidate(ctx, keys...)
	})
	if err != nil {
		return
	}
	r.clearDirty(keys...)
	r.logger.Infof(providers.TypeCache, "Invalidated %d cache entries left stale by an outage", len(keys))
}

// cacheLookup returns the cached entry, or nil when the caller must go to the store.
func (r *MemoryRepository) cacheLookup(ctx context.Context, key string) *Entry {
	r.flushDirty(ctx)
	if r.isDirty(key) {
		return nil
	}
	var raw []byte
	err := r.cacheCall(ctx, "get", func(ctx context.Context) error {
		var err error
		raw, err = r.cache.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil
	}
	entry, err := r.decodeEnvelope(raw)
	if err != nil {
		r.logger.Warnf(providers.TypeCache, "Dropping undecodable cache entry %s: %s", key, err)
		_ = r.cacheCall(ctx, "invalidate", func(ctx context.Context) error {
			return r.cache.Invalidate(ctx, key)
		})
		return nil
	}
	return entry
}

// fill populates the cache after a store read unless a write raced the read.
func (r *MemoryRepository) fill(ctx context.Context, key string, gen uint64, entry *Entry, ttl time.Duration) {
	if ctx.Err() != nil {
		return
	}
	s := r.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || r.isDirty(key) {
		return
	}
	r.cacheSet(ctx, key, entry, ttl)
}

// cacheSet stores entry; caller holds the key's stripe lock.
func (r *MemoryRepository) cacheSet(ctx context.Context, key string, entry *Entry, ttl time.Duration) bool {
	raw, err := r.encodeEnvelope(entry)
	if err != nil {
		r.logger.Errorf(providers.TypeCache, "Failed to encode cache entry %s: %s", key, err)
		return false
	}
	err = r.cacheCall(ctx, "set", func(ctx context.Context) error {
		return r.cache.Set(ctx, key, raw, ttl)
	})
	return err == nil
}

// writeThrough replaces the cached value after a committed store write.
func (r *MemoryRepository) writeThrough(ctx context.Context, key string, entry *Entry, ttl time.Duration) {
	s := r.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if r.cacheSet(ctx, key, entry, ttl) {
		r.clearDirty(key)
		return
	}
	r.invalidateLocked(ctx, key)
}

// invalidateKeys drops cached values; keys that cannot be dropped are marked dirty.
func (r *MemoryRepository) invalidateKeys(ctx context.Context, keys ...string) {
	for _, key := range keys {
		s := r.stripeFor(key)
		s.mu.Lock()
		s.gen++
		r.invalidateLocked(ctx, key)
		s.mu.Unlock()
	}
}

func (r *MemoryRepository) invalidateLocked(ctx context.Context, key string) {
	err := r.cacheCall(ctx, "invalidate", func(ctx context.Context) error {
		return r.cache.Invalidate(ctx, key)
	})
	if err != nil {
		r.markDirty(key)
		return
	}
	r.clearDirty(key)
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return r.storeRead(ctx, "ping", r.store.Ping)
}
