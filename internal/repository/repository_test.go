package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/maintenance"
	"memoryd/internal/models"
	"memoryd/internal/store"
	"memoryd/internal/structures"
	"memoryd/internal/testutil"
)

var errDown = errors.New("connection refused")

// flakyStore wraps the sqlite store and fails chosen calls on demand.
type flakyStore struct {
	*store.Store
	mu           sync.Mutex
	fail         error
	getDocuments int
	getDocument  int
	recentBulk   int
	recentSingle int
}

func (f *flakyStore) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *flakyStore) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

func (f *flakyStore) SaveDocument(ctx context.Context, entity models.EntityType, key models.PairKey, body []byte) (int64, error) {
	if err := f.err(); err != nil {
		return 0, err
	}
	return f.Store.SaveDocument(ctx, entity, key, body)
}

func (f *flakyStore) GetDocument(ctx context.Context, entity models.EntityType, key models.PairKey) (*store.Document, error) {
	f.mu.Lock()
	f.getDocument++
	f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.Store.GetDocument(ctx, entity, key)
}

func (f *flakyStore) GetDocuments(ctx context.Context, entity models.EntityType, keys []models.PairKey) (map[models.PairKey]*store.Document, error) {
	f.mu.Lock()
	f.getDocuments++
	f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.Store.GetDocuments(ctx, entity, keys)
}

func (f *flakyStore) AppendInteraction(ctx context.Context, in *models.Interaction) (int64, error) {
	if err := f.err(); err != nil {
		return 0, err
	}
	return f.Store.AppendInteraction(ctx, in)
}

func (f *flakyStore) RecentInteractions(ctx context.Context, key models.PairKey, limit int) ([]*models.Interaction, error) {
	f.mu.Lock()
	f.recentSingle++
	f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.Store.RecentInteractions(ctx, key, limit)
}

func (f *flakyStore) RecentInteractionsBulk(ctx context.Context, keys []models.PairKey, limit int) (map[models.PairKey][]*models.Interaction, error) {
	f.mu.Lock()
	f.recentBulk++
	f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.Store.RecentInteractionsBulk(ctx, keys, limit)
}

func (f *flakyStore) DeletePair(ctx context.Context, key models.PairKey) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.Store.DeletePair(ctx, key)
}

type fixture struct {
	repo    *MemoryRepository
	store   *flakyStore
	cache   *testutil.MockCache
	metrics *testutil.MockMetrics
}

func testConfig(t *testing.T) *structures.Config {
	return &structures.Config{
		Store: structures.StoreConfig{
			Driver:  store.DriverSQLite,
			DSN:     filepath.Join(t.TempDir(), "memory.db"),
			Timeout: 2 * time.Second,
		},
		Cache: structures.CacheConfig{
			Enabled:           true,
			Timeout:           time.Second,
			CompressThreshold: 512,
		},
		Breaker: structures.BreakerConfig{FailureThreshold: 3, ResetTimeout: 200 * time.Millisecond},
		Memory:  structures.MemoryConfig{RecentWindow: 5},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conf := testConfig(t)
	st, cleanup, err := store.NewStoreProvider(conf)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	compressor, err := maintenance.NewZstdCompressor()
	require.NoError(t, err)
	t.Cleanup(compressor.Close)

	f := &fixture{
		store:   &flakyStore{Store: st},
		cache:   testutil.NewMockCache(),
		metrics: testutil.NewMockMetrics(),
	}
	f.repo = NewMemoryRepository(conf, f.store, f.cache, compressor, f.metrics, &testutil.MockLogger{}).(*MemoryRepository)
	return f
}

func profile(key models.PairKey, tone models.Tone) *models.PersonalityProfile {
	p := models.DefaultPersonalityProfile(key)
	p.Tone = tone
	return p
}

func fanMessage(key models.PairKey, content string) *models.Interaction {
	return &models.Interaction{
		ID:        uuid.NewString(),
		FanID:     key.FanID,
		CreatorID: key.CreatorID,
		Kind:      models.KindMessage,
		Sender:    models.SenderFan,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

func TestCacheKey_Namespaced(t *testing.T) {
	a := CacheKey(models.EntityPersonality, models.NewPairKey("f:1", "c1"))
	b := CacheKey(models.EntityPersonality, models.NewPairKey("1", "c1:f"))
	assert.NotEqual(t, a, b, "separators inside ids must not collide")
	assert.True(t, strings.HasPrefix(a, "mem:personality:"))
	assert.Len(t, pairKeys(models.NewPairKey("f", "c")), 5)
}

func TestSaveGet_RoundTripAndCacheFill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := models.NewPairKey("f1", "c1")

	require.NoError(t, f.repo.Save(ctx, models.EntityPersonality, key, profile(key, models.TonePlayful)))
	assert.True(t, f.cache.Has(CacheKey(models.EntityPersonality, key)), "write-through populates the cache")

	var got models.PersonalityProfile
	require.NoError(t, f.repo.Get(ctx, models.EntityPersonality, key, &got))
	assert.Equal(t, models.TonePlayful, got.Tone)
	assert.Zero(t, f.store.getDocument, "served from cache")

	f.cache.Data = map[string][]byte{}
	require.NoError(t, f.repo.Get(ctx, models.EntityPersonality, key, &got))
	assert.Equal(t, 1, f.store.getDocument)
	assert.True(t, f.cache.Has(CacheKey(models.EntityPersonality, key)), "miss re-populates the cache")
}

func TestSaveIfVersion_ConflictDropsStaleCacheEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := models.NewPairKey("f1", "c1")
	cacheKey := CacheKey(models.EntityPersonality, key)

	require.NoError(t, f.repo.Save(ctx, models.EntityPersonality, key, profile(key, models.TonePlayful)))
	// Another instance writes the store behind this cache.
	_, err := f.store.Store.SaveDocument(ctx, models.EntityPersonality, key, []byte(`{"tone":"dominant"}`))
	require.NoError(t, err)

	var got models.PersonalityProfile
	stale, err := f.repo.GetVersioned(ctx, models.EntityPersonality, key, &got)
	require.NoError(t, err)
	assert.Equal(t, models.TonePlayful, got.Tone, "served from cache")

	for i := 0; i < 5; i++ {
		err = f.repo.SaveIfVersion(ctx, models.EntityPersonality, key, profile(key, models.ToneFlirty), stale)
		require.ErrorIs(t, err, models.ErrVersionConflict)
	}
	assert.False(t, f.cache.Has(cacheKey), "the stale entry is dropped")
	assert.Equal(t, "closed", f.repo.BreakerStates()[DependencyStore], "conflicts say nothing about store health")

	current, err := f.repo.GetVersioned(ctx, models.EntityPersonality, key, &got)
	require.NoError(t, err)
	assert.Equal(t, models.ToneDominant, got.Tone)
	assert.Greater(t, current, stale)

	require.NoError(t, f.repo.SaveIfVersion(ctx, models.EntityPersonality, key, profile(key, models.ToneFlirty), current))
	require.NoError(t, f.repo.Get(ctx, models.EntityPersonality, key, &got))
	assert.Equal(t, models.ToneFlirty, got.Tone)

	_, err = f.repo.GetVersioned(ctx, models.EntityMessages, key, &got)
	assert.ErrorIs(t, err, models.ErrInvalidData)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	var got models.FanPreferences
	err := f.repo.Get(context.Background(), models.EntityPreferences, models.NewPairKey("nobody", "c1"), &got)
	assert.ErrorIs(t, err, models.ErrNotFound)

	var msgs []*models.Interaction
	err = f.repo.Get(context.Background(), models.EntityMessages, models.NewPairKey("nobody", "c1"), &msgs)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSave_LargeValuesAreCompressedInCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := models.NewPairKey("f1", "c1")

	p := profile(key, models.ToneFlirty)
	for i := 0; i < 200; i++ {
		p.PreferredEmojis = append(p.PreferredEmojis, "😍")
	}
	require.NoError(t, f.repo.Save(ctx, models.EntityPersonality, key, p))

	raw := f.cache.Data[CacheKey(models.EntityPersonality, key)]
	require.NotEmpty(t, raw)
	assert.Equal(t, envelopeZstd, raw[0])

	var got models.PersonalityProfile
	require.NoError(t, f.repo.Get(ctx, models.EntityPersonality, key, &got))
	assert.Len(t, got.PreferredEmojis, 200)
}

func TestMessages_WindowExtendsAndStaysBounded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := models.NewPairKey("f1", "c1")

	require.NoError(t, f.repo.Save(ctx, models.EntityMessages, key, fanMessage(key, "m0")))
	_, err := f.repo.RecentMessages(ctx, key, 0)
	require.NoError(t, err)
	require.Equal(t, 1, f.store.recentSingle)

	for i := 1; i < 8; i++ {
		require.NoError(t, f.repo.AppendInteraction(ctx, fanMessage(key, fmt.Sprintf("m%d", i))))
	}

	var window []*models.Interaction
	require.NoError(t, f.repo.Get(ctx, models.EntityMessages, key, &window))
	require.Len(t, window, 5)
	assert.Equal(t, "m3", window[0].Content)
	assert.Equal(t, "m7", window[4].Content)
	assert.Equal(t, 1, f.store.recentSingle, "appends keep the cached window current")

	last2, err := f.repo.RecentMessages(ctx, key, 2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	assert.Equal(t, "m6", last2[0].Content)
}

func TestMessages_RejectsWrongValueType(t *testing.T) {
	f := newFixture(t)
	err := f.repo.Save(context.Background(), models.EntityMessages, models.NewPairKey("f", "c"), "hello")
	assert.ErrorIs(t, err, models.ErrInvalidData)
}

func TestBulkGet_BatchesStoreReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var keys []models.PairKey
	for i := 0; i < 30; i++ {
		key := models.NewPairKey(fmt.Sprintf("f%d", i), "c1")
		keys = append(keys, key)
		if i%3 != 0 {
			require.NoError(t, f.repo.Save(ctx, models.EntityPersonality, key, profile(key, models.ToneFriendly)))
			require.NoError(t, f.repo.AppendInteraction(ctx, fanMessage(key, "hi "+key.FanID)))
		}
	}
	f.cache.Data = map[string][]byte{}

	got, err := f.repo.BulkGet(ctx, models.EntityPersonality, keys)
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.Equal(t, 1, f.store.getDocuments)
	assert.Zero(t, f.store.getDocument, "no per-key round-trips")

	var p models.PersonalityProfile
	require.NoError(t, got[keys[1]].Decode(&p))
	assert.Equal(t, "f1", p.FanID)

	got, err = f.repo.BulkGet(ctx, models.EntityPersonality, keys)
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.Equal(t, 2, f.store.getDocuments, "only the 10 absent pairs go back to the store")

	windows, err := f.repo.BulkGet(ctx, models.EntityMessages, keys)
	require.NoError(t, err)
	assert.Len(t, windows, 20)
	assert.Equal(t, 1, f.store.recentBulk)
	var msgs []*models.Interaction
	require.NoError(t, windows[keys[2]].Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi f2", msgs[0].Content)
}

func TestCacheOutage_DegradesToStoreOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := models.NewPairKey("f1", "c1")
	f.cache.SetErr(errDown)

	require.NoError(t, f.repo.Save(ctx, models.EntityPersonality, key, profile(key, models.ToneDominant)))
	var got models.PersonalityProfile
	require.NoError(t, f.repo.Get(ctx, models.EntityPersonality, key, &got))
	assert.Equal(t, models.ToneDominant, got.Tone)

	err := f.repo.Get(ctx, models.EntityPersonality, models.NewPairKey("f2", "c1"), &got)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Positive(t, f.metrics.FallbackCount("set"))
	assert.Positive(t, f.metrics.FallbackCount("get"))
}

func TestCacheBreakerCycle_NeverServesStaleValues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := models.NewPairKey("f1", "c1")

	require.NoError(t, f.repo.Save(ctx, models.EntityPersonality, key, profile(key, models.ToneFriendly)))
	require.True(t, f.cache.Has(CacheKey(models.EntityPersonality, key)))

	// The cache rejects every call, so the old value stays inside it.
	f.cache.SetErr(errDown)
	require.NoError(t, f.repo.Save(ctx, models.EntityPersonality, key, profile(key, models.TonePlayful)))
	for i := 0; i < 5; i++ {
		var p models.PersonalityProfile
		require.NoError(t, f.repo.Get(ctx, models.EntityPersonality, key, &p))
		assert.Equal(t, models.TonePlayful, p.Tone)
	}
	assert.Equal(t, "open", f.repo.BreakerStates()[DependencyCache])

	f.cache.SetErr(nil)
	time.Sleep(250 * time.Millisecond)

	for i := 0; i < 3; i++ {
		var p models.PersonalityProfile
		require.NoError(t, f.repo.Get(ctx, models.EntityPersonality, key, &p))
		assert.Equal(t, models.TonePlayful, p.Tone, "recovered cache must not resurrect the old value")
	}
	assert.Equal(t, "closed", f.repo.BreakerStates()[DependencyCache])
	assert.Zero(t, f.repo.dirtyCount.Load())
}

func TestStoreBreaker_ReadsFromCacheAndRejectsWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cached := models.NewPairKey("f1", "c1")
	uncached := models.NewPairKey("f2", "c1")

	require.NoError(t, f.repo.Save(ctx, models.EntityPersonality, cached, profile(cached, models.TonePlayful)))

	f.store.setFail(errDown)
	for i := 0; i < 3; i++ {
		var p models.PersonalityProfile
		err := f.repo.Get(ctx, models.EntityPersonality, uncached, &p)
		assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	}
	assert.Equal(t, "open", f.repo.BreakerStates()[DependencyStore])

	var p models.PersonalityProfile
	require.NoError(t, f.repo.Get(ctx, models.EntityPersonality, cached, &p), "cached reads keep working")
	assert.Equal(t, models.TonePlayful, p.Tone)

	err := f.repo.Save(ctx, models.EntityPersonality, cached, profile(cached, models.ToneFlirty))
	var retryable *models.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Positive(t, retryable.RetryAfter)

	err = f.repo.AppendInteraction(ctx, fanMessage(cached, "hello"))
	assert.ErrorAs(t, err, &retryable)

	f.store.setFail(nil)
	time.Sleep(250 * time.Millisecond)
	require.NoError(t, f.repo.Save(ctx, models.EntityPersonality, cached, profile(cached, models.ToneFlirty)))
	assert.Equal(t, "closed", f.repo.BreakerStates()[DependencyStore])
}

func TestDelete_RemovesAllEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := models.NewPairKey("f1", "c1")

	require.NoError(t, f.repo.AppendInteraction(ctx, fanMessage(key, "hello")))
	require.NoError(t, f.repo.Save(ctx, models.EntityPersonality, key, profile(key, models.TonePlayful)))
	require.NoError(t, f.repo.Save(ctx, models.EntityPreferences, key, models.EmptyFanPreferences(key)))
	require.NoError(t, f.repo.Save(ctx, models.EntityEmotionalState, key, models.NeutralEmotionalState(key)))
	require.NoError(t, f.repo.Save(ctx, models.EntityEngagement, key, &models.EngagementMetrics{FanID: key.FanID, CreatorID: key.CreatorID}))
	_, err := f.repo.RecentMessages(ctx, key, 0)
	require.NoError(t, err)

	require.NoError(t, f.repo.Delete(ctx, key))

	for _, entity := range models.DocumentEntityTypes {
		var v map[string]any
		assert.ErrorIs(t, f.repo.Get(ctx, entity, key, &v), models.ErrNotFound, entity)
	}
	_, err = f.repo.RecentMessages(ctx, key, 0)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGet_CancelledContextDoesNotFillCache(t *testing.T) {
	f := newFixture(t)
	key := models.NewPairKey("f1", "c1")
	require.NoError(t, f.repo.Save(context.Background(), models.EntityPersonality, key, profile(key, models.TonePlayful)))
	f.cache.Data = map[string][]byte{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var p models.PersonalityProfile
	err := f.repo.Get(ctx, models.EntityPersonality, key, &p)
	assert.Error(t, err)
	assert.False(t, f.cache.Has(CacheKey(models.EntityPersonality, key)))
	assert.Equal(t, "closed", f.repo.BreakerStates()[DependencyStore], "cancellation is not a dependency failure")
}

func TestEnvelope_RejectsGarbage(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.decodeEnvelope([]byte{1, 2})
	assert.ErrorIs(t, err, errBadEnvelope)

	raw, err := f.repo.encodeEnvelope(&Entry{Version: 42, Data: []byte(`{}`)})
	require.NoError(t, err)
	raw[0] = 9
	_, err = f.repo.decodeEnvelope(raw)
	assert.ErrorIs(t, err, errBadEnvelope)
}
