package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/models"
	"memoryd/internal/providers"
	"memoryd/internal/services"
	"memoryd/internal/testutil"
)

// --- local mocks (scoped to controller tests) ---

type mockService struct {
	err        error
	memory     *models.MemoryContext
	saved      []*models.Interaction
	lastKey    models.PairKey
	lastActor  string
	persona    *models.CreatorPersona
	fanIDs     []string
	category   models.ContentCategory
	field      models.PersonalityField
	items      []models.ContentItem
	score      float64
	queueDepth int
	breakers   map[string]string
	pingErr    error
	retryAfter time.Duration
}

func (m *mockService) GetMemoryContext(_ context.Context, key models.PairKey, p *models.CreatorPersona) (*models.MemoryContext, error) {
	m.lastKey, m.persona = key, p
	if m.err != nil {
		return nil, m.err
	}
	if m.memory != nil {
		return m.memory, nil
	}
	return &models.MemoryContext{FanID: key.FanID, CreatorID: key.CreatorID}, nil
}

func (m *mockService) BulkMemoryContext(_ context.Context, creatorID string, fanIDs []string, p *models.CreatorPersona) (*services.BulkContextResult, error) {
	m.lastKey, m.fanIDs, m.persona = models.NewPairKey("", creatorID), fanIDs, p
	if m.err != nil {
		return nil, m.err
	}
	res := &services.BulkContextResult{Contexts: map[string]*models.MemoryContext{}, Missing: []string{}}
	for _, id := range fanIDs {
		res.Contexts[id] = &models.MemoryContext{FanID: id, CreatorID: creatorID}
	}
	return res, nil
}

func (m *mockService) SaveInteraction(_ context.Context, event *models.Interaction) (*models.Interaction, error) {
	if m.err != nil {
		return nil, m.err
	}
	event.ID = "i-1"
	m.saved = append(m.saved, event)
	return event, nil
}

func (m *mockService) ClearMemory(_ context.Context, key models.PairKey, actor string) (*models.ErasureRequest, error) {
	m.lastKey, m.lastActor = key, actor
	if m.err != nil {
		return nil, m.err
	}
	return &models.ErasureRequest{ID: "e-1", FanID: key.FanID, CreatorID: key.CreatorID, Actor: actor, Status: models.ErasurePending}, nil
}

func (m *mockService) GetEngagementScore(_ context.Context, key models.PairKey) (float64, error) {
	m.lastKey = key
	return m.score, m.err
}

func (m *mockService) OverridePreferences(_ context.Context, key models.PairKey, _ *models.PreferenceOverride, actor string) (*models.FanPreferences, error) {
	m.lastKey, m.lastActor = key, actor
	if m.err != nil {
		return nil, m.err
	}
	return models.EmptyFanPreferences(key), nil
}

func (m *mockService) UnpinPreference(_ context.Context, key models.PairKey, category models.ContentCategory, actor string) (*models.FanPreferences, error) {
	m.lastKey, m.category, m.lastActor = key, category, actor
	if m.err != nil {
		return nil, m.err
	}
	return models.EmptyFanPreferences(key), nil
}

func (m *mockService) OverridePersonality(_ context.Context, key models.PairKey, _ *models.PersonalityOverride, actor string) (*models.PersonalityProfile, error) {
	m.lastKey, m.lastActor = key, actor
	if m.err != nil {
		return nil, m.err
	}
	return models.DefaultPersonalityProfile(key), nil
}

func (m *mockService) UnpinPersonality(_ context.Context, key models.PairKey, field models.PersonalityField, actor string) (*models.PersonalityProfile, error) {
	m.lastKey, m.field, m.lastActor = key, field, actor
	if m.err != nil {
		return nil, m.err
	}
	return models.DefaultPersonalityProfile(key), nil
}

func (m *mockService) Recommend(_ context.Context, key models.PairKey, items []models.ContentItem) (*models.RecommendationResult, error) {
	m.lastKey, m.items = key, items
	if m.err != nil {
		return nil, m.err
	}
	return &models.RecommendationResult{Recommendations: []models.Recommendation{}, Excluded: []models.ContentItem{}}, nil
}

func (m *mockService) ExportMemory(_ context.Context, key models.PairKey, actor string) (*models.MemoryExport, string, error) {
	m.lastKey, m.lastActor = key, actor
	if m.err != nil {
		return nil, "", m.err
	}
	return &models.MemoryExport{FanID: key.FanID, CreatorID: key.CreatorID}, "/tmp/export.json.zst", nil
}

func (m *mockService) CreatorStats(_ context.Context, creatorID string) (*models.CreatorStats, error) {
	m.lastKey = models.NewPairKey("", creatorID)
	if m.err != nil {
		return nil, m.err
	}
	return &models.CreatorStats{CreatorID: creatorID, Fans: 2}, nil
}

func (m *mockService) CleanupOlderThan(_ context.Context, _ time.Time) (int64, error) { return 0, nil }
func (m *mockService) CompletePendingErasures(_ context.Context) (int, error)        { return 0, nil }
func (m *mockService) RefreshEngagement(_ context.Context, _ time.Time) (int, error) { return 0, nil }
func (m *mockService) QueueDepth() int                                             { return m.queueDepth }
func (m *mockService) Drain(_ context.Context) error                               { return nil }
func (m *mockService) DefaultPersona() models.CreatorPersona                       { return models.CreatorPersona{} }
func (m *mockService) MaxBatch() int                                               { return 100 }
func (m *mockService) BreakerStates() map[string]string                            { return m.breakers }
func (m *mockService) StoreRetryAfter() time.Duration                              { return m.retryAfter }
func (m *mockService) Ping(_ context.Context) error                                { return m.pingErr }

type mockLimiter struct {
	deny  bool
	wait  time.Duration
	calls []string
}

func (m *mockLimiter) Allow(tenant string, kind providers.OperationKind) (bool, time.Duration) {
	m.calls = append(m.calls, string(kind)+":"+tenant)
	if m.deny {
		return false, m.wait
	}
	return true, 0
}
func (m *mockLimiter) MaxBatch() int { return 100 }

// --- helpers ---

type harness struct {
	svc     *mockService
	limiter *mockLimiter
	metrics *testutil.MockMetrics
	mux     *http.ServeMux
}

func newHarness() *harness {
	h := &harness{svc: &mockService{}, limiter: &mockLimiter{}, metrics: testutil.NewMockMetrics()}
	mc := NewMemoryController(&testutil.MockLogger{}, h.svc, h.limiter, h.metrics)
	h.mux = http.NewServeMux()
	h.mux.HandleFunc("GET /memory/stats", mc.Stats)
	h.mux.HandleFunc("POST /memory/bulk", mc.Bulk)
	h.mux.HandleFunc("GET /memory/{fanId}", mc.GetMemory)
	h.mux.HandleFunc("POST /memory/{fanId}", mc.SaveInteraction)
	h.mux.HandleFunc("DELETE /memory/{fanId}", mc.ClearMemory)
	h.mux.HandleFunc("GET /memory/{fanId}/engagement", mc.GetEngagement)
	h.mux.HandleFunc("PATCH /memory/{fanId}/preferences", mc.OverridePreferences)
	h.mux.HandleFunc("DELETE /memory/{fanId}/preferences/{category}/pin", mc.UnpinPreference)
	h.mux.HandleFunc("PATCH /memory/{fanId}/personality", mc.OverridePersonality)
	h.mux.HandleFunc("DELETE /memory/{fanId}/personality/pins/{field}", mc.UnpinPersonality)
	h.mux.HandleFunc("POST /memory/{fanId}/recommendations", mc.Recommend)
	h.mux.HandleFunc("POST /memory/{fanId}/export", mc.Export)
	return h
}

func (h *harness) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.mux.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

// --- tests ---

func TestGetMemory_OK(t *testing.T) {
	h := newHarness()
	rr := h.do(http.MethodGet, "/memory/f1?creatorId=c1", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, models.NewPairKey("f1", "c1"), h.svc.lastKey)
	assert.Nil(t, h.svc.persona, "no persona params means the default persona")
	assert.Equal(t, "f1", decodeBody(t, rr)["fanId"])
	assert.Equal(t, []string{"read:c1"}, h.limiter.calls)
}

func TestGetMemory_CreatorFromHeaderAndPersona(t *testing.T) {
	h := newHarness()
	rr := h.do(http.MethodGet, "/memory/f1?tone=flirty&emojiFrequency=0.4&softSell=0.3", "", map[string]string{headerCreatorID: "c9"})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "c9", h.svc.lastKey.CreatorID)
	require.NotNil(t, h.svc.persona)
	assert.Equal(t, models.ToneFlirty, h.svc.persona.Tone)
	assert.InDelta(t, 0.4, h.svc.persona.EmojiFrequency, 1e-9)
	assert.InDelta(t, 0.3, h.svc.persona.BaseSoftSellProbability, 1e-9)
}

func TestGetMemory_InvalidPersona(t *testing.T) {
	h := newHarness()
	rr := h.do(http.MethodGet, "/memory/f1?creatorId=c1&tone=sarcastic&emojiFrequency=3", "", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	fields := decodeBody(t, rr)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "tone")
	assert.Contains(t, fields, "emojiFrequency")
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		retryAfter string
	}{
		{"not found", fmt.Errorf("no memory: %w", models.ErrNotFound), http.StatusNotFound, ""},
		{"validation", &models.ValidationError{Fields: map[string]string{"fanId": "fanId is required"}}, http.StatusBadRequest, ""},
		{"invalid data", fmt.Errorf("%w: bad", models.ErrInvalidData), http.StatusBadRequest, ""},
		{"batch too large", models.ErrBatchTooLarge, http.StatusRequestEntityTooLarge, ""},
		{"version conflict", fmt.Errorf("update preferences: %w", models.ErrVersionConflict), http.StatusConflict, ""},
		{"retryable write", &models.RetryableError{Err: models.ErrStoreUnavailable, RetryAfter: 1500 * time.Millisecond}, http.StatusServiceUnavailable, "2"},
		{"store unavailable", models.ErrStoreUnavailable, http.StatusServiceUnavailable, "5"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, ""},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.svc.err = tt.err
			h.svc.retryAfter = 5 * time.Second
			rr := h.do(http.MethodGet, "/memory/f1?creatorId=c1", "", nil)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.retryAfter, rr.Header().Get(headerRetryAfter))
		})
	}
}

func TestRateLimited(t *testing.T) {
	h := newHarness()
	h.limiter.deny = true
	h.limiter.wait = 300 * time.Millisecond

	rr := h.do(http.MethodPost, "/memory/f1?creatorId=c1", `{"kind":"message","sender":"fan","content":"hi"}`, nil)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get(headerRetryAfter))
	assert.Empty(t, h.svc.saved)
	assert.Equal(t, []string{"write:c1"}, h.limiter.calls)
	assert.Equal(t, 1, h.metrics.RateLimited["write"])
}

func TestSaveInteraction_Created(t *testing.T) {
	h := newHarness()
	body := `{"kind":"purchase","sender":"fan","metadata":{"category":"videos","amount":12.5}}`
	rr := h.do(http.MethodPost, "/memory/f1", body, map[string]string{headerCreatorID: "c1"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, h.svc.saved, 1)
	saved := h.svc.saved[0]
	assert.Equal(t, "f1", saved.FanID, "the path names the fan")
	assert.Equal(t, "c1", saved.CreatorID)
	assert.Equal(t, models.KindPurchase, saved.Kind)
	assert.Equal(t, models.CategoryVideos, saved.Metadata.Category)
	assert.Equal(t, "i-1", decodeBody(t, rr)["id"])
}

func TestSaveInteraction_BadBodies(t *testing.T) {
	h := newHarness()

	rr := h.do(http.MethodPost, "/memory/f1?creatorId=c1", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(http.MethodPost, "/memory/f1?creatorId=c1", `{"creatorId":"c2","kind":"message","sender":"fan","content":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["fields"], "creatorId")

	big := `{"content":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	rr = h.do(http.MethodPost, "/memory/f1?creatorId=c1", big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Empty(t, h.svc.saved)
}

func TestClearMemory_Accepted(t *testing.T) {
	h := newHarness()
	rr := h.do(http.MethodDelete, "/memory/f1?creatorId=c1", "", map[string]string{headerActor: "support@agency"})

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "support@agency", h.svc.lastActor)
	body := decodeBody(t, rr)
	assert.Equal(t, "e-1", body["id"])
	assert.Equal(t, "pending", body["status"])
}

func TestClearMemory_ActorDefaultsToCreator(t *testing.T) {
	h := newHarness()
	rr := h.do(http.MethodDelete, "/memory/f1?creatorId=c1", "", nil)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "c1", h.svc.lastActor)
}

func TestGetEngagement(t *testing.T) {
	h := newHarness()
	h.svc.score = 0.42
	rr := h.do(http.MethodGet, "/memory/f1/engagement?creatorId=c1", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 0.42, decodeBody(t, rr)["engagementScore"], 1e-9)
}

func TestPinEndpoints(t *testing.T) {
	h := newHarness()

	rr := h.do(http.MethodPatch, "/memory/f1/preferences?creatorId=c1", `{"entries":[{"category":"merch","score":0.9}]}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(http.MethodDelete, "/memory/f1/preferences/merch/pin?creatorId=c1", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.CategoryMerch, h.svc.category)

	rr = h.do(http.MethodPatch, "/memory/f1/personality?creatorId=c1", `{"tone":"playful"}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(http.MethodDelete, "/memory/f1/personality/pins/tone?creatorId=c1", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.FieldTone, h.svc.field)
	assert.Equal(t, models.NewPairKey("f1", "c1"), h.svc.lastKey)
}

func TestRecommendAndExport(t *testing.T) {
	h := newHarness()

	rr := h.do(http.MethodPost, "/memory/f1/recommendations?creatorId=c1", `{"items":[{"id":"a","category":"photos"}]}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, h.svc.items, 1)
	assert.Equal(t, models.CategoryPhotos, h.svc.items[0].Category)

	rr = h.do(http.MethodPost, "/memory/f1/export?creatorId=c1", "", map[string]string{headerActor: "fan-f1"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/tmp/export.json.zst", decodeBody(t, rr)["archivePath"])
	assert.Equal(t, "fan-f1", h.svc.lastActor)
}

func TestStats(t *testing.T) {
	h := newHarness()
	rr := h.do(http.MethodGet, "/memory/stats?creatorId=c1", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "c1", h.svc.lastKey.CreatorID)
	assert.Equal(t, float64(2), decodeBody(t, rr)["fans"])
}

func TestBulk(t *testing.T) {
	h := newHarness()

	rr := h.do(http.MethodPost, "/memory/bulk?creatorId=c1", `{"fanIds":["f1","f2"]}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"f1", "f2"}, h.svc.fanIDs)
	assert.Len(t, decodeBody(t, rr)["contexts"], 2)

	rr = h.do(http.MethodPost, "/memory/bulk?creatorId=c1", `{"fanIds":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	h.svc.err = fmt.Errorf("101 fans: %w", models.ErrBatchTooLarge)
	rr = h.do(http.MethodPost, "/memory/bulk?creatorId=c1", `{"fanIds":["f1"]}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
