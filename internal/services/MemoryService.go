package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"memoryd/internal/emotion"
	"memoryd/internal/maintenance/interfaces"
	"memoryd/internal/models"
	"memoryd/internal/personality"
	"memoryd/internal/preference"
	"memoryd/internal/providers"
	"memoryd/internal/repository"
	"memoryd/internal/structures"
	"memoryd/internal/tasks"
)

const predictedTopN = 5

type MemoryServiceInterface interface {
	GetMemoryContext(ctx context.Context, key models.PairKey, persona *models.CreatorPersona) (*models.MemoryContext, error)
	BulkMemoryContext(ctx context.Context, creatorID string, fanIDs []string, persona *models.CreatorPersona) (*BulkContextResult, error)
	SaveInteraction(ctx context.Context, event *models.Interaction) (*models.Interaction, error)
	ClearMemory(ctx context.Context, key models.PairKey, actor string) (*models.ErasureRequest, error)
	GetEngagementScore(ctx context.Context, key models.PairKey) (float64, error)

	OverridePreferences(ctx context.Context, key models.PairKey, override *models.PreferenceOverride, actor string) (*models.FanPreferences, error)
	UnpinPreference(ctx context.Context, key models.PairKey, category models.ContentCategory, actor string) (*models.FanPreferences, error)
	OverridePersonality(ctx context.Context, key models.PairKey, override *models.PersonalityOverride, actor string) (*models.PersonalityProfile, error)
	UnpinPersonality(ctx context.Context, key models.PairKey, field models.PersonalityField, actor string) (*models.PersonalityProfile, error)
	Recommend(ctx context.Context, key models.PairKey, items []models.ContentItem) (*models.RecommendationResult, error)
	ExportMemory(ctx context.Context, key models.PairKey, actor string) (*models.MemoryExport, string, error)
	CreatorStats(ctx context.Context, creatorID string) (*models.CreatorStats, error)

	interfaces.MaintenanceInterface

	DefaultPersona() models.CreatorPersona
	MaxBatch() int
	BreakerStates() map[string]string
	StoreRetryAfter() time.Duration
	Ping(ctx context.Context) error
}

// BulkContextResult holds the contexts of the fans that have memory and lists the rest.
type BulkContextResult struct {
	Contexts map[string]*models.MemoryContext `json:"contexts"`
	Missing  []string                         `json:"missing"`
}

type MemoryService struct {
	conf       *structures.Config
	repo       repository.MemoryRepositoryInterface
	analyzer   emotion.AnalyzerInterface
	engine     preference.EngineInterface
	calibrator personality.CalibratorInterface
	dispatcher tasks.DispatcherInterface
	archiver   interfaces.ArchiverInterface
	metrics    providers.MetricsProviderInterface
	logger     providers.Logger
	now        func() time.Time

	// erased prefilters background tasks: a pair absent from it has not been
	// erased by this process, so no store lookup is needed.
	erasedMu sync.RWMutex
	erased   *roaring.Bitmap
}

func NewMemoryService(
	conf *structures.Config,
	repo repository.MemoryRepositoryInterface,
	analyzer emotion.AnalyzerInterface,
	engine preference.EngineInterface,
	calibrator personality.CalibratorInterface,
	dispatcher tasks.DispatcherInterface,
	archiver interfaces.ArchiverInterface,
	metrics providers.MetricsProviderInterface,
	logger providers.Logger,
) MemoryServiceInterface {
	return newMemoryService(conf, repo, analyzer, engine, calibrator, dispatcher, archiver, metrics, logger)
}

func newMemoryService(
	conf *structures.Config,
	repo repository.MemoryRepositoryInterface,
	analyzer emotion.AnalyzerInterface,
	engine preference.EngineInterface,
	calibrator personality.CalibratorInterface,
	dispatcher tasks.DispatcherInterface,
	archiver interfaces.ArchiverInterface,
	metrics providers.MetricsProviderInterface,
	logger providers.Logger,
) *MemoryService {
	return &MemoryService{
		conf:       conf,
		repo:       repo,
		analyzer:   analyzer,
		engine:     engine,
		calibrator: calibrator,
		dispatcher: dispatcher,
		archiver:   archiver,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		erased:     roaring.New(),
	}
}

func (s *MemoryService) DefaultPersona() models.CreatorPersona {
	p := s.conf.Memory.DefaultPersona
	return models.CreatorPersona{
		Tone:                    models.Tone(p.Tone),
		EmojiFrequency:          p.EmojiFrequency,
		MessageLength:           models.LengthPreference(p.MessageLength),
		BaseSoftSellProbability: p.SoftSell,
	}
}

func (s *MemoryService) MaxBatch() int {
	if s.conf.RateLimit.MaxBatch > 0 {
		return s.conf.RateLimit.MaxBatch
	}
	return 100
}

func (s *MemoryService) BreakerStates() map[string]string {
	return s.repo.BreakerStates()
}

func (s *MemoryService) StoreRetryAfter() time.Duration {
	return s.repo.StoreRetryAfter()
}

func (s *MemoryService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *MemoryService) QueueDepth() int {
	return s.dispatcher.Depth()
}

func (s *MemoryService) Drain(ctx context.Context) error {
	return s.dispatcher.Stop(ctx)
}

func (s *MemoryService) window() int {
	if s.conf.Memory.RecentWindow > 0 {
		return s.conf.Memory.RecentWindow
	}
	return 50
}

// memorySnapshot is what one context build read. Nil fields were not found.
type memorySnapshot struct {
	messages    []*models.Interaction
	personality *models.PersonalityProfile
	preferences *models.FanPreferences
	emotional   *models.EmotionalState
	engagement  *models.EngagementMetrics
	degraded    []models.DegradedField
}

func (m *memorySnapshot) empty() bool {
	return len(m.messages) == 0 && m.personality == nil && m.preferences == nil &&
		m.emotional == nil && m.engagement == nil && len(m.degraded) == 0
}

// GetMemoryContext reads the five entities concurrently. A failed read degrades
// only its own field; a cancelled caller gets ctx.Err() and nothing is kept.
func (s *MemoryService) GetMemoryContext(ctx context.Context, key models.PairKey, persona *models.CreatorPersona) (*models.MemoryContext, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	snap := &memorySnapshot{}
	var mu sync.Mutex
	degrade := func(entity models.EntityType, err error) {
		mu.Lock()
		defer mu.Unlock()
		snap.degraded = append(snap.degraded, models.DegradedField{Entity: entity, Reason: degradeReason(err)})
	}

	var g errgroup.Group
	g.Go(func() error {
		list, err := s.repo.RecentMessages(ctx, key, s.window())
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				degrade(models.EntityMessages, err)
			}
			return nil
		}
		snap.messages = list
		return nil
	})
	g.Go(func() error {
		var p models.PersonalityProfile
		if s.readDocument(ctx, models.EntityPersonality, key, &p, degrade) {
			snap.personality = &p
		}
		return nil
	})
	g.Go(func() error {
		var p models.FanPreferences
		if s.readDocument(ctx, models.EntityPreferences, key, &p, degrade) {
			snap.preferences = &p
		}
		return nil
	})
	g.Go(func() error {
		var e models.EmotionalState
		if s.readDocument(ctx, models.EntityEmotionalState, key, &e, degrade) {
			snap.emotional = &e
		}
		return nil
	})
	g.Go(func() error {
		var e models.EngagementMetrics
		if s.readDocument(ctx, models.EntityEngagement, key, &e, degrade) {
			snap.engagement = &e
		}
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap.empty() {
		return nil, fmt.Errorf("no memory for %s: %w", key, models.ErrNotFound)
	}

	for _, d := range snap.degraded {
		s.metrics.IncDegradedContext(string(d.Entity))
		s.logger.Warnf(providers.TypeGet, "Memory context of %s degraded: %s %s", key, d.Entity, d.Reason)
	}
	if snap.engagement != nil && snap.engagement.IsStale(s.now(), s.engagementMaxAge()) {
		s.submit(key, "engagement", s.engagementTask(key))
	}

	return s.buildContext(key, snap, s.personaOrDefault(persona)), nil
}

// readDocument reports whether dest was filled. NotFound is not a degradation.
func (s *MemoryService) readDocument(ctx context.Context, entity models.EntityType, key models.PairKey, dest any, degrade func(models.EntityType, error)) bool {
	err := s.repo.Get(ctx, entity, key, dest)
	switch {
	case err == nil:
		return true
	case errors.Is(err, models.ErrNotFound):
		return false
	default:
		degrade(entity, err)
		return false
	}
}

func degradeReason(err error) string {
	switch {
	case errors.Is(err, models.ErrStoreUnavailable):
		return "store unavailable"
	case errors.Is(err, models.ErrCacheUnavailable):
		return "cache unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, models.ErrInvalidData):
		return "undecodable record"
	}
	return "read failed"
}

func (s *MemoryService) personaOrDefault(p *models.CreatorPersona) models.CreatorPersona {
	def := s.DefaultPersona()
	if p == nil {
		return def
	}
	out := *p
	if !out.Tone.Valid() {
		out.Tone = def.Tone
	}
	if !out.MessageLength.Valid() {
		out.MessageLength = def.MessageLength
	}
	return out
}

// buildContext fills documented defaults for missing fields and derives the
// guidance the generator needs. It performs no I/O.
func (s *MemoryService) buildContext(key models.PairKey, snap *memorySnapshot, persona models.CreatorPersona) *models.MemoryContext {
	now := s.now()
	c := &models.MemoryContext{
		FanID:          key.FanID,
		CreatorID:      key.CreatorID,
		RecentMessages: snap.messages,
		Personality:    snap.personality,
		Preferences:    snap.preferences,
		EmotionalState: snap.emotional,
		Engagement:     snap.engagement,
		Degraded:       snap.degraded,
		GeneratedAt:    now,
	}
	if c.RecentMessages == nil {
		c.RecentMessages = []*models.Interaction{}
	}
	if c.Personality == nil {
		c.Personality = models.DefaultPersonalityProfile(key)
	}
	if c.Preferences == nil {
		c.Preferences = models.EmptyFanPreferences(key)
	}
	if c.EmotionalState == nil {
		c.EmotionalState = models.NeutralEmotionalState(key)
	}
	if c.Engagement == nil {
		c.Engagement = &models.EngagementMetrics{FanID: key.FanID, CreatorID: key.CreatorID}
	}

	c.PredictedPreferences = s.engine.GetPredictedPreferences(c.Preferences, predictedTopN)
	c.Disengagement = s.analyzer.DetectDisengagement(c.RecentMessages, now)
	c.Sales = s.analyzer.SalesGuidance(c.RecentMessages, persona.BaseSoftSellProbability)
	c.Style = s.calibrator.GetOptimalResponseStyle(personality.StyleInputs{
		Profile:     c.Personality,
		State:       c.EmotionalState,
		Preferences: c.Preferences,
		Persona:     persona,
		Sales:       c.Sales,
		Now:         now,
	})
	return c
}

// BulkMemoryContext builds contexts for many fans of one creator with one
// batched store read per entity type.
func (s *MemoryService) BulkMemoryContext(ctx context.Context, creatorID string, fanIDs []string, persona *models.CreatorPersona) (*BulkContextResult, error) {
	if len(fanIDs) > s.MaxBatch() {
		return nil, fmt.Errorf("%d fans requested, at most %d allowed: %w", len(fanIDs), s.MaxBatch(), models.ErrBatchTooLarge)
	}
	keys := make([]models.PairKey, 0, len(fanIDs))
	seen := make(map[models.PairKey]struct{}, len(fanIDs))
	for _, fanID := range fanIDs {
		key := models.NewPairKey(fanID, creatorID)
		if err := key.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	entries := make(map[models.EntityType]map[models.PairKey]*repository.Entry, len(models.AllEntityTypes))
	failed := make(map[models.EntityType]error)
	var mu sync.Mutex
	var g errgroup.Group
	for _, entity := range models.AllEntityTypes {
		entity := entity
		g.Go(func() error {
			got, err := s.repo.BulkGet(ctx, entity, keys)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[entity] = err
				return nil
			}
			entries[entity] = got
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := s.personaOrDefault(persona)
	result := &BulkContextResult{Contexts: make(map[string]*models.MemoryContext, len(keys)), Missing: []string{}}
	for _, key := range keys {
		snap := &memorySnapshot{}
		for _, entity := range models.AllEntityTypes {
			if err, ok := failed[entity]; ok {
				snap.degraded = append(snap.degraded, models.DegradedField{Entity: entity, Reason: degradeReason(err)})
			}
		}
		s.decodeBulk(entries, key, snap)
		if snap.empty() {
			result.Missing = append(result.Missing, key.FanID)
			continue
		}
		for _, d := range snap.degraded {
			s.metrics.IncDegradedContext(string(d.Entity))
		}
		result.Contexts[key.FanID] = s.buildContext(key, snap, p)
	}
	return result, nil
}

func (s *MemoryService) decodeBulk(entries map[models.EntityType]map[models.PairKey]*repository.Entry, key models.PairKey, snap *memorySnapshot) {
	decode := func(entity models.EntityType, dest any) bool {
		entry, ok := entries[entity][key]
		if !ok {
			return false
		}
		if err := entry.Decode(dest); err != nil {
			snap.degraded = append(snap.degraded, models.DegradedField{Entity: entity, Reason: degradeReason(models.ErrInvalidData)})
			return false
		}
		return true
	}

	var messages []*models.Interaction
	if decode(models.EntityMessages, &messages) && len(messages) > 0 {
		snap.messages = messages
	}
	var p models.PersonalityProfile
	if decode(models.EntityPersonality, &p) {
		snap.personality = &p
	}
	var prefs models.FanPreferences
	if decode(models.EntityPreferences, &prefs) {
		snap.preferences = &prefs
	}
	var e models.EmotionalState
	if decode(models.EntityEmotionalState, &e) {
		snap.emotional = &e
	}
	var m models.EngagementMetrics
	if decode(models.EntityEngagement, &m) {
		snap.engagement = &m
	}
}

// NewMaintenanceTarget exposes the service to the scheduler.
func NewMaintenanceTarget(service MemoryServiceInterface) interfaces.MaintenanceInterface {
	return service
}
