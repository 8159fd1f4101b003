package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"memoryd/internal/models"
	"memoryd/internal/providers"
)

const (
	refreshConcurrency      = 8
	defaultEngagementMaxAge = 24 * time.Hour
	statsActiveWindow       = 7 * 24 * time.Hour

	highEngagement   = 0.7
	mediumEngagement = 0.4
)

// Engagement score weights. Each component saturates in [0,1].
const (
	weightMessages       = 0.25
	weightPurchases      = 0.25
	weightRevenue        = 0.15
	weightResponsiveness = 0.15
	weightRecency        = 0.20

	messageScale       = 50.0
	purchaseScale      = 5.0
	revenueSaturation  = 500.0
	responseScaleSecs  = 300.0
	recencyHalfLifeDay = 14.0
)

// EngagementScore derives the score from the raw totals at the given time.
func EngagementScore(t *models.EngagementTotals, now time.Time) float64 {
	if t == nil || t.LastInteraction.IsZero() {
		return 0
	}
	messages := 1 - math.Exp(-float64(t.TotalMessages)/messageScale)
	purchases := 1 - math.Exp(-float64(t.TotalPurchases)/purchaseScale)
	revenue := math.Min(1, math.Log1p(math.Max(0, t.TotalRevenue))/math.Log1p(revenueSaturation))
	responsiveness := 0.5
	if t.ResponseSamples > 0 {
		responsiveness = 1 / (1 + t.AvgResponseTimeSeconds/responseScaleSecs)
	}
	days := math.Max(0, now.Sub(t.LastInteraction).Hours()/24)
	recency := math.Exp(-days / recencyHalfLifeDay)

	score := weightMessages*messages +
		weightPurchases*purchases +
		weightRevenue*revenue +
		weightResponsiveness*responsiveness +
		weightRecency*recency
	return math.Max(0, math.Min(1, score))
}

func (s *MemoryService) engagementMaxAge() time.Duration {
	if s.conf.Memory.EngagementMaxAge > 0 {
		return s.conf.Memory.EngagementMaxAge
	}
	return defaultEngagementMaxAge
}

// GetEngagementScore serves the stored score while fresh and recomputes it
// otherwise. When recomputation fails a stale score is still served.
func (s *MemoryService) GetEngagementScore(ctx context.Context, key models.PairKey) (float64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	current := &models.EngagementMetrics{}
	err := s.repo.Get(ctx, models.EntityEngagement, key, current)
	switch {
	case errors.Is(err, models.ErrNotFound):
		current = nil
	case err != nil:
		s.logger.Warnf(providers.TypeGet, "Engagement of %s unreadable, recomputing: %v", key, err)
		current = nil
	case !current.IsStale(s.now(), s.engagementMaxAge()):
		return current.EngagementScore, nil
	}

	fresh, err := s.recomputeEngagement(ctx, key)
	if err != nil {
		if current != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.Warnf(providers.TypeGet, "Serving stale engagement of %s: %v", key, err)
			return current.EngagementScore, nil
		}
		return 0, err
	}
	return fresh.EngagementScore, nil
}

func (s *MemoryService) recomputeEngagement(ctx context.Context, key models.PairKey) (*models.EngagementMetrics, error) {
	totals, err := s.repo.EngagementTotals(ctx, key)
	if err != nil {
		return nil, err
	}
	if totals.LastInteraction.IsZero() {
		return nil, fmt.Errorf("no interactions for %s: %w", key, models.ErrNotFound)
	}
	now := s.now().UTC()
	metrics := &models.EngagementMetrics{
		FanID:                  key.FanID,
		CreatorID:              key.CreatorID,
		EngagementScore:        EngagementScore(totals, now),
		TotalMessages:          totals.TotalMessages,
		TotalPurchases:         totals.TotalPurchases,
		TotalRevenue:           totals.TotalRevenue,
		AvgResponseTimeSeconds: totals.AvgResponseTimeSeconds,
		LastInteraction:        totals.LastInteraction,
		ComputedAt:             now,
	}
	if err := s.repo.Save(ctx, models.EntityEngagement, key, metrics); err != nil {
		return nil, err
	}
	s.metrics.IncEngagementRecomputed()
	return metrics, nil
}

// engagementTask recomputes the metrics only when the stored ones are stale.
func (s *MemoryService) engagementTask(key models.PairKey) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		current := &models.EngagementMetrics{}
		err := s.repo.Get(ctx, models.EntityEngagement, key, current)
		if err == nil && !current.IsStale(s.now(), s.engagementMaxAge()) {
			return nil
		}
		_, err = s.recomputeEngagement(ctx, key)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
}

// RefreshEngagement recomputes stale metrics of pairs active since the given time.
func (s *MemoryService) RefreshEngagement(ctx context.Context, activeSince time.Time) (int, error) {
	keys, err := s.repo.ActivePairs(ctx, activeSince)
	if err != nil {
		return 0, err
	}

	var refreshed, failed int
	results := make(chan bool, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			current := &models.EngagementMetrics{}
			if err := s.repo.Get(gctx, models.EntityEngagement, key, current); err == nil && !current.IsStale(s.now(), s.engagementMaxAge()) {
				return nil
			}
			if _, err := s.recomputeEngagement(gctx, key); err != nil {
				s.logger.Warnf(providers.TypeLearning, "Engagement refresh of %s failed: %v", key, err)
				results <- false
				return nil
			}
			results <- true
			return nil
		})
	}
	err = g.Wait()
	close(results)
	for ok := range results {
		if ok {
			refreshed++
		} else {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Warnf(providers.TypeLearning, "Engagement refresh: %d refreshed, %d failed", refreshed, failed)
	}
	return refreshed, err
}

// CreatorStats summarizes a creator's audience over the last week.
func (s *MemoryService) CreatorStats(ctx context.Context, creatorID string) (*models.CreatorStats, error) {
	if err := models.NewPairKey("-", creatorID).Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	stats, err := s.repo.CreatorTotals(ctx, creatorID, now.Add(-statsActiveWindow))
	if err != nil {
		return nil, err
	}
	metrics, err := s.repo.CreatorEngagement(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	stats.EngagementBuckets = map[models.EngagementLevel]int{
		models.EngagementHigh:   0,
		models.EngagementMedium: 0,
		models.EngagementLow:    0,
	}
	var sum float64
	for _, m := range metrics {
		sum += m.EngagementScore
		switch {
		case m.EngagementScore >= highEngagement:
			stats.EngagementBuckets[models.EngagementHigh]++
		case m.EngagementScore >= mediumEngagement:
			stats.EngagementBuckets[models.EngagementMedium]++
		default:
			stats.EngagementBuckets[models.EngagementLow]++
		}
	}
	if len(metrics) > 0 {
		stats.AvgEngagement = sum / float64(len(metrics))
	}
	stats.GeneratedAt = now
	return stats, nil
}
