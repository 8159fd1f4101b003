package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"memoryd/internal/models"
)

// EngagementTotals aggregates the interaction records of a pair.
func (s *Store) EngagementTotals(ctx context.Context, key models.PairKey) (*models.EngagementTotals, error) {
	var (
		totals               models.EngagementTotals
		revenue, avgResponse sql.NullFloat64
		lastTs               sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'message' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'purchase' THEN 1 ELSE 0 END), 0),
			SUM(CASE WHEN kind = 'purchase' THEN amount ELSE 0 END),
			AVG(CASE WHEN sender = 'fan' AND response_time > 0 THEN response_time END),
			COALESCE(SUM(CASE WHEN sender = 'fan' AND response_time > 0 THEN 1 ELSE 0 END), 0),
			MAX(ts)
		FROM interactions WHERE creator_id = ? AND fan_id = ?`),
		key.CreatorID, key.FanID,
	).Scan(&totals.TotalMessages, &totals.TotalPurchases, &revenue, &avgResponse, &totals.ResponseSamples, &lastTs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to aggregate engagement for %s", key)
	}
	totals.TotalRevenue = revenue.Float64
	totals.AvgResponseTimeSeconds = avgResponse.Float64
	if lastTs.Valid {
		totals.LastInteraction = fromMillis(lastTs.Int64)
	}
	return &totals, nil
}

// ActivePairs lists pairs with at least one interaction since the given time.
func (s *Store) ActivePairs(ctx context.Context, since time.Time) ([]models.PairKey, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT DISTINCT creator_id, fan_id FROM interactions WHERE ts >= ?
		ORDER BY creator_id, fan_id`),
		toMillis(since),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active pairs")
	}
	defer rows.Close()

	var keys []models.PairKey
	for rows.Next() {
		var k models.PairKey
		if err := rows.Scan(&k.CreatorID, &k.FanID); err != nil {
			return nil, errors.Wrap(err, "failed to scan active pair")
		}
		keys = append(keys, k)
	}
	return keys, errors.Wrap(rows.Err(), "failed to iterate active pairs")
}

// CreatorTotals fills the interaction-derived part of a creator's stats.
func (s *Store) CreatorTotals(ctx context.Context, creatorID string, activeSince time.Time) (*models.CreatorStats, error) {
	stats := &models.CreatorStats{CreatorID: creatorID}
	var revenue sql.NullFloat64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT
			COUNT(DISTINCT fan_id),
			COUNT(DISTINCT CASE WHEN ts >= ? THEN fan_id END),
			COALESCE(SUM(CASE WHEN kind = 'message' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'purchase' THEN 1 ELSE 0 END), 0),
			SUM(CASE WHEN kind = 'purchase' THEN amount ELSE 0 END)
		FROM interactions WHERE creator_id = ?`),
		toMillis(activeSince), creatorID,
	).Scan(&stats.Fans, &stats.ActiveFans7d, &stats.TotalMessages, &stats.TotalPurchases, &revenue)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to aggregate stats for creator %s", creatorID)
	}
	stats.TotalRevenue = revenue.Float64
	return stats, nil
}
