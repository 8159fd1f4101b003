package repository

import (
	"context"
	"time"

	"memoryd/internal/models"
)

func (r *MemoryRepository) EngagementTotals(ctx context.Context, key models.PairKey) (*models.EngagementTotals, error) {
	var totals *models.EngagementTotals
	err := r.storeRead(ctx, "engagement_totals", func(ctx context.Context) error {
		var err error
		totals, err = r.store.EngagementTotals(ctx, key)
		return err
	})
	return totals, err
}

func (r *MemoryRepository) ActivePairs(ctx context.Context, since time.Time) ([]models.PairKey, error) {
	var keys []models.PairKey
	err := r.storeRead(ctx, "active_pairs", func(ctx context.Context) error {
		var err error
		keys, err = r.store.ActivePairs(ctx, since)
		return err
	})
	return keys, err
}

func (r *MemoryRepository) CreatorTotals(ctx context.Context, creatorID string, activeSince time.Time) (*models.CreatorStats, error) {
	var stats *models.CreatorStats
	err := r.storeRead(ctx, "creator_totals", func(ctx context.Context) error {
		var err error
		stats, err = r.store.CreatorTotals(ctx, creatorID, activeSince)
		return err
	})
	return stats, err
}

func (r *MemoryRepository) InsertAudit(ctx context.Context, rec *models.AuditRecord) error {
	return r.storeWrite(ctx, "insert_audit", func(ctx context.Context) error {
		return r.store.InsertAudit(ctx, rec)
	})
}

func (r *MemoryRepository) ListAudit(ctx context.Context, key models.PairKey) ([]*models.AuditRecord, error) {
	var list []*models.AuditRecord
	err := r.storeRead(ctx, "list_audit", func(ctx context.Context) error {
		var err error
		list, err = r.store.ListAudit(ctx, key)
		return err
	})
	return list, err
}

func (r *MemoryRepository) CreateErasureRequest(ctx context.Context, req *models.ErasureRequest) error {
	return r.storeWrite(ctx, "create_erasure", func(ctx context.Context) error {
		return r.store.CreateErasureRequest(ctx, req)
	})
}

func (r *MemoryRepository) CompleteErasureRequest(ctx context.Context, id string, at time.Time) error {
	return r.storeWrite(ctx, "complete_erasure", func(ctx context.Context) error {
		return r.store.CompleteErasureRequest(ctx, id, at)
	})
}

func (r *MemoryRepository) PendingErasureRequests(ctx context.Context) ([]*models.ErasureRequest, error) {
	var list []*models.ErasureRequest
	err := r.storeRead(ctx, "pending_erasures", func(ctx context.Context) error {
		var err error
		list, err = r.store.PendingErasureRequests(ctx)
		return err
	})
	return list, err
}

func (r *MemoryRepository) LatestErasureRequest(ctx context.Context, key models.PairKey) (*models.ErasureRequest, error) {
	var req *models.ErasureRequest
	err := r.storeRead(ctx, "latest_erasure", func(ctx context.Context) error {
		var err error
		req, err = r.store.LatestErasureRequest(ctx, key)
		return err
	})
	return req, err
}
