package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"memoryd/internal/models"
	"memoryd/internal/providers"
	"memoryd/internal/tasks"
)

const defaultErasureDeadline = 72 * time.Hour

func (s *MemoryService) erasureDeadline() time.Duration {
	if s.conf.Erasure.Deadline > 0 {
		return s.conf.Erasure.Deadline
	}
	return defaultErasureDeadline
}

// ClearMemory records an erasure request and removes the pair right away when
// the store allows it. A request left pending is finished by the sweep.
func (s *MemoryService) ClearMemory(ctx context.Context, key models.PairKey, actor string) (*models.ErasureRequest, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	req := &models.ErasureRequest{
		ID:          uuid.NewString(),
		FanID:       key.FanID,
		CreatorID:   key.CreatorID,
		Actor:       actorOrSystem(actor),
		Status:      models.ErasurePending,
		RequestedAt: now,
		Deadline:    now.Add(s.erasureDeadline()),
	}
	if err := s.repo.CreateErasureRequest(ctx, req); err != nil {
		return nil, err
	}
	s.markErased(key)
	s.audit(ctx, req.Actor, models.ActionMemoryErase, key)

	deleted := s.repo.Delete(ctx, key) == nil
	err := s.dispatcher.Submit(s.erasureTask(req))
	if err != nil && deleted {
		s.finishErasure(context.WithoutCancel(ctx), req)
	}
	return req, nil
}

func (s *MemoryService) erasureTask(req *models.ErasureRequest) tasks.Task {
	return tasks.Task{
		Name: "erasure",
		Key:  req.Key(),
		Run: func(ctx context.Context) error {
			return s.finishErasure(ctx, req)
		},
	}
}

// finishErasure deletes again so records written while the request was queued
// are gone too, then completes the request.
func (s *MemoryService) finishErasure(ctx context.Context, req *models.ErasureRequest) error {
	key := req.Key()
	if err := s.repo.Delete(ctx, key); err != nil {
		return err
	}
	at := s.now().UTC()
	if err := s.repo.CompleteErasureRequest(ctx, req.ID, at); err != nil {
		return err
	}
	req.Status = models.ErasureCompleted
	req.CompletedAt = &at
	s.logger.Infof(providers.TypeAudit, "Erasure %s of %s completed by %s", req.ID, key, req.Actor)
	return nil
}

// CompletePendingErasures finishes every pending request and reports the ones
// past their deadline.
func (s *MemoryService) CompletePendingErasures(ctx context.Context) (int, error) {
	pending, err := s.repo.PendingErasureRequests(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	completed := 0
	var errs []error
	for _, req := range pending {
		if now.After(req.Deadline) {
			s.logger.Errorf(providers.TypeAudit, "Erasure %s of %s is past its deadline %s", req.ID, req.Key(), req.Deadline.Format(time.RFC3339))
		}
		if err := s.finishErasure(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("erasure %s: %w", req.ID, err))
			continue
		}
		completed++
	}
	return completed, errors.Join(errs...)
}

func (s *MemoryService) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.CleanupOlderThan(ctx, cutoff)
}

func (s *MemoryService) audit(ctx context.Context, actor, action string, key models.PairKey) {
	rec := &models.AuditRecord{
		ID:        uuid.NewString(),
		Actor:     actorOrSystem(actor),
		Action:    action,
		FanID:     key.FanID,
		CreatorID: key.CreatorID,
		Timestamp: s.now().UTC(),
	}
	s.logger.Infof(providers.TypeAudit, "%s by %s on %s", action, rec.Actor, key)
	if err := s.repo.InsertAudit(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Errorf(providers.TypeAudit, "Failed to persist audit record %s (%s on %s): %v", rec.ID, action, key, err)
	}
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
