package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"memoryd/internal/models"
	"memoryd/internal/providers"
)

// ExportMemory gathers everything stored for the pair. When archiving is
// enabled the export is also written to disk and its path returned.
func (s *MemoryService) ExportMemory(ctx context.Context, key models.PairKey, actor string) (*models.MemoryExport, string, error) {
	if err := key.Validate(); err != nil {
		return nil, "", err
	}
	export := &models.MemoryExport{FanID: key.FanID, CreatorID: key.CreatorID, ExportedAt: s.now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	document := func(entity models.EntityType, dest any) (bool, error) {
		err := s.repo.Get(gctx, entity, key, dest)
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
	g.Go(func() error {
		list, err := s.repo.AllInteractions(gctx, key)
		export.Interactions = list
		return err
	})
	g.Go(func() error {
		p := &models.PersonalityProfile{}
		ok, err := document(models.EntityPersonality, p)
		if ok {
			export.Personality = p
		}
		return err
	})
	g.Go(func() error {
		p := &models.FanPreferences{}
		ok, err := document(models.EntityPreferences, p)
		if ok {
			export.Preferences = p
		}
		return err
	})
	g.Go(func() error {
		e := &models.EmotionalState{}
		ok, err := document(models.EntityEmotionalState, e)
		if ok {
			export.EmotionalState = e
		}
		return err
	})
	g.Go(func() error {
		e := &models.EngagementMetrics{}
		ok, err := document(models.EntityEngagement, e)
		if ok {
			export.Engagement = e
		}
		return err
	})
	g.Go(func() error {
		trail, err := s.repo.ListAudit(gctx, key)
		export.AuditTrail = trail
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, "", fmt.Errorf("export %s: %w", key, err)
	}

	if len(export.Interactions) == 0 && export.Personality == nil && export.Preferences == nil &&
		export.EmotionalState == nil && export.Engagement == nil {
		return nil, "", fmt.Errorf("no memory for %s: %w", key, models.ErrNotFound)
	}
	if export.Interactions == nil {
		export.Interactions = []*models.Interaction{}
	}

	s.audit(ctx, actor, models.ActionMemoryExport, key)

	if !s.archiver.Enabled() {
		return export, "", nil
	}
	path, err := s.archiver.Save(export)
	if err != nil {
		s.logger.Errorf(providers.TypeAudit, "Failed to archive export of %s: %v", key, err)
		return export, "", nil
	}
	return export, path, nil
}
