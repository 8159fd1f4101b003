package services

import (
	"context"
	"errors"
	"fmt"

	"memoryd/internal/models"
	"memoryd/internal/preference"
)

const maxRecommendItems = 200

// OverridePreferences pins creator-set scores. Pinned entries survive pruning
// and are only released by UnpinPreference.
func (s *MemoryService) OverridePreferences(ctx context.Context, key models.PairKey, override *models.PreferenceOverride, actor string) (*models.FanPreferences, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if override == nil {
		return nil, &models.ValidationError{Fields: map[string]string{"body": "override is required"}}
	}
	if err := override.Validate(); err != nil {
		return nil, err
	}
	if len(override.Entries) > preference.MaxEntries {
		return nil, &models.ValidationError{Fields: map[string]string{
			"entries": fmt.Sprintf("at most %d categories can be pinned", preference.MaxEntries),
		}}
	}

	prefs, err := updateDocument(ctx, s.repo, models.EntityPreferences, key, func(prefs *models.FanPreferences) (*models.FanPreferences, error) {
		if prefs == nil {
			prefs = s.seedPreferences(ctx, key, s.now())
		}
		if pinned := preference.PinnedAfter(prefs, override); pinned > preference.MaxEntries {
			return nil, &models.ValidationError{Fields: map[string]string{
				"entries": fmt.Sprintf("%d categories would be pinned, at most %d allowed; unpin some first", pinned, preference.MaxEntries),
			}}
		}
		s.engine.ApplyOverride(prefs, override, s.now())
		return prefs, nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, models.ActionPreferencesOverride, key)
	return prefs, nil
}

func (s *MemoryService) UnpinPreference(ctx context.Context, key models.PairKey, category models.ContentCategory, actor string) (*models.FanPreferences, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, &models.ValidationError{Fields: map[string]string{"category": fmt.Sprintf("unknown content category %q", category)}}
	}
	prefs, err := updateDocument(ctx, s.repo, models.EntityPreferences, key, func(prefs *models.FanPreferences) (*models.FanPreferences, error) {
		if prefs == nil || !s.engine.Unpin(prefs, category) {
			return nil, fmt.Errorf("%s is not pinned for %s: %w", category, key, models.ErrNotFound)
		}
		prefs.UpdatedAt = s.now()
		return prefs, nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, models.ActionPreferencesUnpin, key)
	return prefs, nil
}

func (s *MemoryService) OverridePersonality(ctx context.Context, key models.PairKey, override *models.PersonalityOverride, actor string) (*models.PersonalityProfile, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if override == nil {
		return nil, &models.ValidationError{Fields: map[string]string{"body": "override is required"}}
	}
	if err := override.Validate(); err != nil {
		return nil, err
	}

	profile, err := updateDocument(ctx, s.repo, models.EntityPersonality, key, func(profile *models.PersonalityProfile) (*models.PersonalityProfile, error) {
		if profile == nil {
			profile = models.DefaultPersonalityProfile(key)
		}
		s.calibrator.ApplyOverride(profile, override, s.now())
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, models.ActionPersonalityOverride, key)
	return profile, nil
}

func (s *MemoryService) UnpinPersonality(ctx context.Context, key models.PairKey, field models.PersonalityField, actor string) (*models.PersonalityProfile, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !field.Valid() {
		return nil, &models.ValidationError{Fields: map[string]string{"field": fmt.Sprintf("unknown personality field %q", field)}}
	}
	profile, err := updateDocument(ctx, s.repo, models.EntityPersonality, key, func(profile *models.PersonalityProfile) (*models.PersonalityProfile, error) {
		if profile == nil || !s.calibrator.Unpin(profile, field) {
			return nil, fmt.Errorf("%s is not pinned for %s: %w", field, key, models.ErrNotFound)
		}
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, models.ActionPersonalityUnpin, key)
	return profile, nil
}

// Recommend ranks the offered items for the fan. A fan without learned
// preferences is ranked against the audience prior.
func (s *MemoryService) Recommend(ctx context.Context, key models.PairKey, items []models.ContentItem) (*models.RecommendationResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	if len(items) == 0 {
		fields["items"] = "at least one item is required"
	}
	if len(items) > maxRecommendItems {
		fields["items"] = fmt.Sprintf("at most %d items are allowed", maxRecommendItems)
	}
	for i, item := range items {
		if !item.Category.Valid() {
			fields[fmt.Sprintf("items[%d].category", i)] = fmt.Sprintf("unknown content category %q", item.Category)
		}
	}
	if len(fields) > 0 {
		return nil, &models.ValidationError{Fields: fields}
	}

	prefs, err := s.loadPreferences(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.engine.GetContentRecommendations(prefs, items, s.now()), nil
}

// loadPreferences returns the stored preferences or a seeded set for a new fan.
func (s *MemoryService) loadPreferences(ctx context.Context, key models.PairKey) (*models.FanPreferences, error) {
	prefs := &models.FanPreferences{}
	err := s.repo.Get(ctx, models.EntityPreferences, key, prefs)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return s.seedPreferences(ctx, key, s.now()), nil
	case err != nil:
		return nil, err
	}
	return prefs, nil
}
