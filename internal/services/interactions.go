package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"memoryd/internal/models"
	"memoryd/internal/preference"
	"memoryd/internal/providers"
	"memoryd/internal/tasks"
)

const (
	emotionWindow      = 30 * 24 * time.Hour
	calibrationWindow  = 90 * 24 * time.Hour
	audiencePriorLimit = 200
)

// SaveInteraction persists the event before returning. Emotion, preference,
// personality and engagement updates run out of band on the pair's worker.
func (s *MemoryService) SaveInteraction(ctx context.Context, event *models.Interaction) (*models.Interaction, error) {
	if event == nil {
		return nil, &models.ValidationError{Fields: map[string]string{"body": "interaction is required"}}
	}
	now := s.now()
	event.Normalize(now)
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	if event.IsFanMessage() && event.Sentiment == "" {
		signal := s.analyzer.AnalyzeMessage(ctx, event.Content)
		event.Sentiment = signal.Sentiment
		event.Metadata.SentimentScore = signal.Score
		event.Metadata.Intensity = signal.Intensity
		event.Metadata.Emotions = signal.Emotions
	}

	if err := s.repo.AppendInteraction(ctx, event); err != nil {
		return nil, err
	}
	s.logger.Debugf(providers.TypePost, "Interaction %s saved for %s", event.ID, event.Key())

	key := event.Key()
	saved := *event
	if event.IsFanMessage() {
		s.submit(key, "emotion", func(ctx context.Context) error {
			return s.updateEmotionalState(ctx, key)
		})
	}
	s.submit(key, "preferences", func(ctx context.Context) error {
		return s.learnPreferences(ctx, &saved)
	})
	s.submit(key, "personality", func(ctx context.Context) error {
		return s.calibrate(ctx, key)
	})
	s.submit(key, "engagement", s.engagementTask(key))

	return event, nil
}

// submit queues work for the pair. Work queued before an erasure of the pair
// is skipped when it runs.
func (s *MemoryService) submit(key models.PairKey, name string, run func(ctx context.Context) error) {
	enqueued := s.now()
	err := s.dispatcher.Submit(tasks.Task{
		Name: name,
		Key:  key,
		Run: func(ctx context.Context) error {
			if s.erasedSince(ctx, key, enqueued) {
				s.logger.Debugf(providers.TypeLearning, "Task %s for %s skipped: pair erased", name, key)
				return nil
			}
			return run(ctx)
		},
	})
	if err != nil {
		s.logger.Warnf(providers.TypeLearning, "Task %s for %s not queued: %v", name, key, err)
	}
}

func pairHash(key models.PairKey) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.CreatorID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.FanID))
	return h.Sum32()
}

func (s *MemoryService) markErased(key models.PairKey) {
	s.erasedMu.Lock()
	s.erased.Add(pairHash(key))
	s.erasedMu.Unlock()
}

// erasedSince reports whether the pair was erased at or after the given time.
// Erasure requests keep millisecond timestamps, so at is compared at that
// precision. Hash collisions only cost a store lookup.
func (s *MemoryService) erasedSince(ctx context.Context, key models.PairKey, at time.Time) bool {
	s.erasedMu.RLock()
	maybe := s.erased.Contains(pairHash(key))
	s.erasedMu.RUnlock()
	if !maybe {
		return false
	}
	req, err := s.repo.LatestErasureRequest(ctx, key)
	if err != nil {
		return false
	}
	return !req.RequestedAt.Before(at.Truncate(time.Millisecond))
}

func (s *MemoryService) updateEmotionalState(ctx context.Context, key models.PairKey) error {
	now := s.now()
	history, err := s.repo.History(ctx, key, now.Add(-emotionWindow))
	if err != nil {
		return err
	}
	state := s.analyzer.GetEmotionalState(key, history, now)
	return s.repo.Save(ctx, models.EntityEmotionalState, key, state)
}

func (s *MemoryService) learnPreferences(ctx context.Context, event *models.Interaction) error {
	key := event.Key()
	_, err := updateDocument(ctx, s.repo, models.EntityPreferences, key, func(prefs *models.FanPreferences) (*models.FanPreferences, error) {
		now := s.now()
		seeded := prefs == nil
		if seeded {
			prefs = s.seedPreferences(ctx, key, now)
		}
		if !s.engine.LearnFromInteraction(prefs, event, now) && !seeded {
			return nil, nil
		}
		return prefs, nil
	})
	return err
}

// seedPreferences starts a new fan from what the creator's audience likes,
// falling back to the neutral base categories.
func (s *MemoryService) seedPreferences(ctx context.Context, key models.PairKey, now time.Time) *models.FanPreferences {
	profiles, err := s.repo.CreatorPreferences(ctx, key.CreatorID, audiencePriorLimit)
	if err != nil {
		s.logger.Warnf(providers.TypeLearning, "Audience prior for creator %s unavailable: %v", key.CreatorID, err)
		profiles = nil
	}
	prior := s.engine.AudiencePrior(profiles, preference.MinEntries)
	return s.engine.Seed(key, prior, now)
}

func (s *MemoryService) calibrate(ctx context.Context, key models.PairKey) error {
	count, err := s.repo.InteractionCount(ctx, key)
	if err != nil {
		return err
	}

	_, err = updateDocument(ctx, s.repo, models.EntityPersonality, key, func(profile *models.PersonalityProfile) (*models.PersonalityProfile, error) {
		if profile == nil {
			profile = models.DefaultPersonalityProfile(key)
		}
		if !s.calibrator.ShouldCalibrate(profile, count) {
			return nil, nil
		}

		now := s.now()
		history, err := s.repo.History(ctx, key, now.Add(-calibrationWindow))
		if err != nil {
			return nil, err
		}
		next, err := s.calibrator.CalibratePersonality(profile, history, count, now)
		if errors.Is(err, models.ErrCalibrationFailed) {
			s.logger.Debugf(providers.TypeLearning, "Calibration of %s skipped: %v", key, err)
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("calibrate %s: %w", key, err)
		}
		return next, nil
	})
	return err
}
