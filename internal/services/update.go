package services

import (
	"context"
	"errors"
	"fmt"

	"memoryd/internal/models"
	"memoryd/internal/repository"
)

const maxUpdateAttempts = 5

// updateDocument runs a read-modify-write of one pair document. mutate gets
// nil when the pair has none yet and returns the value to save, or nil to
// leave the document alone. A write landing between the read and the save
// makes the save fail with models.ErrVersionConflict, and mutate runs again
// on a fresh read.
func updateDocument[T any](ctx context.Context, repo repository.MemoryRepositoryInterface, entity models.EntityType, key models.PairKey, mutate func(current *T) (*T, error)) (*T, error) {
	for attempt := 1; ; attempt++ {
		current := new(T)
		version, err := repo.GetVersioned(ctx, entity, key, current)
		switch {
		case errors.Is(err, models.ErrNotFound):
			current, version = nil, 0
		case err != nil:
			return nil, err
		}

		next, err := mutate(current)
		if err != nil || next == nil {
			return next, err
		}
		err = repo.SaveIfVersion(ctx, entity, key, next, version)
		switch {
		case err == nil:
			return next, nil
		case !errors.Is(err, models.ErrVersionConflict):
			return nil, err
		case attempt >= maxUpdateAttempts:
			return nil, fmt.Errorf("update %s of %s after %d attempts: %w", entity, key, attempt, err)
		}
	}
}
