package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"memoryd/internal/models"
	"memoryd/internal/providers"
	"memoryd/internal/store"
)

func (r *MemoryRepository) Save(ctx context.Context, entity models.EntityType, key models.PairKey, value any) error {
	if entity == models.EntityMessages {
		in, ok := value.(*models.Interaction)
		if !ok {
			return fmt.Errorf("%w: messages accept *models.Interaction, got %T", models.ErrInvalidData, value)
		}
		return r.AppendInteraction(ctx, in)
	}

	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidData, err)
	}

	var version int64
	err = r.storeWrite(ctx, "save_"+string(entity), func(ctx context.Context) error {
		var err error
		version, err = r.store.SaveDocument(ctx, entity, key, body)
		return err
	})
	if err != nil {
		return err
	}

	r.writeThrough(context.WithoutCancel(ctx), CacheKey(entity, key), &Entry{Version: version, Data: body}, r.ttl(entity))
	return nil
}

func (r *MemoryRepository) SaveIfVersion(ctx context.Context, entity models.EntityType, key models.PairKey, value any, expected int64) error {
	if entity == models.EntityMessages {
		return fmt.Errorf("%w: messages are append-only", models.ErrInvalidData)
	}
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidData, err)
	}

	cacheKey := CacheKey(entity, key)
	var version int64
	err = r.storeWrite(ctx, "save_"+string(entity), func(ctx context.Context) error {
		var err error
		version, err = r.store.SaveDocumentIf(ctx, entity, key, body, expected)
		return err
	})
	if errors.Is(err, models.ErrVersionConflict) {
		// The cached copy may be the stale one the caller read.
		r.invalidateKeys(context.WithoutCancel(ctx), cacheKey)
		return err
	}
	if err != nil {
		return err
	}

	r.writeThrough(context.WithoutCancel(ctx), cacheKey, &Entry{Version: version, Data: body}, r.ttl(entity))
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, entity models.EntityType, key models.PairKey, dest any) error {
	if entity == models.EntityMessages {
		list, ok := dest.(*[]*models.Interaction)
		if !ok {
			return fmt.Errorf("%w: messages decode into *[]*models.Interaction, got %T", models.ErrInvalidData, dest)
		}
		window, err := r.RecentMessages(ctx, key, r.window())
		if err != nil {
			return err
		}
		*list = window
		return nil
	}

	entry, err := r.getDocument(ctx, entity, key)
	if err != nil {
		return err
	}
	if err := entry.Decode(dest); err != nil {
		return fmt.Errorf("failed to decode %s for %s: %w", entity, key, err)
	}
	return nil
}

func (r *MemoryRepository) GetVersioned(ctx context.Context, entity models.EntityType, key models.PairKey, dest any) (int64, error) {
	if entity == models.EntityMessages {
		return 0, fmt.Errorf("%w: messages carry no document version", models.ErrInvalidData)
	}
	entry, err := r.getDocument(ctx, entity, key)
	if err != nil {
		return 0, err
	}
	if err := entry.Decode(dest); err != nil {
		return 0, fmt.Errorf("failed to decode %s for %s: %w", entity, key, err)
	}
	return entry.Version, nil
}

func (r *MemoryRepository) getDocument(ctx context.Context, entity models.EntityType, key models.PairKey) (*Entry, error) {
	cacheKey := CacheKey(entity, key)
	if entry := r.cacheLookup(ctx, cacheKey); entry != nil {
		return entry, nil
	}

	gen := r.generation(cacheKey)
	var entry *Entry
	err := r.storeRead(ctx, "get_"+string(entity), func(ctx context.Context) error {
		doc, err := r.store.GetDocument(ctx, entity, key)
		if err != nil {
			return err
		}
		entry = &Entry{Version: doc.Version, Data: doc.Body}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.fill(ctx, cacheKey, gen, entry, r.ttl(entity))
	return entry, nil
}

// BulkGet serves what it can from the cache and reads every miss in one batched store call.
// Pairs without the entity are absent from the result.
func (r *MemoryRepository) BulkGet(ctx context.Context, entity models.EntityType, keys []models.PairKey) (map[models.PairKey]*Entry, error) {
	result := make(map[models.PairKey]*Entry, len(keys))
	gens := make(map[models.PairKey]uint64)
	var misses []models.PairKey

	for _, key := range keys {
		if _, seen := result[key]; seen {
			continue
		}
		if _, seen := gens[key]; seen {
			continue
		}
		cacheKey := CacheKey(entity, key)
		if entry := r.cacheLookup(ctx, cacheKey); entry != nil {
			result[key] = entry
			continue
		}
		gens[key] = r.generation(cacheKey)
		misses = append(misses, key)
	}
	if len(misses) == 0 {
		return result, nil
	}

	fetched := make(map[models.PairKey]*Entry, len(misses))
	err := r.storeRead(ctx, "bulk_get_"+string(entity), func(ctx context.Context) error {
		if entity == models.EntityMessages {
			windows, err := r.store.RecentInteractionsBulk(ctx, misses, r.window())
			if err != nil {
				return err
			}
			for key, list := range windows {
				entry, err := windowEntry(list)
				if err != nil {
					return err
				}
				fetched[key] = entry
			}
			return nil
		}
		docs, err := r.store.GetDocuments(ctx, entity, misses)
		if err != nil {
			return err
		}
		for key, doc := range docs {
			fetched[key] = &Entry{Version: doc.Version, Data: doc.Body}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ttl := r.ttl(entity)
	for key, entry := range fetched {
		result[key] = entry
		r.fill(ctx, CacheKey(entity, key), gens[key], entry, ttl)
	}
	return result, nil
}

// Delete removes every entity of the pair from the store and then from the cache.
func (r *MemoryRepository) Delete(ctx context.Context, key models.PairKey) error {
	err := r.storeWrite(ctx, "delete_pair", func(ctx context.Context) error {
		return r.store.DeletePair(ctx, key)
	})
	if err != nil {
		return err
	}
	r.invalidateKeys(context.WithoutCancel(ctx), pairKeys(key)...)
	return nil
}

// CleanupOlderThan drops interaction records older than cutoff. Cached
// windows age out with the short message TTL.
func (r *MemoryRepository) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.storeWrite(ctx, "cleanup", func(ctx context.Context) error {
		var err error
		n, err = r.store.CleanupOlderThan(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.logger.Infof(providers.TypeStore, "Retention removed %d interactions older than %s", n, cutoff.Format(time.RFC3339))
	return n, nil
}

func (r *MemoryRepository) CreatorEngagement(ctx context.Context, creatorID string) ([]*models.EngagementMetrics, error) {
	var list []*models.EngagementMetrics
	err := r.creatorDocuments(ctx, models.EntityEngagement, creatorID, 0, func(doc *store.Document) error {
		var m models.EngagementMetrics
		if err := json.Unmarshal(doc.Body, &m); err != nil {
			return err
		}
		list = append(list, &m)
		return nil
	})
	return list, err
}

// CreatorPreferences reads the most recently updated preference profiles of a creator's fans.
func (r *MemoryRepository) CreatorPreferences(ctx context.Context, creatorID string, limit int) ([]*models.FanPreferences, error) {
	var list []*models.FanPreferences
	err := r.creatorDocuments(ctx, models.EntityPreferences, creatorID, limit, func(doc *store.Document) error {
		var p models.FanPreferences
		if err := json.Unmarshal(doc.Body, &p); err != nil {
			return err
		}
		list = append(list, &p)
		return nil
	})
	return list, err
}

func (r *MemoryRepository) creatorDocuments(ctx context.Context, entity models.EntityType, creatorID string, limit int, decode func(doc *store.Document) error) error {
	return r.storeRead(ctx, "creator_"+string(entity), func(ctx context.Context) error {
		docs, err := r.store.CreatorDocuments(ctx, entity, creatorID, limit)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := decode(doc); err != nil {
				r.logger.Warnf(providers.TypeStore, "Skipping undecodable %s of %s: %s", entity, doc.Key, err)
			}
		}
		return nil
	})
}
