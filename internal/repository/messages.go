package repository

import (
	"context"
	"time"

	json "github.com/goccy/go-json"

	"memoryd/internal/models"
	"memoryd/internal/providers"
)

func (r *MemoryRepository) window() int {
	if r.conf.Memory.RecentWindow > 0 {
		return r.conf.Memory.RecentWindow
	}
	return 50
}

func (r *MemoryRepository) historyLimit() int {
	if r.conf.Memory.HistoryLimit > 0 {
		return r.conf.Memory.HistoryLimit
	}
	return 500
}

func windowEntry(list []*models.Interaction) (*Entry, error) {
	data, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	var version int64
	if len(list) > 0 {
		version = list[len(list)-1].Seq
	}
	return &Entry{Version: version, Data: data}, nil
}

// AppendInteraction persists the record and extends the cached recent window
// when the cache already holds the window ending at the previous record.
func (r *MemoryRepository) AppendInteraction(ctx context.Context, in *models.Interaction) error {
	var prevSeq int64
	err := r.storeWrite(ctx, "append_interaction", func(ctx context.Context) error {
		var err error
		prevSeq, err = r.store.AppendInteraction(ctx, in)
		return err
	})
	if err != nil {
		return err
	}

	r.extendWindow(context.WithoutCancel(ctx), in, prevSeq)
	return nil
}

func (r *MemoryRepository) extendWindow(ctx context.Context, in *models.Interaction, prevSeq int64) {
	key := CacheKey(models.EntityMessages, in.Key())
	s := r.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++

	if entry := r.cacheLookup(ctx, key); entry != nil && entry.Version == prevSeq {
		var list []*models.Interaction
		if err := entry.Decode(&list); err == nil {
			list = append(list, in)
			if over := len(list) - r.window(); over > 0 {
				list = list[over:]
			}
			if next, err := windowEntry(list); err == nil && r.cacheSet(ctx, key, next, r.ttl(models.EntityMessages)) {
				return
			}
		}
	}
	r.invalidateLocked(ctx, key)
}

// RecentMessages returns up to limit newest records in chronological order,
// or models.ErrNotFound when the pair has no history.
func (r *MemoryRepository) RecentMessages(ctx context.Context, key models.PairKey, limit int) ([]*models.Interaction, error) {
	if limit <= 0 || limit > r.window() {
		limit = r.window()
	}

	cacheKey := CacheKey(models.EntityMessages, key)
	if entry := r.cacheLookup(ctx, cacheKey); entry != nil {
		var list []*models.Interaction
		if err := entry.Decode(&list); err == nil {
			return tail(list, limit)
		}
	}

	gen := r.generation(cacheKey)
	var list []*models.Interaction
	err := r.storeRead(ctx, "recent_messages", func(ctx context.Context) error {
		var err error
		list, err = r.store.RecentInteractions(ctx, key, r.window())
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, models.ErrNotFound
	}

	if entry, err := windowEntry(list); err == nil {
		r.fill(ctx, cacheKey, gen, entry, r.ttl(models.EntityMessages))
	} else {
		r.logger.Warnf(providers.TypeCache, "Failed to encode message window of %s: %s", key, err)
	}
	return tail(list, limit)
}

func tail(list []*models.Interaction, limit int) ([]*models.Interaction, error) {
	if len(list) == 0 {
		return nil, models.ErrNotFound
	}
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list, nil
}

// History reads the store directly: windows beyond the recent cache are only needed by background analysis.
func (r *MemoryRepository) History(ctx context.Context, key models.PairKey, since time.Time) ([]*models.Interaction, error) {
	var list []*models.Interaction
	err := r.storeRead(ctx, "history", func(ctx context.Context) error {
		var err error
		list, err = r.store.InteractionsSince(ctx, key, since, r.historyLimit())
		return err
	})
	return list, err
}

func (r *MemoryRepository) AllInteractions(ctx context.Context, key models.PairKey) ([]*models.Interaction, error) {
	var list []*models.Interaction
	err := r.storeRead(ctx, "all_interactions", func(ctx context.Context) error {
		var err error
		list, err = r.store.AllInteractions(ctx, key)
		return err
	})
	return list, err
}

func (r *MemoryRepository) InteractionCount(ctx context.Context, key models.PairKey) (int, error) {
	var n int
	err := r.storeRead(ctx, "count_interactions", func(ctx context.Context) error {
		var err error
		n, err = r.store.CountInteractions(ctx, key)
		return err
	})
	return n, err
}
