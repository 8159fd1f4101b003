package store

import (
	"context"
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"memoryd/internal/models"
)

const interactionColumns = `seq, id, fan_id, creator_id, kind, sender, sentiment, content, topics, metadata, ts`

// AppendInteraction inserts the record, sets its Seq and returns the previous
// sequence number of the pair (0 if this is the first record).
func (s *Store) AppendInteraction(ctx context.Context, in *models.Interaction) (int64, error) {
	topics, err := json.Marshal(in.Topics)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal topics")
	}
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal metadata")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if lock := s.pairLockStatement(); lock != "" {
		if _, err := tx.ExecContext(ctx, lock, in.CreatorID+":"+in.FanID); err != nil {
			return 0, errors.Wrapf(err, "failed to lock %s", in.Key())
		}
	}

	var prev int64
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(seq), 0) FROM interactions WHERE creator_id = ? AND fan_id = ?`),
		in.CreatorID, in.FanID,
	).Scan(&prev)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read previous sequence")
	}

	err = tx.QueryRowContext(ctx, s.rebind(`
		INSERT INTO interactions (id, fan_id, creator_id, kind, sender, sentiment, content, topics, metadata, amount, response_time, ts)
		VALUES (`+placeholders(12)+`)
		RETURNING seq`),
		in.ID, in.FanID, in.CreatorID, string(in.Kind), string(in.Sender), string(in.Sentiment),
		in.Content, string(topics), string(metadata), in.Metadata.Amount, in.Metadata.ResponseTimeSeconds,
		toMillis(in.Timestamp),
	).Scan(&in.Seq)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to insert interaction %s", in.ID)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit interaction")
	}
	return prev, nil
}

// pairLockStatement returns the statement that serializes appends of one pair
// until the transaction ends, so sequence numbers commit in order. SQLite runs
// on a single connection and needs none.
func (s *Store) pairLockStatement() string {
	if s.driver != DriverPostgres {
		return ""
	}
	return `SELECT pg_advisory_xact_lock(hashtext($1))`
}

// RecentInteractions returns the newest limit records in chronological order.
func (s *Store) RecentInteractions(ctx context.Context, key models.PairKey, limit int) ([]*models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+interactionColumns+` FROM (
			SELECT `+interactionColumns+` FROM interactions
			WHERE creator_id = ? AND fan_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) AS recent ORDER BY seq ASC`),
		key.CreatorID, key.FanID, limit,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query recent interactions for %s", key)
	}
	return scanInteractions(rows)
}

// RecentInteractionsBulk returns the newest limit records of every pair with
// one query per chunk of pairs.
func (s *Store) RecentInteractionsBulk(ctx context.Context, keys []models.PairKey, limit int) (map[models.PairKey][]*models.Interaction, error) {
	result := make(map[models.PairKey][]*models.Interaction, len(keys))
	for _, chunk := range chunkKeys(dedupeKeys(keys), bulkChunkSize) {
		values, args := pairValues(chunk)
		args = append(args, limit)
		rows, err := s.db.QueryContext(ctx, s.rebind(`
			SELECT `+interactionColumns+` FROM (
				SELECT `+interactionColumns+`,
					ROW_NUMBER() OVER (PARTITION BY creator_id, fan_id ORDER BY seq DESC) AS rn
				FROM interactions
				WHERE (creator_id, fan_id) IN (VALUES `+values+`)
			) AS windowed
			WHERE rn <= ?
			ORDER BY creator_id, fan_id, seq ASC`),
			args...,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to query recent interactions in bulk")
		}
		list, err := scanInteractions(rows)
		if err != nil {
			return nil, err
		}
		for _, in := range list {
			k := in.Key()
			result[k] = append(result[k], in)
		}
	}
	return result, nil
}

// InteractionsSince returns records at or after since in chronological order, newest limit kept.
func (s *Store) InteractionsSince(ctx context.Context, key models.PairKey, since time.Time, limit int) ([]*models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+interactionColumns+` FROM (
			SELECT `+interactionColumns+` FROM interactions
			WHERE creator_id = ? AND fan_id = ? AND ts >= ?
			ORDER BY seq DESC
			LIMIT ?
		) AS window_since ORDER BY seq ASC`),
		key.CreatorID, key.FanID, toMillis(since), limit,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query interactions since %s for %s", since, key)
	}
	return scanInteractions(rows)
}

// AllInteractions returns the full history of a pair, used by exports.
func (s *Store) AllInteractions(ctx context.Context, key models.PairKey) ([]*models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+interactionColumns+` FROM interactions
		WHERE creator_id = ? AND fan_id = ?
		ORDER BY seq ASC`),
		key.CreatorID, key.FanID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query interactions for %s", key)
	}
	return scanInteractions(rows)
}

func (s *Store) CountInteractions(ctx context.Context, key models.PairKey) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM interactions WHERE creator_id = ? AND fan_id = ?`),
		key.CreatorID, key.FanID,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count interactions for %s", key)
	}
	return n, nil
}

// CleanupOlderThan removes interaction records older than cutoff.
func (s *Store) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM interactions WHERE ts < ?`), toMillis(cutoff))
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired interactions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read affected rows")
	}
	return n, nil
}

func scanInteractions(rows *sql.Rows) ([]*models.Interaction, error) {
	defer rows.Close()

	var list []*models.Interaction
	for rows.Next() {
		var (
			in                 models.Interaction
			kind, sender, sent string
			topics, metadata   string
			ts                 int64
		)
		if err := rows.Scan(&in.Seq, &in.ID, &in.FanID, &in.CreatorID, &kind, &sender, &sent,
			&in.Content, &topics, &metadata, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan interaction")
		}
		in.Kind = models.InteractionKind(kind)
		in.Sender = models.Sender(sender)
		in.Sentiment = models.Sentiment(sent)
		in.Timestamp = fromMillis(ts)
		if err := json.Unmarshal([]byte(topics), &in.Topics); err != nil {
			return nil, errors.Wrapf(err, "failed to decode topics of %s", in.ID)
		}
		if err := json.Unmarshal([]byte(metadata), &in.Metadata); err != nil {
			return nil, errors.Wrapf(err, "failed to decode metadata of %s", in.ID)
		}
		list = append(list, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate interactions")
	}
	return list, nil
}
