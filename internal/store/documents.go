package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"memoryd/internal/models"
)

// SaveDocument upserts the entity body of a pair and returns its new version.
// Versions strictly increase per pair so stale cache fills can be detected.
func (s *Store) SaveDocument(ctx context.Context, entity models.EntityType, key models.PairKey, body []byte) (int64, error) {
	table, err := documentTable(entity)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var version int64
	err = s.db.QueryRowContext(ctx, s.rebind(fmt.Sprintf(`
		INSERT INTO %[1]s (fan_id, creator_id, body, version, updated_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (creator_id, fan_id) DO UPDATE SET
			body = excluded.body,
			updated_ts = excluded.updated_ts,
			version = CASE WHEN excluded.version > %[1]s.version THEN excluded.version ELSE %[1]s.version + 1 END
		RETURNING version`, table)),
		key.FanID, key.CreatorID, string(body), now.UnixNano(), toMillis(now),
	).Scan(&version)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to save %s for %s", entity, key)
	}
	return version, nil
}

// SaveDocumentIf saves only while the stored version equals expected; an
// expected version of zero requires the pair to have no such document yet.
// A lost race yields models.ErrVersionConflict.
func (s *Store) SaveDocumentIf(ctx context.Context, entity models.EntityType, key models.PairKey, body []byte, expected int64) (int64, error) {
	table, err := documentTable(entity)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var row *sql.Row
	if expected == 0 {
		row = s.db.QueryRowContext(ctx, s.rebind(`
			INSERT INTO `+table+` (fan_id, creator_id, body, version, updated_ts)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (creator_id, fan_id) DO NOTHING
			RETURNING version`),
			key.FanID, key.CreatorID, string(body), now.UnixNano(), toMillis(now),
		)
	} else {
		row = s.db.QueryRowContext(ctx, s.rebind(`
			UPDATE `+table+` SET
				body = ?,
				updated_ts = ?,
				version = CASE WHEN ? > version THEN ? ELSE version + 1 END
			WHERE creator_id = ? AND fan_id = ? AND version = ?
			RETURNING version`),
			string(body), toMillis(now), now.UnixNano(), now.UnixNano(), key.CreatorID, key.FanID, expected,
		)
	}

	var version int64
	err = row.Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(models.ErrVersionConflict, "%s of %s is no longer at version %d", entity, key, expected)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to save %s for %s", entity, key)
	}
	return version, nil
}

// GetDocument returns models.ErrNotFound when the pair has no such entity.
func (s *Store) GetDocument(ctx context.Context, entity models.EntityType, key models.PairKey) (*Document, error) {
	table, err := documentTable(entity)
	if err != nil {
		return nil, err
	}

	doc := &Document{Key: key}
	var (
		body    string
		updated int64
	)
	err = s.db.QueryRowContext(ctx,
		s.rebind(`SELECT body, version, updated_ts FROM `+table+` WHERE creator_id = ? AND fan_id = ?`),
		key.CreatorID, key.FanID,
	).Scan(&body, &doc.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s for %s", entity, key)
	}
	doc.Body = []byte(body)
	doc.UpdatedAt = fromMillis(updated)
	return doc, nil
}

// GetDocuments reads many pairs in chunked single round-trips. Missing pairs are absent from the result.
func (s *Store) GetDocuments(ctx context.Context, entity models.EntityType, keys []models.PairKey) (map[models.PairKey]*Document, error) {
	table, err := documentTable(entity)
	if err != nil {
		return nil, err
	}

	result := make(map[models.PairKey]*Document, len(keys))
	for _, chunk := range chunkKeys(dedupeKeys(keys), bulkChunkSize) {
		values, args := pairValues(chunk)
		rows, err := s.db.QueryContext(ctx, s.rebind(`
			SELECT fan_id, creator_id, body, version, updated_ts FROM `+table+`
			WHERE (creator_id, fan_id) IN (VALUES `+values+`)`),
			args...,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to bulk get %s", entity)
		}
		docs, err := scanDocuments(rows)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			result[d.Key] = d
		}
	}
	return result, nil
}

// CreatorDocuments returns documents of one entity type owned by a creator,
// most recently updated first. A limit of zero returns all of them.
func (s *Store) CreatorDocuments(ctx context.Context, entity models.EntityType, creatorID string, limit int) ([]*Document, error) {
	table, err := documentTable(entity)
	if err != nil {
		return nil, err
	}
	query := `SELECT fan_id, creator_id, body, version, updated_ts FROM ` + table + ` WHERE creator_id = ? ORDER BY updated_ts DESC`
	args := []any{creatorID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s of creator %s", entity, creatorID)
	}
	return scanDocuments(rows)
}

// DeletePair removes every entity of the pair in one transaction.
func (s *Store) DeletePair(ctx context.Context, key models.PairKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	tables := []string{"interactions"}
	for _, entity := range models.DocumentEntityTypes {
		tables = append(tables, documentTables[entity])
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx,
			s.rebind(`DELETE FROM `+table+` WHERE creator_id = ? AND fan_id = ?`),
			key.CreatorID, key.FanID,
		); err != nil {
			return errors.Wrapf(err, "failed to delete %s for %s", table, key)
		}
	}
	return errors.Wrapf(tx.Commit(), "failed to commit erasure of %s", key)
}

func scanDocuments(rows *sql.Rows) ([]*Document, error) {
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var (
			d       Document
			body    string
			updated int64
		)
		if err := rows.Scan(&d.Key.FanID, &d.Key.CreatorID, &body, &d.Version, &updated); err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		d.Body = []byte(body)
		d.UpdatedAt = fromMillis(updated)
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate documents")
	}
	return docs, nil
}
