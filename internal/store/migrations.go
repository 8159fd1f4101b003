package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"memoryd/internal/models"
)

// documentTables maps the document entity types to their tables.
var documentTables = map[models.EntityType]string{
	models.EntityPersonality:    "personality_profiles",
	models.EntityPreferences:    "fan_preferences",
	models.EntityEmotionalState: "emotional_states",
	models.EntityEngagement:     "engagement_metrics",
}

func documentTable(entity models.EntityType) (string, error) {
	table, ok := documentTables[entity]
	if !ok {
		return "", errors.Errorf("entity %q is not a document entity", entity)
	}
	return table, nil
}

func (s *Store) schema() []string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	float := "REAL"
	if s.driver == DriverPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
		float = "DOUBLE PRECISION"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS interactions (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			fan_id TEXT NOT NULL,
			creator_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			sender TEXT NOT NULL,
			sentiment TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			topics TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			amount %s NOT NULL DEFAULT 0,
			response_time %s NOT NULL DEFAULT 0,
			ts BIGINT NOT NULL
		)`, serial, float, float),
		`CREATE INDEX IF NOT EXISTS idx_interactions_pair ON interactions (creator_id, fan_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_ts ON interactions (ts)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			fan_id TEXT NOT NULL,
			creator_id TEXT NOT NULL,
			ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_pair ON audit_log (creator_id, fan_id, ts)`,
		`CREATE TABLE IF NOT EXISTS erasure_requests (
			id TEXT PRIMARY KEY,
			fan_id TEXT NOT NULL,
			creator_id TEXT NOT NULL,
			actor TEXT NOT NULL,
			status TEXT NOT NULL,
			requested_ts BIGINT NOT NULL,
			deadline_ts BIGINT NOT NULL,
			completed_ts BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_erasure_status ON erasure_requests (status, deadline_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_erasure_pair ON erasure_requests (creator_id, fan_id, requested_ts)`,
	}

	for _, entity := range models.DocumentEntityTypes {
		table := documentTables[entity]
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				fan_id TEXT NOT NULL,
				creator_id TEXT NOT NULL,
				body TEXT NOT NULL,
				version BIGINT NOT NULL,
				updated_ts BIGINT NOT NULL,
				PRIMARY KEY (creator_id, fan_id)
			)`, table),
		)
	}
	return stmts
}

// Migrate creates every table idempotently.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin migration")
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range s.schema() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to apply migration: %s", firstLine(stmt))
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit migration")
}

func firstLine(stmt string) string {
	for i, c := range stmt {
		if c == '\n' {
			return stmt[:i]
		}
	}
	return stmt
}
