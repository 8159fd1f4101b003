package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"memoryd/internal/models"
)

func (s *Store) InsertAudit(ctx context.Context, rec *models.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO audit_log (id, actor, action, fan_id, creator_id, ts) VALUES (`+placeholders(6)+`)`),
		rec.ID, rec.Actor, rec.Action, rec.FanID, rec.CreatorID, toMillis(rec.Timestamp),
	)
	return errors.Wrapf(err, "failed to insert audit record %s", rec.ID)
}

func (s *Store) ListAudit(ctx context.Context, key models.PairKey) ([]*models.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, actor, action, fan_id, creator_id, ts FROM audit_log
		WHERE creator_id = ? AND fan_id = ?
		ORDER BY ts ASC, id ASC`),
		key.CreatorID, key.FanID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list audit records for %s", key)
	}
	defer rows.Close()

	var list []*models.AuditRecord
	for rows.Next() {
		var (
			rec models.AuditRecord
			ts  int64
		)
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.Action, &rec.FanID, &rec.CreatorID, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit record")
		}
		rec.Timestamp = fromMillis(ts)
		list = append(list, &rec)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate audit records")
}

func (s *Store) CreateErasureRequest(ctx context.Context, req *models.ErasureRequest) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO erasure_requests (id, fan_id, creator_id, actor, status, requested_ts, deadline_ts)
		VALUES (`+placeholders(7)+`)`),
		req.ID, req.FanID, req.CreatorID, req.Actor, string(req.Status),
		toMillis(req.RequestedAt), toMillis(req.Deadline),
	)
	return errors.Wrapf(err, "failed to create erasure request %s", req.ID)
}

func (s *Store) CompleteErasureRequest(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE erasure_requests SET status = ?, completed_ts = ? WHERE id = ?`),
		string(models.ErasureCompleted), toMillis(at), id,
	)
	return errors.Wrapf(err, "failed to complete erasure request %s", id)
}

// PendingErasureRequests lists requests not yet completed, oldest deadline first.
func (s *Store) PendingErasureRequests(ctx context.Context) ([]*models.ErasureRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, fan_id, creator_id, actor, status, requested_ts, deadline_ts, completed_ts
		FROM erasure_requests WHERE status = ?
		ORDER BY deadline_ts ASC`),
		string(models.ErasurePending),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending erasure requests")
	}
	return scanErasureRequests(rows)
}

// LatestErasureRequest returns models.ErrNotFound when the pair was never erased.
func (s *Store) LatestErasureRequest(ctx context.Context, key models.PairKey) (*models.ErasureRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, fan_id, creator_id, actor, status, requested_ts, deadline_ts, completed_ts
		FROM erasure_requests WHERE creator_id = ? AND fan_id = ?
		ORDER BY requested_ts DESC LIMIT 1`),
		key.CreatorID, key.FanID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get erasure request for %s", key)
	}
	list, err := scanErasureRequests(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, models.ErrNotFound
	}
	return list[0], nil
}

func scanErasureRequests(rows *sql.Rows) ([]*models.ErasureRequest, error) {
	defer rows.Close()

	var list []*models.ErasureRequest
	for rows.Next() {
		var (
			req                           models.ErasureRequest
			status                        string
			requested, deadline, complete int64
		)
		if err := rows.Scan(&req.ID, &req.FanID, &req.CreatorID, &req.Actor, &status,
			&requested, &deadline, &complete); err != nil {
			return nil, errors.Wrap(err, "failed to scan erasure request")
		}
		req.Status = models.ErasureStatus(status)
		req.RequestedAt = fromMillis(requested)
		req.Deadline = fromMillis(deadline)
		if complete > 0 {
			t := fromMillis(complete)
			req.CompletedAt = &t
		}
		list = append(list, &req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate erasure requests")
	}
	return list, nil
}
