package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/omniai-app/securekit/internal/model"
)

// EventRepo implements EventRepository using PostgreSQL.
type EventRepo struct{ db *DB }

// NewEventRepo constructs an event repository.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

const insertEvent = `
INSERT INTO audit_events (id, event_type, severity, user_id, session_id, action, detail, device, integrity_hash, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`

// Insert appends one event. The stored row is immutable; re-sending the same
// id is a no-op.
func (r *EventRepo) Insert(ctx context.Context, ev *model.AuditEvent) (bool, error) {
	detail, device, err := encodeJSONFields(ev)
	if err != nil {
		return false, err
	}
	tag, err := r.db.Pool.Exec(ctx, insertEvent,
		ev.ID, string(ev.Type), string(ev.Severity), ev.UserID, ev.SessionID, ev.Action, detail, device, ev.IntegrityHash, ev.Timestamp)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertBatch appends events in a single transaction.
func (r *EventRepo) InsertBatch(ctx context.Context, evs []model.AuditEvent) (inserted []bool, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	inserted = make([]bool, 0, len(evs))
	for i := range evs {
		ev := &evs[i]
		var detail, device []byte
		if detail, device, err = encodeJSONFields(ev); err != nil {
			return nil, fmt.Errorf("event[%d]: %w", i, err)
		}
		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, insertEvent,
			ev.ID, string(ev.Type), string(ev.Severity), ev.UserID, ev.SessionID, ev.Action, detail, device, ev.IntegrityHash, ev.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("event[%d]: %w", i, err)
		}
		inserted = append(inserted, tag.RowsAffected() == 1)
	}
	return inserted, nil
}

func encodeJSONFields(ev *model.AuditEvent) (detail, device []byte, err error) {
	if device, err = json.Marshal(ev.Device); err != nil {
		return nil, nil, fmt.Errorf("marshal device info: %w", err)
	}
	if ev.Detail != nil {
		if detail, err = json.Marshal(ev.Detail); err != nil {
			return nil, nil, fmt.Errorf("marshal detail: %w", err)
		}
	}
	return detail, device, nil
}
