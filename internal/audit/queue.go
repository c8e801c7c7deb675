package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/omniai-app/securekit/internal/model"
)

// Queue is the durable local buffer for audit events awaiting remote delivery.
// Events survive process termination; removal happens only after confirmed
// remote acceptance.
type Queue interface {
	Enqueue(ctx context.Context, e model.AuditEvent) error
	Remove(ctx context.Context, id string) error
	All(ctx context.Context) ([]model.AuditEvent, error)
	Close() error
}

// SQLiteQueue persists pending events in a local SQLite database.
type SQLiteQueue struct {
	db *sql.DB
}

// OpenQueue opens (or creates) the queue database at path.
func OpenQueue(path string) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open queue: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit: pragma %q: %w", p, err)
		}
	}
	const schema = `
CREATE TABLE IF NOT EXISTS pending_events (
	id         TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init schema: %w", err)
	}
	return &SQLiteQueue{db: db}, nil
}

// Enqueue inserts the event; re-enqueueing the same id is a no-op.
func (q *SQLiteQueue) Enqueue(ctx context.Context, e model.AuditEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	const ins = `INSERT INTO pending_events (id, payload, created_at) VALUES (?, ?, ?)
ON CONFLICT (id) DO NOTHING`
	_, err = q.db.ExecContext(ctx, ins, e.ID.String(), payload, time.Now().Unix())
	return err
}

// Remove deletes the event after confirmed remote acceptance.
func (q *SQLiteQueue) Remove(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM pending_events WHERE id = ?`, id)
	return err
}

// All returns every pending event in enqueue order.
func (q *SQLiteQueue) All(ctx context.Context) ([]model.AuditEvent, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT payload FROM pending_events ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e model.AuditEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			// A corrupt row must not wedge the queue; skip it.
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *SQLiteQueue) Close() error { return q.db.Close() }
