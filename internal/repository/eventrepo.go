// Package repository defines storage interfaces for the audit store server.
package repository

import (
	"context"

	"github.com/omniai-app/securekit/internal/model"
)

// EventRepository persists audit events in an append-only, id-deduplicated
// table.
type EventRepository interface {
	// Insert appends one event. Returns false when an event with the same id
	// already exists; the stored row is never modified.
	Insert(ctx context.Context, ev *model.AuditEvent) (bool, error)

	// InsertBatch appends events in one transaction and reports, per event,
	// whether it was newly inserted.
	InsertBatch(ctx context.Context, evs []model.AuditEvent) ([]bool, error)
}
