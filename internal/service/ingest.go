// Package service holds the audit store ingest logic.
package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/omniai-app/securekit/internal/model"
	"github.com/omniai-app/securekit/internal/repository"
)

// Status is the per-event outcome of an ingest attempt.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusDuplicate Status = "duplicate"
	StatusRejected  Status = "rejected"
)

// Result pairs an event id with its ingest outcome.
type Result struct {
	ID     uuid.UUID `json:"id"`
	Status Status    `json:"status"`
	Reason string    `json:"reason,omitempty"` // set for rejected events
}

// IngestService accepts audit events from clients.
type IngestService interface {
	// Ingest validates and stores one event.
	Ingest(ctx context.Context, ev model.AuditEvent) (Result, error)
	// IngestBatch validates and stores events one by one; a rejected event
	// does not block the rest.
	IngestBatch(ctx context.Context, evs []model.AuditEvent) ([]Result, error)
}

type IngestServiceImpl struct {
	repo     repository.EventRepository
	maxBatch int
}

// NewIngestService constructs IngestService with a batch size limit.
func NewIngestService(repo repository.EventRepository, maxBatch int) *IngestServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 500
	}
	return &IngestServiceImpl{repo: repo, maxBatch: maxBatch}
}

// validate checks the closed enum sets and the tamper-evidence hash. A stored
// event is never modified, so anything that fails here is rejected outright.
func validate(ev *model.AuditEvent) string {
	if ev.ID == uuid.Nil {
		return "empty id"
	}
	if ev.Timestamp.IsZero() {
		return "empty timestamp"
	}
	if !ev.Type.Valid() {
		return fmt.Sprintf("unknown event type %q", ev.Type)
	}
	if !ev.Severity.Valid() {
		return fmt.Sprintf("unknown severity %q", ev.Severity)
	}
	if ev.Action == "" {
		return "empty action"
	}
	if !ev.VerifyIntegrity() {
		return "integrity hash mismatch"
	}
	return ""
}

// Ingest validates and stores one event. Validation failure yields a rejected
// Result, not an error; errors are reserved for storage failures.
func (s *IngestServiceImpl) Ingest(ctx context.Context, ev model.AuditEvent) (Result, error) {
	if reason := validate(&ev); reason != "" {
		return Result{ID: ev.ID, Status: StatusRejected, Reason: reason}, nil
	}
	inserted, err := s.repo.Insert(ctx, &ev)
	if err != nil {
		return Result{}, err
	}
	if !inserted {
		return Result{ID: ev.ID, Status: StatusDuplicate}, nil
	}
	return Result{ID: ev.ID, Status: StatusAccepted}, nil
}

// IngestBatch reports a per-event status. Valid events are stored in one
// transaction; invalid ones are skipped and marked rejected.
func (s *IngestServiceImpl) IngestBatch(ctx context.Context, evs []model.AuditEvent) ([]Result, error) {
	if len(evs) == 0 {
		return []Result{}, nil
	}
	if len(evs) > s.maxBatch {
		return nil, fmt.Errorf("validation: batch too large (%d > %d)", len(evs), s.maxBatch)
	}

	results := make([]Result, len(evs))
	valid := make([]model.AuditEvent, 0, len(evs))
	validIdx := make([]int, 0, len(evs))
	for i := range evs {
		if reason := validate(&evs[i]); reason != "" {
			results[i] = Result{ID: evs[i].ID, Status: StatusRejected, Reason: reason}
			continue
		}
		valid = append(valid, evs[i])
		validIdx = append(validIdx, i)
	}

	if len(valid) > 0 {
		inserted, err := s.repo.InsertBatch(ctx, valid)
		if err != nil {
			return nil, err
		}
		for j, idx := range validIdx {
			st := StatusDuplicate
			if inserted[j] {
				st = StatusAccepted
			}
			results[idx] = Result{ID: valid[j].ID, Status: st}
		}
	}
	return results, nil
}
