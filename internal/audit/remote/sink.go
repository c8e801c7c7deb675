// Package remote delivers audit events to the append-only log store over the
// pinned HTTPS client.
package remote

import (
	"context"
	"errors"
	"net/http"

	"github.com/omniai-app/securekit/internal/model"
	"github.com/omniai-app/securekit/internal/securenet"
)

// TokenSource supplies the bearer credential for store writes. The security
// core transports whatever the auth subsystem hands it; it never originates
// tokens. It may return "" when no session exists yet.
type TokenSource func() string

// Sink posts one event per request to the store's append-by-id endpoint.
type Sink struct {
	client  *securenet.Client
	baseURL string
	token   TokenSource
}

// NewSink builds a Sink writing to baseURL (no trailing slash).
func NewSink(client *securenet.Client, baseURL string, token TokenSource) *Sink {
	return &Sink{client: client, baseURL: baseURL, token: token}
}

// Deliver writes e to the remote store. The store deduplicates by event id;
// a conflict response therefore counts as confirmed acceptance.
func (s *Sink) Deliver(ctx context.Context, e model.AuditEvent) error {
	err := s.client.PostJSON(ctx, s.baseURL+"/v1/events", e, nil,
		securenet.WithBearer(s.token()))
	if err == nil {
		return nil
	}
	var he *securenet.HTTPError
	if errors.As(err, &he) && he.Status == http.StatusConflict {
		// Already accepted on a previous attempt.
		return nil
	}
	return err
}
