// Package httpapi exposes the audit store HTTP handlers.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/omniai-app/securekit/internal/limiter"
	"github.com/omniai-app/securekit/internal/model"
	"github.com/omniai-app/securekit/internal/service"
)

// maxBodyBytes caps request bodies; events are small, batches bounded.
const maxBodyBytes = 1 << 20

// Server wires the ingest service into HTTP handlers.
type Server struct {
	ingest service.IngestService
	lim    limiter.Limiter
	log    *zap.Logger
}

// New constructs the handler set.
func New(ingest service.IngestService, lim limiter.Limiter, log *zap.Logger) *Server {
	return &Server{ingest: ingest, lim: lim, log: log}
}

// Handler assembles the full middleware chain and routes.
func (s *Server) Handler(signKey []byte) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	authed := Auth(signKey)
	mux.Handle("POST /v1/events", authed(http.HandlerFunc(s.handleIngest)))
	mux.Handle("POST /v1/events/batch", authed(http.HandlerFunc(s.handleIngestBatch)))

	var h http.Handler = mux
	h = Logging(s.log)(h)
	h = Recover(s.log)(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleIngest accepts one event. 202 when stored, 409 when the id was seen
// before, 422 when validation rejects it.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}

	var ev model.AuditEvent
	if err := decodeBody(w, r, &ev); err != nil {
		return
	}

	res, err := s.ingest.Ingest(r.Context(), ev)
	if err != nil {
		s.log.Error("ingest", zap.Error(err))
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, statusCode(res.Status), res)
}

// handleIngestBatch accepts up to the service batch limit and reports a
// per-event outcome. The response is 200 whenever the batch was processed.
func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}

	var evs []model.AuditEvent
	if err := decodeBody(w, r, &evs); err != nil {
		return
	}

	results, err := s.ingest.IngestBatch(r.Context(), evs)
	if err != nil {
		s.log.Error("ingest batch", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request) bool {
	caller, ok := CallerIDFromCtx(r.Context())
	if !ok {
		caller = r.RemoteAddr
	}
	ok, retry, err := s.lim.Allow(r.Context(), caller)
	if err != nil {
		s.log.Error("limiter", zap.Error(err))
		return true
	}
	if !ok {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retry.Round(time.Second).Seconds())))
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return false
	}
	return true
}

func statusCode(st service.Status) int {
	switch st {
	case service.StatusAccepted:
		return http.StatusAccepted
	case service.StatusDuplicate:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
