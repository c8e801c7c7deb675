// Package audit buffers security-relevant events locally and drains them to a
// remote append-only store. Logging is fire-and-forget: no failure here ever
// propagates to the component that observed the event.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/omniai-app/securekit/internal/model"
)

// Sink delivers one event to the remote store. The store deduplicates by
// event id, so at-least-once delivery is sufficient.
type Sink interface {
	Deliver(ctx context.Context, e model.AuditEvent) error
}

// Config bounds the background delivery behavior.
type Config struct {
	FlushInterval   time.Duration // periodic flush cadence
	FlushThreshold  int           // pending count that triggers an early flush
	DeliveryTimeout time.Duration // per-attempt bound
}

// DefaultConfig matches the production cadence.
func DefaultConfig() Config {
	return Config{
		FlushInterval:   time.Minute,
		FlushThreshold:  50,
		DeliveryTimeout: 15 * time.Second,
	}
}

// Logger is the single point of truth for the tamper-evident trail. Log never
// blocks the caller and never returns an error; delivery happens on a
// background worker plus a periodic flush.
type Logger struct {
	mu      sync.Mutex
	pending []model.AuditEvent

	queue  Queue
	sink   Sink
	device model.DeviceInfo
	log    *zap.Logger
	cfg    Config

	submit chan model.AuditEvent
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Logger and restores any events left pending by a previous run.
func New(queue Queue, sink Sink, device model.DeviceInfo, log *zap.Logger, cfg Config) (*Logger, error) {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 50
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 15 * time.Second
	}
	l := &Logger{
		queue:  queue,
		sink:   sink,
		device: device,
		log:    log,
		cfg:    cfg,
		submit: make(chan model.AuditEvent, 256),
	}
	restored, err := queue.All(context.Background())
	if err != nil {
		return nil, err
	}
	l.pending = restored
	return l, nil
}

// Start launches the delivery worker and the periodic flush timer.
func (l *Logger) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	l.wg.Add(2)
	go l.deliveryLoop(ctx)
	go l.flushLoop(ctx)
}

// Stop halts background work. In-flight deliveries run to completion.
func (l *Logger) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// Log records one event: hash it if needed, append to the pending list,
// persist durably, then hand it to the background worker for immediate
// delivery. Durable persistence is attempted before the delivery attempt so a
// crash in between still leaves the event recoverable.
func (l *Logger) Log(e model.AuditEvent) {
	if e.ID == uuid.Nil {
		e.ID = uuid.Must(uuid.NewV4())
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Device == (model.DeviceInfo{}) {
		e.Device = l.device
	}
	if e.IntegrityHash == "" {
		e.IntegrityHash = e.ComputeIntegrityHash()
	}

	l.mu.Lock()
	l.pending = append(l.pending, e)
	over := len(l.pending) >= l.cfg.FlushThreshold
	l.mu.Unlock()

	if err := l.queue.Enqueue(context.Background(), e); err != nil {
		l.log.Warn("audit: enqueue failed", zap.String("event_id", e.ID.String()), zap.Error(err))
	}

	select {
	case l.submit <- e:
	default:
		// worker backlog full; the flush cycle will pick it up
	}

	if over {
		select {
		case l.submit <- model.AuditEvent{}: // sentinel: force a flush pass
		default:
		}
	}
}

// Pending returns a copy of the undelivered events (test and QA surface).
func (l *Logger) Pending() []model.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.AuditEvent(nil), l.pending...)
}

func (l *Logger) deliveryLoop(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-l.submit:
			if e.ID == uuid.Nil {
				l.Flush(ctx)
				continue
			}
			l.deliver(ctx, e)
		}
	}
}

func (l *Logger) flushLoop(ctx context.Context) {
	defer l.wg.Done()
	tick := time.NewTicker(l.cfg.FlushInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			l.Flush(ctx)
		}
	}
}

// Flush attempts delivery of every pending event independently; one event's
// failure does not block the others.
func (l *Logger) Flush(ctx context.Context) {
	for _, e := range l.Pending() {
		if ctx.Err() != nil {
			return
		}
		l.deliverWithBackoff(ctx, e)
	}
}

// deliver makes a single delivery attempt and confirms on success.
func (l *Logger) deliver(ctx context.Context, e model.AuditEvent) {
	if l.sink == nil {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, l.cfg.DeliveryTimeout)
	defer cancel()
	if err := l.sink.Deliver(dctx, e); err != nil {
		l.log.Debug("audit: delivery failed, left pending",
			zap.String("event_id", e.ID.String()), zap.Error(err))
		return
	}
	l.confirm(e)
}

// deliverWithBackoff retries a few times with exponential backoff during a
// flush cycle before leaving the event for the next one.
func (l *Logger) deliverWithBackoff(ctx context.Context, e model.AuditEvent) {
	if l.sink == nil {
		return
	}
	b := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, l.cfg.DeliveryTimeout)
		defer cancel()
		if err := l.sink.Deliver(dctx, e); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		l.log.Debug("audit: flush delivery failed, left pending",
			zap.String("event_id", e.ID.String()), zap.Error(err))
		return
	}
	l.confirm(e)
}

// confirm removes a delivered event from the pending list and durable queue.
func (l *Logger) confirm(e model.AuditEvent) {
	l.mu.Lock()
	for i := range l.pending {
		if l.pending[i].ID == e.ID {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	if err := l.queue.Remove(context.Background(), e.ID.String()); err != nil {
		l.log.Warn("audit: dequeue failed", zap.String("event_id", e.ID.String()), zap.Error(err))
	}
}
