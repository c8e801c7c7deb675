// Package limiter defines interfaces and implementations for ingest rate
// limiting.
package limiter

import (
	"context"
	"sync"
	"time"
)

// Limiter throttles audit-event ingestion per client key.
type Limiter interface {
	// Allow reports whether the key may submit now and, when blocked, how
	// long to wait before retrying.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Memory is a sliding-window in-memory limiter keyed by client identity
// (device install id, or remote address when no identity is present).
type Memory struct {
	mu      sync.Mutex
	perKey  map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
	lastGC  time.Time
	gcEvery time.Duration
}

// NewMemory builds a limiter allowing at most limit submissions per window
// for each key.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		perKey:  make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
		gcEvery: 10 * window,
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)
	m.maybeGC(now, cutoff)

	times := m.perKey[key]
	live := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}

	if len(live) >= m.limit {
		m.perKey[key] = live
		retry := live[0].Add(m.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return false, retry, nil
	}

	m.perKey[key] = append(live, now)
	return true, 0, nil
}

// maybeGC drops keys whose whole window has expired. Caller holds the lock.
func (m *Memory) maybeGC(now time.Time, cutoff time.Time) {
	if now.Sub(m.lastGC) < m.gcEvery {
		return
	}
	m.lastGC = now
	for k, times := range m.perKey {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(m.perKey, k)
		}
	}
}
