package keystore

import (
	"sync"

	"github.com/omniai-app/securekit/internal/errs"
)

// MemStore is an in-memory Store used in tests and as a fallback double.
type MemStore struct {
	mu    sync.RWMutex
	items map[string][]byte
	attrs map[string]Attributes
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string][]byte), attrs: make(map[string]Attributes)}
}

func (s *MemStore) Put(key string, value []byte, attrs Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = append([]byte(nil), value...)
	s.attrs[key] = attrs
	return nil
}

func (s *MemStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return nil, errs.ErrAbsent
	}
	return append([]byte(nil), v...), nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	delete(s.attrs, key)
	return nil
}

// AttributesFor returns the attributes recorded for key (test helper).
func (s *MemStore) AttributesFor(key string) (Attributes, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attrs[key]
	return a, ok
}
