package storage

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStore keeps records in a map. Nothing survives the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(slices.Collect(maps.Keys(s.records))), nil
}

// Read implements Store.
func (s *MemoryStore) Read(ctx context.Context, id string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(payload), true, nil
}

// Write implements Store.
func (s *MemoryStore) Write(ctx context.Context, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = slices.Clone(payload)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
