package paramstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the snapshot in process memory. Used when caching is
// disabled and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewMemoryStore returns a store seeded with a copy of initial.
func NewMemoryStore(initial Snapshot) *MemoryStore {
	return &MemoryStore{snap: initial.Clone()}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snap.Clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = snapshot.Clone()

	return nil
}
