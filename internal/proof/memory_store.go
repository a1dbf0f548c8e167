package proof

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore implements Store using an in-memory map (for demo/testing).
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an in-memory proof store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func key(wallet, resourceID string, tierIndex int) string {
	return fmt.Sprintf("%s|%s|%d", wallet, resourceID, tierIndex)
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key(rec.WalletAddress, rec.ResourceID, rec.TierIndex)] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, wallet, resourceID string, tierIndex int) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key(wallet, resourceID, tierIndex)]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}
