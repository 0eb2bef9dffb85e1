package store

import (
	"context"
	"sync"

	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
)

// MemoryStore is an in-memory implementation of the LedgerStore interface.
// The list is kept serialized so every Load hands out an independent snapshot.
type MemoryStore struct {
	data []byte
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored requests
func (s *MemoryStore) Load(ctx context.Context) ([]core.CredentialRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return decodeRequests(s.data)
}

// Mutate applies fn under the write lock and persists its result
func (s *MemoryStore) Mutate(ctx context.Context, fn ports.MutateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := decodeRequests(s.data)
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	raw, err := encodeRequests(next)
	if err != nil {
		return err
	}
	s.data = raw

	return nil
}

// Clear removes all data from the store
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = nil
}

var _ ports.LedgerStore = (*MemoryStore)(nil)
