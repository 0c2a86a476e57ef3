package snapshot

import "sync"

// MemStore is an in-memory Store, used in tests and ephemeral runs.
type MemStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, ErrNoSnapshot
	}
	copied := *s.snap
	return &copied, nil
}

func (s *MemStore) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snap
	s.snap = &copied
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}
