package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the snapshot in process.
type MemoryStore struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &snap
	s.saves++
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, nil
	}
	if s.snap.Expired(s.now()) {
		s.snap = nil
		return nil, nil
	}
	out := *s.snap
	return &out, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
