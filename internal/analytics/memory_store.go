package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore implements Store with in-memory storage.
type MemoryStore struct {
	events []*Event
	nextID atomic.Int64
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory analytics store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	cp.ID = s.nextID.Add(1)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryStore) ByOrder(_ context.Context, orderID string, since time.Time) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Event
	for _, e := range s.events {
		if e.OrderID == orderID && !e.CreatedAt.Before(since) {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) CountByType(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, e := range s.events {
		counts[e.EventType]++
	}
	return counts, nil
}
