package lockout

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps records in a map. Expired windows are reset lazily.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func (s *InMemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryStore) RecordFailure(_ context.Context, key string, window time.Duration, now time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok || (now.Sub(r.FirstFailureAt) >= window && !r.IsLockedAt(now)) {
		r = &Record{FirstFailureAt: now}
		s.records[key] = r
	}
	r.FailureCount++
	cp := *r
	return &cp, nil
}

func (s *InMemoryStore) Lock(_ context.Context, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		r = &Record{FirstFailureAt: until}
		s.records[key] = r
	}
	r.LockedUntil = &until
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
