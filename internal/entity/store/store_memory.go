// Package store persists entity records in memory or in Postgres.
package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"caminomanager/internal/entity"
	id "caminomanager/pkg/domain"
	"caminomanager/pkg/platform/sentinel"
)

// InMemoryStore keeps records per entity. Reads return copies.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[id.RecordID]*entity.Record
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]map[id.RecordID]*entity.Record)}
}

func (s *InMemoryStore) Insert(_ context.Context, rec *entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.records[rec.Entity]
	if table == nil {
		table = make(map[id.RecordID]*entity.Record)
		s.records[rec.Entity] = table
	}
	if _, ok := table[rec.ID]; ok {
		return fmt.Errorf("record %s exists: %w", rec.ID, sentinel.ErrConflict)
	}
	table[rec.ID] = clone(rec)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, rec *entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Entity][rec.ID]; !ok {
		return fmt.Errorf("record %s: %w", rec.ID, sentinel.ErrNotFound)
	}
	s.records[rec.Entity][rec.ID] = clone(rec)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, name string, recordID id.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name][recordID]; !ok {
		return fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
	}
	delete(s.records[name], recordID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, name string, recordID id.RecordID) (*entity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name][recordID]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
	}
	return clone(rec), nil
}

// List filters by search text, sorts and slices one page. Ties keep
// creation order.
func (s *InMemoryStore) List(_ context.Context, q entity.ListQuery) ([]*entity.Record, int, error) {
	s.mu.RLock()
	matched := make([]*entity.Record, 0, len(s.records[q.Entity]))
	for _, rec := range s.records[q.Entity] {
		if q.Search != "" && !strings.Contains(rec.Search, q.Search) {
			continue
		}
		matched = append(matched, clone(rec))
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b *entity.Record) int {
		if q.SortBy != "" {
			c := entity.Compare(q.SortType, a.Data[q.SortBy], b.Data[q.SortBy])
			if q.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	total := len(matched)
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Offset >= total {
		return []*entity.Record{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Limit < total-q.Offset {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], total, nil
}

func clone(rec *entity.Record) *entity.Record {
	c := *rec
	c.Data = maps.Clone(rec.Data)
	return &c
}
