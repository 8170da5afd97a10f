package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caminomanager/internal/entity"
	"caminomanager/internal/entity/store"
	id "caminomanager/pkg/domain"
	"caminomanager/pkg/platform/sentinel"
)

// StoreSuite runs the same behavior checks against every Store.
type StoreSuite struct {
	suite.Suite
	store entity.Store
	reset func()
	base  time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	s := &StoreSuite{}
	s.reset = func() { s.store = store.NewInMemory() }
	suite.Run(t, s)
}

func (s *StoreSuite) SetupTest() {
	s.reset()
	s.base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) record(name string, minute int, data map[string]any) *entity.Record {
	ts := s.base.Add(time.Duration(minute) * time.Minute)
	rec := &entity.Record{
		ID:        id.NewRecordID(),
		Entity:    name,
		Data:      data,
		Search:    entity.SearchText(entity.Config{Fields: []entity.Field{{Name: "name", Searchable: true}}}, data),
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	s.Require().NoError(s.store.Insert(context.Background(), rec))
	return rec
}

func (s *StoreSuite) TestGetUpdateDelete() {
	ctx := context.Background()
	rec := s.record("countries", 0, map[string]any{"name": "Chile"})

	got, err := s.store.Get(ctx, "countries", rec.ID)
	s.Require().NoError(err)
	s.Equal("Chile", got.Data["name"])
	s.True(rec.CreatedAt.Equal(got.CreatedAt))

	_, err = s.store.Get(ctx, "states", rec.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	got.Data["name"] = "Perú"
	got.UpdatedAt = s.base.Add(time.Hour)
	s.Require().NoError(s.store.Update(ctx, got))

	again, err := s.store.Get(ctx, "countries", rec.ID)
	s.Require().NoError(err)
	s.Equal("Perú", again.Data["name"])

	s.Require().NoError(s.store.Delete(ctx, "countries", rec.ID))
	s.ErrorIs(s.store.Delete(ctx, "countries", rec.ID), sentinel.ErrNotFound)
	s.ErrorIs(s.store.Update(ctx, got), sentinel.ErrNotFound)
}

func (s *StoreSuite) TestReadsAreCopies() {
	rec := s.record("countries", 0, map[string]any{"name": "Chile"})
	got, err := s.store.Get(context.Background(), "countries", rec.ID)
	s.Require().NoError(err)
	got.Data["name"] = "changed"

	again, err := s.store.Get(context.Background(), "countries", rec.ID)
	s.Require().NoError(err)
	s.Equal("Chile", again.Data["name"])
}

func (s *StoreSuite) TestListSortSearchAndPage() {
	ctx := context.Background()
	s.record("steps", 1, map[string]any{"name": "Beta", "order": int64(2)})
	s.record("steps", 2, map[string]any{"name": "alfa", "order": int64(10)})
	s.record("steps", 3, map[string]any{"name": "Gamma"})
	s.record("countries", 4, map[string]any{"name": "Other"})

	items, total, err := s.store.List(ctx, entity.ListQuery{Entity: "steps", SortBy: "name", SortType: entity.FieldText})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Equal([]any{"alfa", "Beta", "Gamma"}, names(items))

	items, _, err = s.store.List(ctx, entity.ListQuery{Entity: "steps", SortBy: "order", SortType: entity.FieldInt})
	s.Require().NoError(err)
	s.Equal([]any{"Gamma", "Beta", "alfa"}, names(items))

	items, _, err = s.store.List(ctx, entity.ListQuery{Entity: "steps", SortBy: "order", SortType: entity.FieldInt, Desc: true})
	s.Require().NoError(err)
	s.Equal([]any{"alfa", "Beta", "Gamma"}, names(items))

	items, total, err = s.store.List(ctx, entity.ListQuery{Entity: "steps", Offset: 1, Limit: 1})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Equal([]any{"alfa"}, names(items))

	items, total, err = s.store.List(ctx, entity.ListQuery{Entity: "steps", Search: "mm"})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal([]any{"Gamma"}, names(items))

	items, total, err = s.store.List(ctx, entity.ListQuery{Entity: "steps", Offset: 10, Limit: 5})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Empty(items)
	items, total, err = s.store.List(ctx, entity.ListQuery{Entity: "steps", Offset: -5, Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Len(items, 2)
}

func names(items []*entity.Record) []any {
	out := make([]any, 0, len(items))
	for _, rec := range items {
		out = append(out, rec.Data["name"])
	}
	return out
}
