//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"caminomanager/internal/entity/store"
	"caminomanager/internal/platform/postgres"
	"caminomanager/pkg/testutil/containers"
)

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.NewPostgresContainer(t)
	if err := postgres.Migrate(context.Background(), pg.Pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := &StoreSuite{}
	s.reset = func() {
		if err := pg.TruncateTables(context.Background(), postgres.Tables()...); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		s.store = store.NewPostgres(pg.Pool)
	}
	suite.Run(t, s)
}
