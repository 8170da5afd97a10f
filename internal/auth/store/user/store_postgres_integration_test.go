//go:build integration

package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caminomanager/internal/auth/models"
	"caminomanager/internal/auth/store/user"
	"caminomanager/internal/platform/postgres"
	id "caminomanager/pkg/domain"
	"caminomanager/pkg/platform/sentinel"
	"caminomanager/pkg/testutil/containers"
)

type PostgresUserStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *user.PostgresStore
}

func TestPostgresUserStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresUserStoreSuite))
}

func (s *PostgresUserStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.pg.Pool))
	s.store = user.NewPostgres(s.pg.Pool)
}

func (s *PostgresUserStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), postgres.Tables()...))
}

func (s *PostgresUserStoreSuite) TestUserLifecycle() {
	ctx := context.Background()
	u := &models.User{ID: id.NewUserID(), Email: "Admin@Camino.test", PasswordHash: "hash", CreatedAt: time.Now()}
	s.Require().NoError(s.store.Create(ctx, u))

	found, err := s.store.FindByEmail(ctx, "admin@camino.test")
	s.Require().NoError(err)
	s.Equal(u.ID, found.ID)
	s.False(found.EmailVerified)

	s.ErrorIs(s.store.Create(ctx, &models.User{ID: id.NewUserID(), Email: "admin@camino.test", CreatedAt: time.Now()}), sentinel.ErrConflict)

	s.Require().NoError(s.store.MarkEmailVerified(ctx, u.ID))
	found, err = s.store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.True(found.EmailVerified)
}

func (s *PostgresUserStoreSuite) TestConfirmationIsSingleUse() {
	ctx := context.Background()
	now := time.Now()
	u := &models.User{ID: id.NewUserID(), Email: "invitee@camino.test", CreatedAt: now}
	s.Require().NoError(s.store.Create(ctx, u))
	s.Require().NoError(s.store.CreateConfirmation(ctx, &models.ConfirmationToken{
		TokenHash: "abc",
		UserID:    u.ID,
		Kind:      models.ConfirmationInvite,
		ExpiresAt: now.Add(time.Hour),
	}))

	tok, err := s.store.ConsumeConfirmation(ctx, "abc", models.ConfirmationInvite, now)
	s.Require().NoError(err)
	s.Equal(u.ID, tok.UserID)

	_, err = s.store.ConsumeConfirmation(ctx, "abc", models.ConfirmationInvite, now)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}
