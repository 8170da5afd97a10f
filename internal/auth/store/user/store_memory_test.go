package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caminomanager/internal/auth/models"
	id "caminomanager/pkg/domain"
	"caminomanager/pkg/platform/sentinel"
)

type UserStoreSuite struct {
	suite.Suite
	store *InMemoryUserStore
	now   time.Time
}

func (s *UserStoreSuite) SetupTest() {
	s.store = New()
	s.now = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
}

func TestUserStoreSuite(t *testing.T) {
	suite.Run(t, new(UserStoreSuite))
}

func (s *UserStoreSuite) newUser(email string) *models.User {
	u := &models.User{ID: id.NewUserID(), Email: email, PasswordHash: "x", CreatedAt: s.now}
	s.Require().NoError(s.store.Create(context.Background(), u))
	return u
}

func (s *UserStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	u := s.newUser("Admin@Camino.test")

	s.Run("lookup by email is case insensitive", func() {
		found, err := s.store.FindByEmail(ctx, "  admin@camino.TEST ")
		s.Require().NoError(err)
		s.Equal(u.ID, found.ID)
	})

	s.Run("duplicate email conflicts", func() {
		err := s.store.Create(ctx, &models.User{ID: id.NewUserID(), Email: "admin@camino.test"})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown id", func() {
		_, err := s.store.FindByID(ctx, id.NewUserID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("mark verified", func() {
		s.Require().NoError(s.store.MarkEmailVerified(ctx, u.ID))
		found, err := s.store.FindByID(ctx, u.ID)
		s.Require().NoError(err)
		s.True(found.EmailVerified)
	})
}

func (s *UserStoreSuite) TestConsumeConfirmation() {
	ctx := context.Background()
	u := s.newUser("invitee@camino.test")
	issue := func(hash string) {
		s.Require().NoError(s.store.CreateConfirmation(ctx, &models.ConfirmationToken{
			TokenHash: hash,
			UserID:    u.ID,
			Kind:      models.ConfirmationInvite,
			ExpiresAt: s.now.Add(time.Hour),
		}))
	}

	s.Run("single use", func() {
		issue("once")
		tok, err := s.store.ConsumeConfirmation(ctx, "once", models.ConfirmationInvite, s.now)
		s.Require().NoError(err)
		s.Equal(u.ID, tok.UserID)
		s.NotNil(tok.UsedAt)

		_, err = s.store.ConsumeConfirmation(ctx, "once", models.ConfirmationInvite, s.now)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("expired", func() {
		issue("late")
		_, err := s.store.ConsumeConfirmation(ctx, "late", models.ConfirmationInvite, s.now.Add(2*time.Hour))
		s.ErrorIs(err, sentinel.ErrExpired)
	})

	s.Run("wrong type", func() {
		issue("typed")
		_, err := s.store.ConsumeConfirmation(ctx, "typed", models.ConfirmationRecovery, s.now)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown hash", func() {
		_, err := s.store.ConsumeConfirmation(ctx, "nope", models.ConfirmationInvite, s.now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("token for unknown user is rejected", func() {
		err := s.store.CreateConfirmation(ctx, &models.ConfirmationToken{TokenHash: "orphan", UserID: id.NewUserID()})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}
