package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caminomanager/internal/auth/models"
	id "caminomanager/pkg/domain"
	"caminomanager/pkg/platform/sentinel"
)

type SessionStoreSuite struct {
	suite.Suite
	store *InMemorySessionStore
	now   time.Time
}

func (s *SessionStoreSuite) SetupTest() {
	s.store = New()
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) seed(tokenHash string) *models.Session {
	session := &models.Session{
		ID:        id.NewSessionID(),
		UserID:    id.NewUserID(),
		Email:     "admin@camino.test",
		CreatedAt: s.now,
		ExpiresAt: s.now.Add(24 * time.Hour),
	}
	refresh := &models.RefreshTokenRecord{
		TokenHash: tokenHash,
		SessionID: session.ID,
		UserID:    session.UserID,
		CreatedAt: s.now,
		ExpiresAt: s.now.Add(24 * time.Hour),
	}
	s.Require().NoError(s.store.Save(context.Background(), session, refresh))
	return session
}

func (s *SessionStoreSuite) TestFindByID() {
	ctx := context.Background()

	s.Run("returns a copy of the stored session", func() {
		session := s.seed("h1")
		found, err := s.store.FindByID(ctx, session.ID)
		s.Require().NoError(err)
		s.Equal(session.Email, found.Email)

		found.Email = "mutated"
		again, err := s.store.FindByID(ctx, session.ID)
		s.Require().NoError(err)
		s.Equal("admin@camino.test", again.Email)
	})

	s.Run("missing session", func() {
		_, err := s.store.FindByID(ctx, id.NewSessionID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *SessionStoreSuite) TestConsumeRefreshToken() {
	ctx := context.Background()

	s.Run("token can be consumed once", func() {
		session := s.seed("once")
		rec, err := s.store.ConsumeRefreshToken(ctx, "once", s.now)
		s.Require().NoError(err)
		s.Equal(session.ID, rec.SessionID)

		_, err = s.store.ConsumeRefreshToken(ctx, "once", s.now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("expired token", func() {
		s.seed("old")
		_, err := s.store.ConsumeRefreshToken(ctx, "old", s.now.Add(48*time.Hour))
		s.ErrorIs(err, sentinel.ErrExpired)
	})

	s.Run("parallel consumers see one winner", func() {
		s.seed("race")
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.store.ConsumeRefreshToken(ctx, "race", s.now); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), wins.Load())
	})
}

func (s *SessionStoreSuite) TestRevoke() {
	ctx := context.Background()

	s.Run("removes session and refresh tokens", func() {
		session := s.seed("revoked")
		s.Require().NoError(s.store.Revoke(ctx, session.ID))

		_, err := s.store.FindByID(ctx, session.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.ConsumeRefreshToken(ctx, "revoked", s.now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown session", func() {
		s.ErrorIs(s.store.Revoke(ctx, id.NewSessionID()), sentinel.ErrNotFound)
	})
}

func (s *SessionStoreSuite) TestDeleteExpired() {
	s.seed("a")
	s.seed("b")
	deleted, err := s.store.DeleteExpired(context.Background(), s.now.Add(25*time.Hour))
	s.Require().NoError(err)
	s.Equal(2, deleted)
}
