package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"caminomanager/internal/auth/models"
	id "caminomanager/pkg/domain"
	"caminomanager/pkg/platform/sentinel"
)

// Error Contract:
// - Return sentinel.ErrNotFound when the session or refresh token does not exist
// - Return sentinel.ErrExpired when a refresh token is past its expiry
// - Return wrapped errors for infrastructure failures

// InMemorySessionStore stores sessions in memory for tests/dev.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[id.SessionID]*models.Session
	refresh  map[string]*models.RefreshTokenRecord
}

// New constructs an empty in-memory session store.
func New() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[id.SessionID]*models.Session),
		refresh:  make(map[string]*models.RefreshTokenRecord),
	}
}

// Save stores the session and registers its current refresh token.
func (s *InMemorySessionStore) Save(_ context.Context, session *models.Session, refresh *models.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *session
	s.sessions[session.ID] = &stored
	if refresh != nil {
		rec := *refresh
		s.refresh[refresh.TokenHash] = &rec
	}
	return nil
}

func (s *InMemorySessionStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	out := *session
	return &out, nil
}

// ConsumeRefreshToken removes and returns the record so each token is
// exchanged at most once.
func (s *InMemorySessionStore) ConsumeRefreshToken(_ context.Context, tokenHash string, now time.Time) (*models.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[tokenHash]
	if !ok {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	delete(s.refresh, tokenHash)
	if !now.Before(rec.ExpiresAt) {
		return nil, fmt.Errorf("refresh token expired: %w", sentinel.ErrExpired)
	}
	return rec, nil
}

// Revoke deletes the session and every refresh token issued for it.
func (s *InMemorySessionStore) Revoke(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	delete(s.sessions, sessionID)
	for hash, rec := range s.refresh {
		if rec.SessionID == sessionID {
			delete(s.refresh, hash)
		}
	}
	return nil
}

// DeleteExpired removes expired sessions and refresh tokens.
func (s *InMemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, session := range s.sessions {
		if session.IsExpired(now) {
			delete(s.sessions, key)
			deleted++
		}
	}
	for key, rec := range s.refresh {
		if !now.Before(rec.ExpiresAt) {
			delete(s.refresh, key)
		}
	}
	return deleted, nil
}
