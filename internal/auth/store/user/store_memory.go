package user

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"caminomanager/internal/auth/models"
	id "caminomanager/pkg/domain"
	"caminomanager/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users and their confirmation tokens in memory for tests/dev.
type InMemoryUserStore struct {
	mu            sync.RWMutex
	users         map[id.UserID]*models.User
	byEmail       map[string]id.UserID
	confirmations map[string]*models.ConfirmationToken
}

// New constructs an empty in-memory user store.
func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:         make(map[id.UserID]*models.User),
		byEmail:       make(map[string]id.UserID),
		confirmations: make(map[string]*models.ConfirmationToken),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeEmail(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
	}
	stored := *user
	s.users[user.ID] = &stored
	s.byEmail[key] = user.ID
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	out := *s.users[userID]
	return &out, nil
}

func (s *InMemoryUserStore) MarkEmailVerified(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	u.EmailVerified = true
	return nil
}

func (s *InMemoryUserStore) CreateConfirmation(_ context.Context, token *models.ConfirmationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[token.UserID]; !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	stored := *token
	s.confirmations[token.TokenHash] = &stored
	return nil
}

// ConsumeConfirmation validates and marks the token used under one lock.
func (s *InMemoryUserStore) ConsumeConfirmation(_ context.Context, tokenHash string, kind models.ConfirmationKind, now time.Time) (*models.ConfirmationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.confirmations[tokenHash]
	if !ok {
		return nil, fmt.Errorf("confirmation not found: %w", sentinel.ErrNotFound)
	}
	if err := confirmationState(token, kind, now); err != nil {
		return nil, err
	}
	token.MarkUsed(now)
	out := *token
	return &out, nil
}

// confirmationState maps a token's state onto the store's sentinel contract.
func confirmationState(token *models.ConfirmationToken, kind models.ConfirmationKind, now time.Time) error {
	switch {
	case token.UsedAt != nil:
		return fmt.Errorf("confirmation already used: %w", sentinel.ErrAlreadyUsed)
	case !now.Before(token.ExpiresAt):
		return fmt.Errorf("confirmation expired: %w", sentinel.ErrExpired)
	case token.Kind != kind:
		return fmt.Errorf("confirmation type mismatch: %w", sentinel.ErrInvalidState)
	}
	return nil
}
