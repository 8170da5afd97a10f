package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"caminomanager/internal/auth/device"
	"caminomanager/internal/auth/models"
	id "caminomanager/pkg/domain"
	dErrors "caminomanager/pkg/domain-errors"
	"caminomanager/pkg/requestcontext"
)

// HashToken returns the hex SHA-256 of an opaque token. Only hashes are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// newOpaqueToken returns 32 random bytes, base64url encoded.
func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// mintTokens signs an access token and creates the next refresh token for session.
func (s *Service) mintTokens(session *models.Session, now time.Time) (*models.TokenPair, *models.RefreshTokenRecord, error) {
	access, err := s.tokens.GenerateAccessToken(session.UserID, session.ID, session.Email, now, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign access token")
	}
	refresh, err := newOpaqueToken()
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create refresh token")
	}
	record := &models.RefreshTokenRecord{
		TokenHash: HashToken(refresh),
		SessionID: session.ID,
		UserID:    session.UserID,
		CreatedAt: now,
		ExpiresAt: session.ExpiresAt,
	}
	pair := &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: session.ExpiresAt,
	}
	return pair, record, nil
}

// startSession opens a new device session for user and returns its first tokens.
func (s *Service) startSession(ctx context.Context, user *models.User) (*models.SignInResult, error) {
	now := requestcontext.Now(ctx)
	userAgent := requestcontext.UserAgent(ctx)

	session := &models.Session{
		ID:                id.NewSessionID(),
		UserID:            user.ID,
		Email:             user.Email,
		DeviceDisplayName: device.ParseUserAgent(userAgent),
		DeviceFingerprint: s.device.ComputeFingerprint(userAgent),
		IPAddress:         requestcontext.ClientIP(ctx),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.RefreshTokenTTL),
	}

	pair, record, err := s.mintTokens(session, now)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}

	return &models.SignInResult{
		User:    session.Identity(),
		Session: session,
		Tokens:  pair,
	}, nil
}
