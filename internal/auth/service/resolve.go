package service

import (
	"context"
	"errors"

	"caminomanager/internal/auth/models"
	dErrors "caminomanager/pkg/domain-errors"
	"caminomanager/pkg/platform/sentinel"
	"caminomanager/pkg/requestcontext"
)

// Resolve is the single per-request backend call. It validates the access
// token and, when that fails, rotates the refresh token.
//
// Outcomes:
//   - no cookies: empty resolution, nil error
//   - valid session: User set, Tokens nil
//   - rotated: User and Tokens set
//   - rejected session: Clear set with a CodeUnauthorized error
//   - store outage: error wrapping sentinel.ErrUnavailable, Clear unset
func (s *Service) Resolve(ctx context.Context, accessToken, refreshToken string) (*models.Resolution, error) {
	if accessToken == "" && refreshToken == "" {
		return &models.Resolution{}, nil
	}

	if accessToken != "" {
		ident, err := s.resolveAccess(ctx, accessToken)
		if err == nil {
			return &models.Resolution{User: ident}, nil
		}
		if errors.Is(err, sentinel.ErrUnavailable) {
			return &models.Resolution{}, err
		}
	}

	if refreshToken == "" {
		return &models.Resolution{Clear: true}, dErrors.New(dErrors.CodeUnauthorized, "session expired")
	}
	return s.rotate(ctx, refreshToken)
}

func (s *Service) resolveAccess(ctx context.Context, accessToken string) (*models.Identity, error) {
	claims, err := s.tokens.ValidateToken(accessToken)
	if err != nil {
		return nil, err
	}
	_, sessionID, err := claims.ParseIDs()
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session revoked")
		}
		return nil, dErrors.Wrap(errors.Join(sentinel.ErrUnavailable, err), dErrors.CodeInternal, "session lookup failed")
	}
	if session.IsExpired(requestcontext.Now(ctx)) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session expired")
	}
	ident := session.Identity()
	return &ident, nil
}

func (s *Service) rotate(ctx context.Context, refreshToken string) (*models.Resolution, error) {
	now := requestcontext.Now(ctx)

	record, err := s.sessions.ConsumeRefreshToken(ctx, HashToken(refreshToken), now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return &models.Resolution{Clear: true}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "refresh token rejected")
		}
		return &models.Resolution{}, dErrors.Wrap(errors.Join(sentinel.ErrUnavailable, err), dErrors.CodeInternal, "refresh failed")
	}

	session, err := s.sessions.FindByID(ctx, record.SessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.Resolution{Clear: true}, dErrors.New(dErrors.CodeUnauthorized, "session revoked")
		}
		return &models.Resolution{}, dErrors.Wrap(errors.Join(sentinel.ErrUnavailable, err), dErrors.CodeInternal, "session lookup failed")
	}
	if session.IsExpired(now) {
		return &models.Resolution{Clear: true}, dErrors.New(dErrors.CodeUnauthorized, "session expired")
	}

	current := s.device.ComputeFingerprint(requestcontext.UserAgent(ctx))
	if _, drift := s.device.CompareFingerprints(session.DeviceFingerprint, current); drift {
		s.logger.WarnContext(ctx, "session device fingerprint drifted",
			"session_id", session.ID.String(),
			"user_id", session.UserID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	session.LastRefreshedAt = &now
	pair, next, err := s.mintTokens(session, now)
	if err != nil {
		return &models.Resolution{}, err
	}
	if err := s.sessions.Save(ctx, session, next); err != nil {
		return &models.Resolution{}, dErrors.Wrap(errors.Join(sentinel.ErrUnavailable, err), dErrors.CodeInternal, "failed to save rotated session")
	}

	ident := session.Identity()
	return &models.Resolution{User: &ident, Tokens: pair}, nil
}
