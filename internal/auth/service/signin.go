package service

import (
	"context"
	"errors"
	"strings"

	"github.com/asaskevich/govalidator"
	"golang.org/x/crypto/bcrypt"

	"caminomanager/internal/auth/models"
	dErrors "caminomanager/pkg/domain-errors"
	audit "caminomanager/pkg/platform/audit"
	"caminomanager/pkg/platform/sentinel"
)

// dummyHash keeps the unknown-email path as slow as a real password check.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("camino-timing-equalizer"), bcrypt.DefaultCost)

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")

// SignIn verifies a password and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*models.SignInResult, error) {
	email = strings.TrimSpace(email)
	if !govalidator.IsEmail(email) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a valid email is required")
	}
	if password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}

	if s.lockout != nil {
		if err := s.lockout.Check(ctx, email); err != nil {
			s.metrics.IncSignIn("locked")
			return nil, err
		}
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			s.recordFailure(ctx, email)
			s.metrics.IncSignIn("invalid_credentials")
			s.emitBestEffort(ctx, audit.Event{Action: audit.ActionSignInFailed, Subject: email})
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.recordFailure(ctx, email)
		s.metrics.IncSignIn("invalid_credentials")
		s.emitBestEffort(ctx, audit.Event{Action: audit.ActionSignInFailed, UserID: user.ID, Subject: email})
		return nil, errInvalidCredentials
	}
	if !user.EmailVerified {
		s.metrics.IncSignIn("unconfirmed")
		return nil, dErrors.New(dErrors.CodeForbidden, "email not confirmed")
	}

	result, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	if s.lockout != nil {
		s.lockout.Clear(ctx, email)
	}
	s.metrics.IncSignIn("success")
	s.emitBestEffort(ctx, audit.Event{Action: audit.ActionSignIn, UserID: user.ID, Subject: user.Email})
	s.logger.InfoContext(ctx, "user signed in",
		"user_id", user.ID.String(),
		"session_id", result.Session.ID.String(),
		"device", result.Session.DeviceDisplayName,
	)
	return result, nil
}

func (s *Service) recordFailure(ctx context.Context, email string) {
	if s.lockout != nil {
		s.lockout.RecordFailure(ctx, email)
	}
}

// HashPassword returns a bcrypt hash for password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	return string(hash), nil
}
