package service

import (
	"context"
	"errors"
	"strings"

	"github.com/asaskevich/govalidator"

	"caminomanager/internal/auth/models"
	id "caminomanager/pkg/domain"
	dErrors "caminomanager/pkg/domain-errors"
	audit "caminomanager/pkg/platform/audit"
	"caminomanager/pkg/platform/sentinel"
	"caminomanager/pkg/requestcontext"
)

// VerifyEmail consumes an emailed one-time link, marks the address verified
// and opens a session.
func (s *Service) VerifyEmail(ctx context.Context, token, kind string) (*models.SignInResult, error) {
	if token == "" || kind == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token_hash and type are required")
	}
	confirmationKind, err := models.ParseConfirmationKind(kind)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		confirmation, err := s.users.ConsumeConfirmation(ctx, HashToken(token), confirmationKind, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.users.MarkEmailVerified(ctx, confirmation.UserID); err != nil {
			return err
		}
		if user, err = s.users.FindByID(ctx, confirmation.UserID); err != nil {
			return err
		}
		return s.emit(ctx, audit.Event{Action: audit.ActionEmailConfirmed, UserID: user.ID, Subject: user.Email})
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound),
			errors.Is(err, sentinel.ErrExpired),
			errors.Is(err, sentinel.ErrAlreadyUsed),
			errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "confirmation link is invalid or expired")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify email")
		}
	}

	return s.startSession(ctx, user)
}

// Invite creates an unverified administrator and returns the one-time link
// token to email them. The password may be empty for accounts that will set
// one later.
func (s *Service) Invite(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !govalidator.IsEmail(email) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "a valid email is required")
	}

	var hash string
	if password != "" {
		var err error
		if hash, err = HashPassword(password); err != nil {
			return "", err
		}
	}

	token, err := newOpaqueToken()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create confirmation token")
	}

	now := requestcontext.Now(ctx)
	user := &models.User{
		ID:           id.NewUserID(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}

	err = s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		if err := s.users.CreateConfirmation(ctx, &models.ConfirmationToken{
			TokenHash: HashToken(token),
			UserID:    user.ID,
			Kind:      models.ConfirmationInvite,
			ExpiresAt: now.Add(s.cfg.ConfirmationTTL),
		}); err != nil {
			return err
		}
		return s.emit(ctx, audit.Event{Action: audit.ActionUserInvited, UserID: user.ID, Subject: email})
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.Wrap(err, dErrors.CodeConflict, "email already registered")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to invite user")
	}
	return token, nil
}
