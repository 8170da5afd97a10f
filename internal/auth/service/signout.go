package service

import (
	"context"
	"errors"

	"caminomanager/internal/auth/models"
	dErrors "caminomanager/pkg/domain-errors"
	audit "caminomanager/pkg/platform/audit"
	"caminomanager/pkg/platform/sentinel"
)

// SignOut revokes the caller's session. A session that is already gone
// counts as signed out.
func (s *Service) SignOut(ctx context.Context, ident models.Identity) error {
	if ident.SessionID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "no session to sign out")
	}

	if err := s.sessions.Revoke(ctx, ident.SessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
	}

	s.metrics.IncSignOut()
	s.emitBestEffort(ctx, audit.Event{Action: audit.ActionSignOut, UserID: ident.ID, Subject: ident.Email})
	s.logger.InfoContext(ctx, "user signed out",
		"user_id", ident.ID.String(),
		"session_id", ident.SessionID.String(),
	)
	return nil
}
