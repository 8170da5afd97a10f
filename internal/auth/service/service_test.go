package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"caminomanager/internal/auth/lockout"
	"caminomanager/internal/auth/models"
	"caminomanager/internal/auth/service/mocks"
	sessionstore "caminomanager/internal/auth/store/session"
	userstore "caminomanager/internal/auth/store/user"
	jwttoken "caminomanager/internal/jwt_token"
	id "caminomanager/pkg/domain"
	dErrors "caminomanager/pkg/domain-errors"
	audit "caminomanager/pkg/platform/audit"
	"caminomanager/pkg/platform/audit/publisher"
	"caminomanager/pkg/platform/audit/store/memory"
	"caminomanager/pkg/platform/sentinel"
	"caminomanager/pkg/platform/tx"
	"caminomanager/pkg/requestcontext"
)

const (
	testEmail    = "admin@camino.test"
	testPassword = "correct horse battery staple"
	chromeUA     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type ServiceSuite struct {
	suite.Suite
	users    *userstore.InMemoryUserStore
	sessions *sessionstore.InMemorySessionStore
	audit    *memory.InMemoryStore
	service  *Service
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.users = userstore.New()
	s.sessions = sessionstore.New()
	s.audit = memory.NewInMemoryStore()
	s.now = time.Now().Truncate(time.Second)
	s.service = New(
		s.users,
		s.sessions,
		jwttoken.NewJWTService("test-key", "caminomanager"),
		tx.NewLocal(),
		Config{AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: 24 * time.Hour, ConfirmationTTL: time.Hour},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(publisher.NewPublisher(s.audit)),
	)
}

func (s *ServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithClientMetadata(ctx, "192.0.2.10", chromeUA)
}

func (s *ServiceSuite) invite(verified bool) string {
	token, err := s.service.Invite(s.ctx(), testEmail, testPassword)
	s.Require().NoError(err)
	if verified {
		_, err = s.service.VerifyEmail(s.ctx(), token, "invite")
		s.Require().NoError(err)
	}
	return token
}

func (s *ServiceSuite) actions() []audit.Action {
	events, err := s.audit.ListRecent(context.Background(), 0)
	s.Require().NoError(err)
	out := make([]audit.Action, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i].Action)
	}
	return out
}

func (s *ServiceSuite) TestSignIn() {
	s.Run("rejects malformed email", func() {
		_, err := s.service.SignIn(s.ctx(), "not-an-email", testPassword)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown email is invalid credentials", func() {
		_, err := s.service.SignIn(s.ctx(), "ghost@camino.test", testPassword)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unconfirmed account is forbidden", func() {
		s.invite(false)
		_, err := s.service.SignIn(s.ctx(), testEmail, testPassword)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestSignInSuccess() {
	s.invite(true)

	result, err := s.service.SignIn(s.ctx(), testEmail, testPassword)
	s.Require().NoError(err)
	s.Equal(testEmail, result.User.Email)
	s.NotEmpty(result.Tokens.AccessToken)
	s.NotEmpty(result.Tokens.RefreshToken)
	s.Equal(s.now.Add(24*time.Hour), result.Tokens.RefreshExpiresAt)
	s.Contains(result.Session.DeviceDisplayName, "Chrome")
	s.Equal("192.0.2.10", result.Session.IPAddress)

	_, err = s.service.SignIn(s.ctx(), testEmail, "wrong")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	s.Equal([]audit.Action{
		audit.ActionUserInvited,
		audit.ActionEmailConfirmed,
		audit.ActionSignIn,
		audit.ActionSignInFailed,
	}, s.actions())
}

func (s *ServiceSuite) TestResolve() {
	s.invite(true)
	signedIn, err := s.service.SignIn(s.ctx(), testEmail, testPassword)
	s.Require().NoError(err)
	tokens := signedIn.Tokens

	s.Run("no cookies is anonymous without error", func() {
		res, err := s.service.Resolve(s.ctx(), "", "")
		s.Require().NoError(err)
		s.Nil(res.User)
		s.False(res.Clear)
	})

	s.Run("valid access token resolves without rotation", func() {
		res, err := s.service.Resolve(s.ctx(), tokens.AccessToken, tokens.RefreshToken)
		s.Require().NoError(err)
		s.Require().NotNil(res.User)
		s.Equal(testEmail, res.User.Email)
		s.Nil(res.Tokens)
	})

	s.Run("garbage access token without refresh clears cookies", func() {
		res, err := s.service.Resolve(s.ctx(), "garbage", "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.True(res.Clear)
		s.Nil(res.User)
	})
}

func (s *ServiceSuite) TestResolveRotatesExpiredAccessToken() {
	s.invite(true)
	signedIn, err := s.service.SignIn(s.ctx(), testEmail, testPassword)
	s.Require().NoError(err)

	later := requestcontext.WithTime(s.ctx(), s.now.Add(time.Hour))
	res, err := s.service.Resolve(later, "", signedIn.Tokens.RefreshToken)
	s.Require().NoError(err)
	s.Require().NotNil(res.User)
	s.Require().NotNil(res.Tokens)
	s.NotEqual(signedIn.Tokens.RefreshToken, res.Tokens.RefreshToken)

	s.Run("old refresh token cannot be replayed", func() {
		replay, err := s.service.Resolve(later, "", signedIn.Tokens.RefreshToken)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.True(replay.Clear)
	})

	s.Run("new refresh token works", func() {
		again, err := s.service.Resolve(later, "", res.Tokens.RefreshToken)
		s.Require().NoError(err)
		s.NotNil(again.User)
	})
}

func (s *ServiceSuite) TestSignOut() {
	s.invite(true)
	signedIn, err := s.service.SignIn(s.ctx(), testEmail, testPassword)
	s.Require().NoError(err)

	s.Require().NoError(s.service.SignOut(s.ctx(), signedIn.User))

	res, err := s.service.Resolve(s.ctx(), signedIn.Tokens.AccessToken, signedIn.Tokens.RefreshToken)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.True(res.Clear)

	s.Run("second sign out is still fine", func() {
		s.NoError(s.service.SignOut(s.ctx(), signedIn.User))
	})

	s.Run("identity without session", func() {
		err := s.service.SignOut(s.ctx(), models.Identity{ID: id.NewUserID()})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestVerifyEmail() {
	s.Run("missing parameters", func() {
		_, err := s.service.VerifyEmail(s.ctx(), "", "invite")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown type", func() {
		_, err := s.service.VerifyEmail(s.ctx(), "abc", "magiclink")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown token", func() {
		_, err := s.service.VerifyEmail(s.ctx(), "abc", "invite")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("valid link signs in once", func() {
		token := s.invite(false)
		result, err := s.service.VerifyEmail(s.ctx(), token, "invite")
		s.Require().NoError(err)
		s.Equal(testEmail, result.User.Email)
		s.NotEmpty(result.Tokens.AccessToken)

		_, err = s.service.VerifyEmail(s.ctx(), token, "invite")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("expired link", func() {
		token, err := s.service.Invite(s.ctx(), "late@camino.test", "")
		s.Require().NoError(err)

		later := requestcontext.WithTime(s.ctx(), s.now.Add(2*time.Hour))
		_, err = s.service.VerifyEmail(later, token, "invite")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("wrong link type", func() {
		token, err := s.service.Invite(s.ctx(), "typed@camino.test", "")
		s.Require().NoError(err)
		_, err = s.service.VerifyEmail(s.ctx(), token, "recovery")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestInviteDuplicate() {
	s.invite(false)
	_, err := s.service.Invite(s.ctx(), testEmail, testPassword)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestResolveStoreOutage() {
	ctrl := gomock.NewController(s.T())
	sessions := mocks.NewMockSessionStore(ctrl)
	svc := New(s.users, sessions, jwttoken.NewJWTService("test-key", "caminomanager"), tx.NewLocal(), Config{})

	sessions.EXPECT().
		ConsumeRefreshToken(gomock.Any(), HashToken("refresh"), gomock.Any()).
		Return(nil, errors.New("dial tcp: connection refused"))

	res, err := svc.Resolve(s.ctx(), "", "refresh")
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrUnavailable)
	s.False(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.False(res.Clear)
	s.Nil(res.User)
}

func (s *ServiceSuite) TestSignOutStoreFailure() {
	ctrl := gomock.NewController(s.T())
	sessions := mocks.NewMockSessionStore(ctrl)
	auditor := mocks.NewMockAuditPublisher(ctrl)
	svc := New(s.users, sessions, jwttoken.NewJWTService("test-key", "caminomanager"), tx.NewLocal(), Config{},
		WithAuditPublisher(auditor))

	ident := models.Identity{ID: id.NewUserID(), Email: testEmail, SessionID: id.NewSessionID()}
	sessions.EXPECT().Revoke(gomock.Any(), ident.SessionID).Return(errors.New("redis: i/o timeout"))
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Times(0)

	err := svc.SignOut(s.ctx(), ident)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestSignInLockout() {
	s.invite(true)
	svc := New(s.users, s.sessions, jwttoken.NewJWTService("test-key", "caminomanager"), tx.NewLocal(), Config{},
		WithLockout(lockout.New(lockout.NewInMemoryStore(), lockout.Config{Attempts: 2})),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	for range 2 {
		_, err := svc.SignIn(s.ctx(), testEmail, "wrong")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}

	_, err := svc.SignIn(s.ctx(), testEmail, testPassword)
	s.True(dErrors.HasCode(err, dErrors.CodeTooManyRequests))

	s.Run("other client address can still sign in", func() {
		ctx := requestcontext.WithClientMetadata(s.ctx(), "198.51.100.7", chromeUA)
		_, err := svc.SignIn(ctx, testEmail, testPassword)
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestSignInClearsLockoutOnSuccess() {
	s.invite(true)
	ctrl := gomock.NewController(s.T())
	guard := mocks.NewMockLockout(ctrl)
	svc := New(s.users, s.sessions, jwttoken.NewJWTService("test-key", "caminomanager"), tx.NewLocal(), Config{},
		WithLockout(guard))

	gomock.InOrder(
		guard.EXPECT().Check(gomock.Any(), testEmail).Return(nil),
		guard.EXPECT().Clear(gomock.Any(), testEmail),
	)
	guard.EXPECT().RecordFailure(gomock.Any(), gomock.Any()).Times(0)

	_, err := svc.SignIn(s.ctx(), testEmail, testPassword)
	s.NoError(err)
}
