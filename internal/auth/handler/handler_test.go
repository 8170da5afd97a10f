package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"caminomanager/internal/auth/handler/mocks"
	"caminomanager/internal/auth/models"
	"caminomanager/internal/auth/refresher"
	"caminomanager/internal/entity"
	"caminomanager/internal/transport/http/views"
	id "caminomanager/pkg/domain"
	dErrors "caminomanager/pkg/domain-errors"
	"caminomanager/pkg/requestcontext"
	th "caminomanager/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	renderer, err := views.New()
	s.Require().NoError(err)

	h := New(s.service, refresher.New(nil), renderer, entity.DefaultRegistry().All(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func signedIn(req *http.Request) (*http.Request, requestcontext.Identity) {
	return th.SignedIn(req, "admin@camino.test")
}

func signInResult() *models.SignInResult {
	return &models.SignInResult{
		User: models.Identity{ID: id.NewUserID(), Email: "admin@camino.test", SessionID: id.NewSessionID()},
		Tokens: &models.TokenPair{
			AccessToken:      "access",
			RefreshToken:     "refresh",
			AccessExpiresAt:  time.Now().Add(15 * time.Minute),
			RefreshExpiresAt: time.Now().Add(24 * time.Hour),
		},
	}
}

func (s *HandlerSuite) TestSignOutWithSession() {
	req, ident := signedIn(httptest.NewRequest(http.MethodPost, "/auth/signout", nil))
	s.service.EXPECT().SignOut(gomock.Any(), models.Identity{ID: ident.ID, Email: ident.Email, SessionID: ident.SessionID}).Return(nil)

	rr := th.DoRequest(s.router, req)

	th.AssertRedirect(s.T(), rr, "/login")
	s.Equal(`"cache"`, rr.Header().Get("Clear-Site-Data"))
	s.Equal("no-store", rr.Header().Get("Cache-Control"))
	access := th.ResponseCookie(rr, refresher.AccessCookie)
	s.Require().NotNil(access)
	s.Less(access.MaxAge, 0)
	s.NotNil(th.ResponseCookie(rr, refresher.RefreshCookie))
}

func (s *HandlerSuite) TestSignOutWithoutSessionSkipsBackend() {
	rr := th.DoRequest(s.router, httptest.NewRequest(http.MethodPost, "/auth/signout", nil))

	th.AssertRedirect(s.T(), rr, "/login")
}

func (s *HandlerSuite) TestSignOutFailure() {
	req, _ := signedIn(httptest.NewRequest(http.MethodPost, "/auth/signout", nil))
	s.service.EXPECT().SignOut(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	rr := th.DoRequest(s.router, req)

	th.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, string(dErrors.CodeInternal))
	s.Empty(rr.Header().Get("Location"))
}

func (s *HandlerSuite) TestConfirm() {
	s.Run("missing parameters", func() {
		rr := th.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/auth/confirm?type=invite", nil))
		th.AssertRedirect(s.T(), rr, "/login?error=email_confirmation_failed")
	})

	s.Run("backend rejects the link", func() {
		s.service.EXPECT().VerifyEmail(gomock.Any(), "abc", "invite").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "confirmation link is invalid or expired"))
		rr := th.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/auth/confirm?token_hash=abc&type=invite", nil))
		th.AssertRedirect(s.T(), rr, "/login?error=email_confirmation_failed")
	})

	s.Run("success signs in and goes home", func() {
		s.service.EXPECT().VerifyEmail(gomock.Any(), "good", "signup").Return(signInResult(), nil)
		rr := th.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/auth/confirm?token_hash=good&type=signup", nil))
		th.AssertRedirect(s.T(), rr, "/")
		s.Equal("access", th.ResponseCookie(rr, refresher.AccessCookie).Value)
		s.Equal("refresh", th.ResponseCookie(rr, refresher.RefreshCookie).Value)
	})
}

func (s *HandlerSuite) TestLoginForm() {
	s.Run("success redirects to the requested page", func() {
		s.service.EXPECT().SignIn(gomock.Any(), "admin@camino.test", "secret").Return(signInResult(), nil)
		rr := th.DoRequest(s.router, th.NewFormRequest(s.T(), "/auth/login", url.Values{
			"email": {"admin@camino.test"}, "password": {"secret"}, "redirectTo": {"/personas?page=2"},
		}))
		th.AssertRedirect(s.T(), rr, "/personas?page=2")
		s.NotNil(th.ResponseCookie(rr, refresher.AccessCookie))
	})

	s.Run("open redirects are refused", func() {
		s.service.EXPECT().SignIn(gomock.Any(), gomock.Any(), gomock.Any()).Return(signInResult(), nil)
		rr := th.DoRequest(s.router, th.NewFormRequest(s.T(), "/auth/login", url.Values{
			"email": {"admin@camino.test"}, "password": {"secret"}, "redirectTo": {"//evil.example"},
		}))
		th.AssertRedirect(s.T(), rr, "/")
	})

	s.Run("bad credentials keep redirectTo", func() {
		s.service.EXPECT().SignIn(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password"))
		rr := th.DoRequest(s.router, th.NewFormRequest(s.T(), "/auth/login", url.Values{
			"email": {"admin@camino.test"}, "password": {"nope"}, "redirectTo": {"/ciudades"},
		}))
		th.AssertRedirect(s.T(), rr, "/login?error=invalid_credentials&redirectTo=%2Fciudades")
		s.Nil(th.ResponseCookie(rr, refresher.AccessCookie))
	})

	s.Run("unconfirmed account", func() {
		s.service.EXPECT().SignIn(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "email not confirmed"))
		rr := th.DoRequest(s.router, th.NewFormRequest(s.T(), "/auth/login", url.Values{"email": {"a@b.co"}, "password": {"x"}}))
		th.AssertRedirect(s.T(), rr, "/login?error=email_not_confirmed")
	})

	s.Run("locked out", func() {
		s.service.EXPECT().SignIn(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeTooManyRequests, "too many sign-in attempts"))
		rr := th.DoRequest(s.router, th.NewFormRequest(s.T(), "/auth/login", url.Values{"email": {"a@b.co"}, "password": {"x"}}))
		th.AssertRedirect(s.T(), rr, "/login?error=too_many_attempts")
	})
}

func (s *HandlerSuite) TestLoginJSON() {
	result := signInResult()
	s.service.EXPECT().SignIn(gomock.Any(), "admin@camino.test", "secret").Return(result, nil)

	rr := th.DoRequest(s.router, th.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"email": "admin@camino.test", "password": "secret"}))

	th.AssertStatus(s.T(), rr, http.StatusOK)
	body := th.UnmarshalResponse[meResponse](s.T(), rr)
	s.Equal(result.User.ID.String(), body.ID)
	s.NotNil(th.ResponseCookie(rr, refresher.RefreshCookie))
}

func (s *HandlerSuite) TestLoginPage() {
	s.Run("shows the error flag", func() {
		rr := th.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/login?error=email_confirmation_failed&redirectTo=%2Fequipos", nil))
		th.AssertStatus(s.T(), rr, http.StatusOK)
		s.Contains(rr.Body.String(), "El enlace de confirmación no es válido")
		s.Contains(rr.Body.String(), `value="/equipos"`)
	})

	s.Run("signed-in users are sent on", func() {
		req, _ := signedIn(httptest.NewRequest(http.MethodGet, "/login?redirectTo=%2Fequipos", nil))
		rr := th.DoRequest(s.router, req)
		th.AssertRedirect(s.T(), rr, "/equipos")
	})
}

func (s *HandlerSuite) TestMe() {
	req, ident := signedIn(httptest.NewRequest(http.MethodGet, "/api/me", nil))
	rr := th.DoRequest(s.router, req)
	th.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal(ident.Email, th.UnmarshalResponse[meResponse](s.T(), rr).Email)

	rr = th.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	th.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func TestSafeRedirect(t *testing.T) {
	cases := map[string]string{
		"":                    "/",
		"/personas":           "/personas",
		"/personas?page=2":    "/personas?page=2",
		"//evil.example":      "/",
		"https://evil.example": "/",
		"/\\evil.example":     "/",
		"personas":            "/",
		"/login":              "/",
		"/auth/signout":       "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeRedirect(in), in)
	}
}
