// Package handler serves the sign-in, sign-out and email confirmation
// endpoints.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"caminomanager/internal/auth/models"
	"caminomanager/internal/entity"
	"caminomanager/internal/transport/http/views"
	dErrors "caminomanager/pkg/domain-errors"
	"caminomanager/pkg/platform/httputil"
	"caminomanager/pkg/requestcontext"
)

// Login error flags carried in the ?error= query parameter.
const (
	ErrorConfirmationFailed = "email_confirmation_failed"
	ErrorInvalidCredentials = "invalid_credentials"
	ErrorNotConfirmed       = "email_not_confirmed"
	ErrorServer             = "server_error"
	ErrorTooManyAttempts    = "too_many_attempts"
)

var errorMessages = map[string]string{
	ErrorConfirmationFailed: "El enlace de confirmación no es válido o ha caducado.",
	ErrorInvalidCredentials: "Correo o contraseña incorrectos.",
	ErrorNotConfirmed:       "Confirma tu correo antes de iniciar sesión.",
	ErrorServer:             "No se pudo iniciar sesión. Inténtalo de nuevo.",
	ErrorTooManyAttempts:    "Demasiados intentos. Espera unos minutos antes de volver a intentarlo.",
}

// Service is the session backend used by the handlers.
type Service interface {
	SignIn(ctx context.Context, email, password string) (*models.SignInResult, error)
	SignOut(ctx context.Context, ident models.Identity) error
	VerifyEmail(ctx context.Context, token, kind string) (*models.SignInResult, error)
}

// CookieIssuer builds the session cookies.
type CookieIssuer interface {
	SessionCookies(tokens *models.TokenPair) []*http.Cookie
	ClearedCookies() []*http.Cookie
}

type Handler struct {
	auth     Service
	cookies  CookieIssuer
	views    *views.Renderer
	entities []entity.Config
	logger   *slog.Logger
}

func New(auth Service, cookies CookieIssuer, renderer *views.Renderer, entities []entity.Config, logger *slog.Logger) *Handler {
	return &Handler{
		auth:     auth,
		cookies:  cookies,
		views:    renderer,
		entities: entities,
		logger:   logger,
	}
}

// Register mounts the auth routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/login", h.handleLoginPage)
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/signout", h.handleSignOut)
	r.Get("/auth/confirm", h.handleConfirm)
	r.Get("/api/me", h.handleMe)
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := requestcontext.User(r.Context()); ok {
		http.Redirect(w, r, SafeRedirect(r.URL.Query().Get("redirectTo")), http.StatusFound)
		return
	}
	q := r.URL.Query()
	page := views.LoginPage{
		Chrome:     views.Chrome{Entities: h.entities},
		Error:      errorMessages[q.Get("error")],
		RedirectTo: q.Get("redirectTo"),
	}
	if err := h.views.Render(w, http.StatusOK, views.PageLogin, page); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render login page",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirectTo"`
}

// handleLogin accepts the login form or a JSON body. Form posts are answered
// with redirects; JSON callers get the user or an error envelope.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	asJSON := isJSON(r)

	var req loginRequest
	if asJSON {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Redirect(w, r, loginURL(ErrorInvalidCredentials, ""), http.StatusFound)
			return
		}
		req = loginRequest{
			Email:      r.PostForm.Get("email"),
			Password:   r.PostForm.Get("password"),
			RedirectTo: r.PostForm.Get("redirectTo"),
		}
	}

	result, err := h.auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		flag := ErrorServer
		switch {
		case dErrors.HasCode(err, dErrors.CodeUnauthorized), dErrors.HasCode(err, dErrors.CodeInvalidInput):
			flag = ErrorInvalidCredentials
			h.logger.InfoContext(ctx, "sign in rejected", "request_id", requestID)
		case dErrors.HasCode(err, dErrors.CodeForbidden):
			flag = ErrorNotConfirmed
		case dErrors.HasCode(err, dErrors.CodeTooManyRequests):
			flag = ErrorTooManyAttempts
			h.logger.InfoContext(ctx, "sign in locked out", "request_id", requestID)
		default:
			h.logger.ErrorContext(ctx, "sign in failed", "error", err, "request_id", requestID)
		}
		if asJSON {
			httputil.WriteError(w, err)
			return
		}
		http.Redirect(w, r, loginURL(flag, req.RedirectTo), http.StatusFound)
		return
	}

	h.setCookies(w, h.cookies.SessionCookies(result.Tokens))
	if asJSON {
		httputil.WriteJSON(w, http.StatusOK, meResponse{ID: result.User.ID.String(), Email: result.User.Email})
		return
	}
	http.Redirect(w, r, SafeRedirect(req.RedirectTo), http.StatusFound)
}

// handleSignOut revokes the session when one is present, clears the session
// cookies and the browser cache, and sends the caller to the login page.
func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ident, ok := requestcontext.User(ctx); ok {
		err := h.auth.SignOut(ctx, models.Identity{ID: ident.ID, Email: ident.Email, SessionID: ident.SessionID})
		if err != nil {
			h.logger.ErrorContext(ctx, "sign out failed",
				"error", err,
				"user_id", ident.ID.String(),
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign out"))
			return
		}
	}

	h.setCookies(w, h.cookies.ClearedCookies())
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Clear-Site-Data", `"cache"`)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// handleConfirm verifies an emailed one-time link and signs the user in.
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	token, kind := q.Get("token_hash"), q.Get("type")
	if token == "" || kind == "" {
		http.Redirect(w, r, loginURL(ErrorConfirmationFailed, ""), http.StatusFound)
		return
	}

	result, err := h.auth.VerifyEmail(ctx, token, kind)
	if err != nil {
		h.logger.WarnContext(ctx, "email confirmation failed",
			"error", err,
			"type", kind,
			"request_id", requestcontext.RequestID(ctx),
		)
		http.Redirect(w, r, loginURL(ErrorConfirmationFailed, ""), http.StatusFound)
		return
	}

	h.setCookies(w, h.cookies.SessionCookies(result.Tokens))
	http.Redirect(w, r, "/", http.StatusFound)
}

type meResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := requestcontext.User(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "not signed in"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meResponse{ID: ident.ID.String(), Email: ident.Email})
}

func (h *Handler) setCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}

// SafeRedirect returns target when it is a local absolute path, else "/".
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.ContainsAny(target, "\\\r\n") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	if u.Path == "/login" || strings.HasPrefix(u.Path, "/auth/") {
		return "/"
	}
	return target
}

func loginURL(flag, redirectTo string) string {
	q := url.Values{"error": {flag}}
	if redirectTo = SafeRedirect(redirectTo); redirectTo != "/" {
		q.Set("redirectTo", redirectTo)
	}
	return "/login?" + q.Encode()
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
