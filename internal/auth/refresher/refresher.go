// Package refresher resolves the session carried by a request's cookies into
// a user and the cookie updates the backend decided to issue.
package refresher

//go:generate mockgen -source=refresher.go -destination=mocks/mocks.go -package=mocks Backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"caminomanager/internal/auth/models"
	"caminomanager/internal/gate"
	"caminomanager/internal/platform/metrics"
	dErrors "caminomanager/pkg/domain-errors"
	"caminomanager/pkg/platform/circuit"
	"caminomanager/pkg/platform/sentinel"
	"caminomanager/pkg/requestcontext"
)

const (
	AccessCookie  = "camino-access-token"
	RefreshCookie = "camino-refresh-token"
)

// Failure reasons reported on camino_gate_refresh_failures_total.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonUnavailable  = "unavailable"
	ReasonPanic        = "panic"
	ReasonError        = "error"
)

const defaultTimeout = 5 * time.Second

var (
	errBackendPanic = errors.New("session backend panicked")
	// ErrDegraded is reported by Health while the backend keeps failing.
	ErrDegraded = errors.New("session backend degraded")
)

// Backend is the auth backend. Resolve validates the access token and, when
// needed, rotates the refresh token.
type Backend interface {
	Resolve(ctx context.Context, accessToken, refreshToken string) (*models.Resolution, error)
}

// Refresher performs at most one backend call per request. Requests
// presenting the same refresh token at the same time share a single call, so
// a token is rotated once and every caller receives the rotated pair.
type Refresher struct {
	backend Backend
	group   singleflight.Group
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *metrics.Metrics
	breaker *circuit.Breaker
	secure  bool
	timeout time.Duration
}

// Option configures the Refresher.
type Option func(*Refresher)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Refresher) { f.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Refresher) { f.metrics = m }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(f *Refresher) { f.tracer = tp.Tracer("caminomanager/refresher") }
}

// WithSecureCookies marks issued cookies Secure.
func WithSecureCookies(secure bool) Option {
	return func(f *Refresher) { f.secure = secure }
}

// WithBreaker replaces the breaker that tracks backend outages.
func WithBreaker(b *circuit.Breaker) Option {
	return func(f *Refresher) { f.breaker = b }
}

// WithTimeout bounds a single backend call.
func WithTimeout(d time.Duration) Option {
	return func(f *Refresher) { f.timeout = d }
}

func New(backend Backend, opts ...Option) *Refresher {
	f := &Refresher{
		backend: backend,
		tracer:  otel.Tracer("caminomanager/refresher"),
		logger:  slog.Default(),
		breaker: circuit.New("session-backend"),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Refresh implements gate.Refresher. Any failure leaves User nil.
func (f *Refresher) Refresh(r *http.Request) gate.Result {
	ctx, span := f.tracer.Start(r.Context(), "session.refresh")
	defer span.End()

	resp := gate.NewResponse()
	access := cookieValue(r, AccessCookie)
	refresh := cookieValue(r, RefreshCookie)
	if access == "" && refresh == "" {
		span.SetAttributes(attribute.Bool("session.present", false))
		return gate.Result{Response: resp}
	}

	start := time.Now()
	res, err := f.resolve(ctx, access, refresh)
	f.metrics.ObserveRefresh(time.Since(start))

	if res != nil {
		if res.Tokens != nil {
			for _, c := range f.SessionCookies(res.Tokens) {
				resp.SetCookie(c)
			}
		}
		if res.Clear {
			for _, c := range f.ClearedCookies() {
				resp.SetCookie(c)
			}
		}
	}

	f.track(ctx, err)

	if err != nil {
		reason := FailureReason(err)
		f.metrics.IncRefreshFailure(reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		if reason != ReasonUnauthorized {
			f.logger.ErrorContext(ctx, "session refresh failed",
				"error", err,
				"reason", reason,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return gate.Result{Response: resp, Err: err}
	}
	if res == nil || res.User == nil {
		return gate.Result{Response: resp}
	}

	span.SetAttributes(
		attribute.Bool("session.present", true),
		attribute.Bool("session.rotated", res.Tokens != nil),
		attribute.String("user.id", res.User.ID.String()),
	)
	return gate.Result{Response: resp, User: res.User}
}

// track feeds the breaker. A rejected session is a healthy answer.
func (f *Refresher) track(ctx context.Context, err error) {
	if err == nil || FailureReason(err) == ReasonUnauthorized {
		if _, change := f.breaker.RecordSuccess(); change.Closed {
			f.logger.InfoContext(ctx, "session backend recovered", "breaker", f.breaker.Name())
		}
		return
	}
	if _, change := f.breaker.RecordFailure(); change.Opened {
		f.logger.ErrorContext(ctx, "session backend failing, breaker opened", "breaker", f.breaker.Name())
	}
}

// Health reports ErrDegraded while the breaker is open.
func (f *Refresher) Health(context.Context) error {
	if f.breaker.IsOpen() {
		return ErrDegraded
	}
	return nil
}

func (f *Refresher) resolve(ctx context.Context, access, refresh string) (*models.Resolution, error) {
	key := "a:" + access
	if refresh != "" {
		key = "r:" + refresh
	}
	v, err, shared := f.group.Do(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		return f.call(callCtx, access, refresh)
	})
	if shared {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("session.shared", true))
	}
	res, _ := v.(*models.Resolution)
	return res, err
}

func (f *Refresher) call(ctx context.Context, access, refresh string) (res *models.Resolution, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = nil, fmt.Errorf("%w: %v", errBackendPanic, rec)
		}
	}()
	return f.backend.Resolve(ctx, access, refresh)
}

// FailureReason classifies a resolution error for metrics and logs.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, errBackendPanic):
		return ReasonPanic
	case errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ReasonUnavailable
	case dErrors.HasCode(err, dErrors.CodeUnauthorized):
		return ReasonUnauthorized
	default:
		return ReasonError
	}
}

// SessionCookies returns the cookies that carry tokens to the browser.
func (f *Refresher) SessionCookies(tokens *models.TokenPair) []*http.Cookie {
	return []*http.Cookie{
		f.cookie(AccessCookie, tokens.AccessToken, tokens.AccessExpiresAt),
		f.cookie(RefreshCookie, tokens.RefreshToken, tokens.RefreshExpiresAt),
	}
}

// ClearedCookies returns cookies that delete both session cookies.
func (f *Refresher) ClearedCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, 2)
	for _, name := range []string{AccessCookie, RefreshCookie} {
		c := f.cookie(name, "", time.Time{})
		c.MaxAge = -1
		out = append(out, c)
	}
	return out
}

func (f *Refresher) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
