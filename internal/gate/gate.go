// Package gate decides, per request, whether to pass it through or send the
// caller to the login page.
//
// Every request is first classified. Public paths pass through with the
// refreshed cookies. Protected paths pass through only when the refresher
// resolved a user; otherwise the caller is redirected to the login page and
// the refreshed cookies are carried onto the redirect.
package gate

//go:generate mockgen -source=gate.go -destination=mocks/mocks.go -package=mocks Refresher

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"caminomanager/internal/auth/models"
	"caminomanager/internal/platform/metrics"
	"caminomanager/internal/routes"
	"caminomanager/pkg/requestcontext"
)

// LoginPath is where unauthenticated callers are sent.
const LoginPath = "/login"

// Result is the outcome of one session resolution. User is nil whenever
// Err is set.
type Result struct {
	Response *Response
	User     *models.Identity
	Err      error
}

// Refresher resolves the session carried by a request.
type Refresher interface {
	Refresh(r *http.Request) Result
}

type options struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	loginPath string
}

// Option configures the gate.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLoginPath overrides LoginPath.
func WithLoginPath(p string) Option {
	return func(o *options) { o.loginPath = p }
}

// New returns the gate middleware. The classifier is injected so tests can
// run the gate against alternate route sets.
func New(refresher Refresher, classifier *routes.Classifier, opts ...Option) func(http.Handler) http.Handler {
	o := &options{logger: slog.Default(), loginPath: LoginPath}
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			res := o.resolve(refresher, r)
			if res.Err != nil {
				o.logger.WarnContext(ctx, "session resolution failed",
					"error", res.Err,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
			}
			if res.User != nil {
				r = r.WithContext(requestcontext.WithUser(ctx, requestcontext.Identity{
					ID:        res.User.ID,
					Email:     res.User.Email,
					SessionID: res.User.SessionID,
				}))
			}

			switch {
			case classifier.IsPublic(r.URL.Path):
				o.metrics.IncGateDecision(metrics.OutcomePublic)
				res.Response.writeHeaders(w)
				next.ServeHTTP(w, r)
			case res.User != nil:
				o.metrics.IncGateDecision(metrics.OutcomeAuthenticated)
				res.Response.writeHeaders(w)
				next.ServeHTTP(w, r)
			default:
				o.metrics.IncGateDecision(metrics.OutcomeUnauthenticated)
				redirect := TransferCookies(res.Response, NewRedirect(LoginURL(o.loginPath, r.URL.Path)))
				redirect.Header.Set("Cache-Control", "no-store")
				redirect.writeTo(w)
			}
		})
	}
}

// resolve calls the refresher and turns a panic into a failed result so the
// request continues unauthenticated.
func (o *options) resolve(refresher Refresher, r *http.Request) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			o.metrics.IncRefreshFailure("panic")
			res = Result{Err: fmt.Errorf("refresher panic: %v", rec)}
		}
	}()
	res = refresher.Refresh(r)
	if res.Err != nil {
		res.User = nil
	}
	if res.Response == nil {
		res.Response = NewResponse()
	}
	return res
}

// LoginURL builds the login redirect target. The requested path is kept in
// redirectTo unless it is the root.
func LoginURL(loginPath, requested string) string {
	if requested == "" || requested == "/" {
		return loginPath
	}
	return loginPath + "?" + url.Values{"redirectTo": {requested}}.Encode()
}
