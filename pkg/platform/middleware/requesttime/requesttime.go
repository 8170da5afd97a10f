// Package requesttime pins "now" for the lifetime of a request so token
// expiry, lockout windows and audit timestamps agree.
package requesttime

import (
	"net/http"
	"time"

	"caminomanager/pkg/requestcontext"
)

// Middleware stamps requests with time.Now.
var Middleware = WithClock(time.Now)

// WithClock stamps requests with the given clock.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now())))
		})
	}
}
