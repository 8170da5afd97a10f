// Package routes classifies request paths as public or protected.
package routes

import (
	"net/http"
	"path"
	"slices"
	"strings"
)

// DefaultPublic lists the paths reachable without a session.
var DefaultPublic = []string{"/login", "/auth", "/healthz", "/metrics"}

// IsPublic reports whether p equals a listed route or is a descendant of one.
// Matching is literal: no wildcards and no pattern syntax.
func IsPublic(p string, routes []string) bool {
	for _, route := range routes {
		if p == route || strings.HasPrefix(p, route+"/") {
			return true
		}
	}
	return false
}

// Classifier holds a read-only copy of the public route list.
type Classifier struct {
	public []string
}

// NewClassifier copies routes after trimming, dropping empties and
// duplicates, and removing trailing slashes. "/" itself is kept as is.
func NewClassifier(routes []string) *Classifier {
	return &Classifier{public: normalize(routes)}
}

// IsPublic classifies p against the classifier's routes.
func (c *Classifier) IsPublic(p string) bool {
	return IsPublic(p, c.public)
}

// Routes returns a copy of the configured public routes.
func (c *Classifier) Routes() []string {
	return slices.Clone(c.public)
}

func normalize(routes []string) []string {
	seen := make(map[string]struct{}, len(routes))
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if r != "/" {
			r = strings.TrimRight(r, "/")
			if !strings.HasPrefix(r, "/") {
				r = "/" + r
			}
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

var staticPrefixes = []string{"/_next/static/", "/_next/image", "/static/"}

var imageExtensions = map[string]struct{}{
	".svg": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
}

// IsStaticAsset reports whether p is excluded from the gate entirely.
func IsStaticAsset(p string) bool {
	if p == "/favicon.ico" {
		return true
	}
	for _, prefix := range staticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// StaticAssetFilter routes static asset requests to assets and everything
// else through gated. Asset requests never reach the gate.
func StaticAssetFilter(assets http.Handler) func(gated http.Handler) http.Handler {
	return func(gated http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsStaticAsset(r.URL.Path) {
				assets.ServeHTTP(w, r)
				return
			}
			gated.ServeHTTP(w, r)
		})
	}
}
