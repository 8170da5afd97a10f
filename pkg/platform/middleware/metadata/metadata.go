// Package metadata records who is calling: client IP and User-Agent go into
// the request context for session labels, lockout keys and logs.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"caminomanager/pkg/requestcontext"
)

const unknownIP = "unknown"

func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest prefers the first valid address in X-Forwarded-For,
// then X-Real-IP, then the connection's remote address.
func ClientIPFromRequest(r *http.Request) string {
	for _, candidate := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip, ok := parseIP(candidate); ok {
			return ip
		}
	}
	if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, ok := parseIP(host); ok {
		return ip
	}
	return unknownIP
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(s), "[]"))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
