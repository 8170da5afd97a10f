package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"caminomanager/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		expected   string
	}{
		{name: "forwarded chain uses the client", xff: "203.0.113.9, 10.0.0.1", remoteAddr: "10.0.0.2:5000", expected: "203.0.113.9"},
		{name: "garbage forwarded entry skipped", xff: "unknown, 203.0.113.9", remoteAddr: "10.0.0.2:5000", expected: "203.0.113.9"},
		{name: "real ip header", realIP: " 198.51.100.4 ", remoteAddr: "10.0.0.2:5000", expected: "198.51.100.4"},
		{name: "remote addr v4", remoteAddr: "192.0.2.1:1234", expected: "192.0.2.1"},
		{name: "remote addr v6", remoteAddr: "[::1]:1234", expected: "::1"},
		{name: "mapped v4", remoteAddr: "[::ffff:192.0.2.7]:80", expected: "192.0.2.7"},
		{name: "nothing usable", remoteAddr: "pipe", expected: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.expected, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadataMiddleware(t *testing.T) {
	var ip, ua string
	h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("User-Agent", "CaminoDesktop/1.4.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.1", ip)
	assert.Equal(t, "CaminoDesktop/1.4.0", ua)
}
