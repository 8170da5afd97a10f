package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

// Service derives device labels and coarse fingerprints for sessions.
type Service struct {
	enabled bool
}

// NewService returns a device service. A disabled service yields empty fingerprints.
func NewService(enabled bool) *Service {
	return &Service{enabled: enabled}
}

// ParseUserAgent returns a display name such as "Chrome on Mac OS X".
func ParseUserAgent(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OSInfo().Name
	if os == "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

// ComputeFingerprint hashes browser name, browser major version, OS and platform.
// Minor browser upgrades keep the same fingerprint.
func (s *Service) ComputeFingerprint(userAgent string) string {
	if !s.enabled || userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	browser, version := ua.Browser()
	major, _, _ := strings.Cut(version, ".")
	parts := []string{browser, major, ua.OSInfo().Name, ua.Platform()}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// CompareFingerprints reports whether two fingerprints match and whether
// a stored fingerprint drifted.
func (s *Service) CompareFingerprints(stored, current string) (matched bool, drift bool) {
	if stored == "" || current == "" {
		return true, false
	}
	if stored == current {
		return true, false
	}
	return false, true
}
