package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

const (
	macChrome    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	linuxFirefox = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	electronApp  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) caminomanager/1.4.0 Chrome/118.0.5993.129 Electron/27.1.3 Safari/537.36"
)

// DeviceSuite covers session device labels and fingerprints.
type DeviceSuite struct {
	suite.Suite
	svc *Service
}

func (s *DeviceSuite) SetupTest() {
	s.svc = NewService(true)
}

func TestDeviceSuite(t *testing.T) {
	suite.Run(t, new(DeviceSuite))
}

func (s *DeviceSuite) TestParseUserAgent() {
	s.Run("empty user agent", func() {
		s.Equal("Unknown Device", ParseUserAgent("  "))
	})

	s.Run("desktop browser names browser and OS", func() {
		label := ParseUserAgent(macChrome)
		s.Contains(label, "Chrome")
		s.Contains(label, " on ")
	})

	s.Run("linux firefox", func() {
		s.Contains(ParseUserAgent(linuxFirefox), "Firefox")
	})

	s.Run("desktop shell still produces a label", func() {
		label := ParseUserAgent(electronApp)
		s.NotEmpty(label)
		s.Equal(strings.TrimSpace(label), label)
	})
}

func (s *DeviceSuite) TestComputeFingerprint() {
	s.Run("disabled service", func() {
		s.Empty(NewService(false).ComputeFingerprint(macChrome))
	})

	s.Run("deterministic sha-256 hex", func() {
		fp := s.svc.ComputeFingerprint(macChrome)
		s.Len(fp, 64)
		s.Equal(fp, s.svc.ComputeFingerprint(macChrome))
	})

	s.Run("patch upgrades keep the fingerprint", func() {
		a := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36"
		b := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.224 Safari/537.36"
		s.Equal(s.svc.ComputeFingerprint(a), s.svc.ComputeFingerprint(b))
	})

	s.Run("different browser changes the fingerprint", func() {
		s.NotEqual(s.svc.ComputeFingerprint(macChrome), s.svc.ComputeFingerprint(linuxFirefox))
	})
}

func (s *DeviceSuite) TestCompareFingerprints() {
	matched, drift := s.svc.CompareFingerprints("abc", "abd")
	s.False(matched)
	s.True(drift)

	matched, drift = s.svc.CompareFingerprints("", "abd")
	s.True(matched)
	s.False(drift)
}
