// Package updater polls the release feed, downloads and verifies new
// versions, stages them and relaunches the application on request.
package updater

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// ManifestName is the feed document describing the latest release.
const ManifestName = "latest.yml"

// Manifest is the latest.yml release description. SHA512 values are base64.
type Manifest struct {
	Version     string `yaml:"version"`
	Files       []File `yaml:"files"`
	Path        string `yaml:"path"`
	SHA512      string `yaml:"sha512"`
	ReleaseDate string `yaml:"releaseDate"`
}

// File is one downloadable artifact of a release.
type File struct {
	URL    string `yaml:"url"`
	SHA512 string `yaml:"sha512"`
	Size   int64  `yaml:"size"`
}

var ErrInvalidManifest = errors.New("invalid release manifest")

// ParseManifest decodes and checks a latest.yml document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if !semver.IsValid(canonical(m.Version)) {
		return nil, fmt.Errorf("%w: version %q is not semver", ErrInvalidManifest, m.Version)
	}
	if _, err := m.Artifact(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Artifact returns the file to download: the first listed file, or the
// legacy top-level path.
func (m *Manifest) Artifact() (File, error) {
	if len(m.Files) > 0 {
		f := m.Files[0]
		if f.URL == "" || f.SHA512 == "" {
			return File{}, fmt.Errorf("%w: file entry needs url and sha512", ErrInvalidManifest)
		}
		return f, nil
	}
	if m.Path == "" || m.SHA512 == "" {
		return File{}, fmt.Errorf("%w: no artifact", ErrInvalidManifest)
	}
	return File{URL: m.Path, SHA512: m.SHA512}, nil
}

// Newer reports whether candidate is a later version than current. An
// unparseable current version is treated as older than anything.
func Newer(current, candidate string) bool {
	c, n := canonical(current), canonical(candidate)
	if !semver.IsValid(n) {
		return false
	}
	if !semver.IsValid(c) {
		return true
	}
	return semver.Compare(n, c) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
