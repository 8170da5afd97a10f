package updater

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	downloadInitialBackoff = 2 * time.Second
	downloadMaxBackoff     = time.Minute
	downloadMaxRetries     = 5
)

var (
	ErrNothingStaged    = errors.New("no update staged")
	ErrChecksumMismatch = errors.New("artifact checksum mismatch")
)

// Notifier receives the update notifications, in order.
type Notifier interface {
	NotifyAvailable(version string)
	NotifyDownloaded(version string)
}

// Launcher starts the staged installer.
type Launcher func(ctx context.Context, path string) error

// Updater owns the update state of the privileged process.
type Updater struct {
	feed     *url.URL
	current  string
	dir      string
	client   *http.Client
	notifier Notifier
	launch   Launcher
	quit     func()
	backoff  func() backoff.BackOff
	logger   *slog.Logger

	mu     sync.Mutex
	staged *Staged
}

// Staged is a downloaded, verified artifact.
type Staged struct {
	Version string
	Path    string
}

type Option func(*Updater)

func WithHTTPClient(c *http.Client) Option {
	return func(u *Updater) { u.client = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(u *Updater) { u.logger = logger }
}

// WithLauncher replaces the default installer launch, which executes the
// staged artifact.
func WithLauncher(l Launcher) Option {
	return func(u *Updater) { u.launch = l }
}

// WithQuit sets the function that stops the application once the installer
// has been launched.
func WithQuit(quit func()) Option {
	return func(u *Updater) { u.quit = quit }
}

// WithBackOff sets the retry policy of a single download.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(u *Updater) { u.backoff = newBackOff }
}

// New creates an Updater for the feed directory feedURL, which must serve
// latest.yml.
func New(feedURL, current, dir string, notifier Notifier, opts ...Option) (*Updater, error) {
	feed, err := url.Parse(feedURL)
	if err != nil || feed.Scheme == "" || feed.Host == "" {
		return nil, fmt.Errorf("invalid feed url %q", feedURL)
	}
	if feed.Path == "" || feed.Path[len(feed.Path)-1] != '/' {
		feed.Path += "/"
	}
	u := &Updater{
		feed:     feed,
		current:  current,
		dir:      dir,
		client:   &http.Client{Timeout: 10 * time.Minute},
		notifier: notifier,
		launch:   launchInstaller,
		quit:     func() {},
		logger:   slog.Default(),
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(downloadInitialBackoff),
				backoff.WithMaxInterval(downloadMaxBackoff),
			), downloadMaxRetries)
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Check fetches the manifest and reports whether it names a newer version.
func (u *Updater) Check(ctx context.Context) (*Manifest, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.feed.ResolveReference(&url.URL{Path: ManifestName}).String(), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("fetch manifest: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, false, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, false, err
	}
	return m, Newer(u.current, m.Version), nil
}

// Poll runs one update cycle: check, announce, download, announce. A
// version already staged is not announced again.
func (u *Updater) Poll(ctx context.Context) error {
	m, newer, err := u.Check(ctx)
	if err != nil || !newer {
		return err
	}
	if s, ok := u.Staged(); ok && s.Version == m.Version {
		return nil
	}

	u.logger.InfoContext(ctx, "update available", "current", u.current, "version", m.Version)
	u.notifier.NotifyAvailable(m.Version)

	staged, err := u.Download(ctx, m)
	if err != nil {
		return err
	}

	u.mu.Lock()
	u.staged = staged
	u.mu.Unlock()

	u.logger.InfoContext(ctx, "update downloaded", "version", m.Version, "path", staged.Path)
	u.notifier.NotifyDownloaded(m.Version)
	return nil
}

// Run polls immediately and then every interval until ctx is done.
func (u *Updater) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := u.Poll(ctx); err != nil && ctx.Err() == nil {
			u.logger.WarnContext(ctx, "update check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Download fetches the release artifact with retries, verifies its SHA-512
// and moves it into the staging directory.
func (u *Updater) Download(ctx context.Context, m *Manifest) (*Staged, error) {
	file, err := m.Artifact()
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(file.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact url: %w", ErrInvalidManifest, err)
	}
	src := u.feed.ResolveReference(ref)

	dir := filepath.Join(u.dir, m.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	dest := filepath.Join(dir, path.Base(src.Path))

	attempt := func() error {
		return u.fetch(ctx, src.String(), file, dest)
	}
	notify := func(err error, d time.Duration) {
		u.logger.WarnContext(ctx, "retrying update download", "version", m.Version, "error", err, "next_attempt", d)
	}
	if err := backoff.RetryNotify(attempt, backoff.WithContext(u.backoff(), ctx), notify); err != nil {
		return nil, fmt.Errorf("download %s: %w", m.Version, err)
	}
	return &Staged{Version: m.Version, Path: dest}, nil
}

func (u *Updater) fetch(ctx context.Context, src string, file File, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name())

	hash := sha512.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if file.Size > 0 && n != file.Size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrChecksumMismatch, n, file.Size)
	}
	if got := base64.StdEncoding.EncodeToString(hash.Sum(nil)); got != file.SHA512 {
		return ErrChecksumMismatch
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return backoff.Permanent(err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return backoff.Permanent(err)
	}
	return nil
}

// Staged returns the artifact ready to install.
func (u *Updater) Staged() (Staged, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.staged == nil {
		return Staged{}, false
	}
	return *u.staged, true
}

// InstallUpdate launches the staged installer and quits the application.
func (u *Updater) InstallUpdate(ctx context.Context) error {
	s, ok := u.Staged()
	if !ok {
		return ErrNothingStaged
	}
	u.logger.InfoContext(ctx, "installing update", "version", s.Version, "path", s.Path)
	if err := u.launch(ctx, s.Path); err != nil {
		return fmt.Errorf("launch installer: %w", err)
	}
	u.quit()
	return nil
}

func launchInstaller(_ context.Context, path string) error {
	cmd := exec.Command(path)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
