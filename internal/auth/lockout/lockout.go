// Package lockout throttles password sign-in. Failures are counted per
// email and client IP inside a fixed window; reaching the limit locks that
// pair out for a while.
package lockout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	dErrors "caminomanager/pkg/domain-errors"
	"caminomanager/pkg/requestcontext"
)

// Record is the failure state of one email and IP pair.
type Record struct {
	FailureCount   int        `json:"failure_count"`
	FirstFailureAt time.Time  `json:"first_failure_at"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// IsLockedAt reports whether the record is locked at now.
func (r *Record) IsLockedAt(now time.Time) bool {
	return r != nil && r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// Store persists failure records. Get returns nil for an unknown key.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	RecordFailure(ctx context.Context, key string, window time.Duration, now time.Time) (*Record, error)
	Lock(ctx context.Context, key string, until time.Time) error
	Clear(ctx context.Context, key string) error
}

type Config struct {
	Attempts int
	Window   time.Duration
	Duration time.Duration
}

type Service struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, cfg Config, opts ...Option) *Service {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 15 * time.Minute
	}
	s := &Service{store: store, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key derives the store key for an email and IP. The email is hashed so
// addresses never appear in Redis keys.
func Key(email, ip string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email)) + "|" + ip))
	return hex.EncodeToString(sum[:16])
}

// Check returns a CodeTooManyRequests error while the pair is locked. A
// store failure lets the attempt through.
func (s *Service) Check(ctx context.Context, email string) error {
	ip := requestcontext.ClientIP(ctx)
	record, err := s.store.Get(ctx, Key(email, ip))
	if err != nil {
		s.logger.WarnContext(ctx, "lockout lookup failed", "error", err)
		return nil
	}
	now := requestcontext.Now(ctx)
	if record.IsLockedAt(now) {
		return dErrors.New(dErrors.CodeTooManyRequests, "too many sign-in attempts")
	}
	return nil
}

// RecordFailure counts a failed attempt and locks the pair once the limit
// is reached.
func (s *Service) RecordFailure(ctx context.Context, email string) {
	ip := requestcontext.ClientIP(ctx)
	key := Key(email, ip)
	now := requestcontext.Now(ctx)

	record, err := s.store.RecordFailure(ctx, key, s.cfg.Window, now)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record sign-in failure", "error", err)
		return
	}
	if record.FailureCount < s.cfg.Attempts {
		return
	}
	until := now.Add(s.cfg.Duration)
	if err := s.store.Lock(ctx, key, until); err != nil {
		s.logger.WarnContext(ctx, "failed to lock sign-in", "error", err)
		return
	}
	s.logger.WarnContext(ctx, "sign-in locked",
		"ip", ip,
		"failures", record.FailureCount,
		"locked_until", until,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// Clear forgets the failures of a pair after a successful sign-in.
func (s *Service) Clear(ctx context.Context, email string) {
	if err := s.store.Clear(ctx, Key(email, requestcontext.ClientIP(ctx))); err != nil {
		s.logger.WarnContext(ctx, "failed to clear sign-in failures", "error", err)
	}
}
