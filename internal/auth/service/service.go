package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore,SessionStore,TokenIssuer,AuditPublisher,Lockout

import (
	"context"
	"log/slog"
	"time"

	"caminomanager/internal/auth/device"
	"caminomanager/internal/auth/models"
	jwttoken "caminomanager/internal/jwt_token"
	"caminomanager/internal/platform/metrics"
	id "caminomanager/pkg/domain"
	audit "caminomanager/pkg/platform/audit"
	"caminomanager/pkg/platform/tx"
)

// UserStore persists administrator accounts and their confirmation links.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, userID id.UserID) error
	CreateConfirmation(ctx context.Context, token *models.ConfirmationToken) error
	ConsumeConfirmation(ctx context.Context, tokenHash string, kind models.ConfirmationKind, now time.Time) (*models.ConfirmationToken, error)
}

// SessionStore persists refresh-capable sessions.
type SessionStore interface {
	Save(ctx context.Context, session *models.Session, refresh *models.RefreshTokenRecord) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshTokenRecord, error)
	Revoke(ctx context.Context, sessionID id.SessionID) error
}

// TokenIssuer signs and validates access tokens.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, sessionID id.SessionID, email string, now time.Time, expiresIn time.Duration) (string, error)
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// AuditPublisher records security-relevant actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Lockout throttles repeated password failures.
type Lockout interface {
	Check(ctx context.Context, email string) error
	RecordFailure(ctx context.Context, email string)
	Clear(ctx context.Context, email string)
}

// Config holds token lifetimes.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ConfirmationTTL time.Duration
}

// Service is the session backend: it signs users in, resolves and rotates
// sessions, signs them out and verifies emailed links.
type Service struct {
	users    UserStore
	sessions SessionStore
	tokens   TokenIssuer
	tx       tx.Manager
	auditor  AuditPublisher
	lockout  Lockout
	device   *device.Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      Config
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithLockout(l Lockout) Option {
	return func(s *Service) { s.lockout = l }
}

func WithDeviceService(d *device.Service) Option {
	return func(s *Service) { s.device = d }
}

// New builds the auth service. txManager scopes user and audit writes.
func New(users UserStore, sessions SessionStore, tokens TokenIssuer, txManager tx.Manager, cfg Config, opts ...Option) *Service {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 24 * time.Hour
	}
	s := &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		tx:       txManager,
		device:   device.NewService(true),
		logger:   slog.Default(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.Emit(ctx, event)
}

// emitBestEffort records events whose loss must not fail the request.
func (s *Service) emitBestEffort(ctx context.Context, event audit.Event) {
	if err := s.emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
