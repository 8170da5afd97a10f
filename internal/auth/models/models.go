package models

import (
	"time"

	id "caminomanager/pkg/domain"
	dErrors "caminomanager/pkg/domain-errors"
)

// User is an administrator account.
type User struct {
	ID            id.UserID
	Email         string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
}

// Identity is the resolved identity of a request. It never carries secrets.
type Identity struct {
	ID        id.UserID    `json:"id"`
	Email     string       `json:"email"`
	SessionID id.SessionID `json:"-"`
}

// Session is a refresh-capable sign-in, one per device.
type Session struct {
	ID                id.SessionID `json:"id"`
	UserID            id.UserID    `json:"user_id"`
	Email             string       `json:"email"`
	DeviceDisplayName string       `json:"device_display_name"`
	DeviceFingerprint string       `json:"device_fingerprint"`
	IPAddress         string       `json:"ip_address"`
	CreatedAt         time.Time    `json:"created_at"`
	LastRefreshedAt   *time.Time   `json:"last_refreshed_at,omitempty"`
	ExpiresAt         time.Time    `json:"expires_at"`
}

// IsExpired reports whether the session can no longer be refreshed.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Identity projects the session owner onto the request-scoped identity.
func (s *Session) Identity() Identity {
	return Identity{ID: s.UserID, Email: s.Email, SessionID: s.ID}
}

// RefreshTokenRecord is persisted under the SHA-256 hash of the opaque token.
type RefreshTokenRecord struct {
	TokenHash string       `json:"token_hash"`
	SessionID id.SessionID `json:"session_id"`
	UserID    id.UserID    `json:"user_id"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// TokenPair is the cookie material handed to the client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Resolution is the outcome of resolving the session carried by a request.
// Tokens is set only when the backend rotated them; Clear asks the caller to
// drop the session cookies.
type Resolution struct {
	User   *Identity
	Tokens *TokenPair
	Clear  bool
}

// SignInResult is returned by a successful password sign-in or email confirmation.
type SignInResult struct {
	User    Identity
	Session *Session
	Tokens  *TokenPair
}

// ConfirmationKind is the purpose of an emailed one-time link.
type ConfirmationKind string

const (
	ConfirmationSignup   ConfirmationKind = "signup"
	ConfirmationInvite   ConfirmationKind = "invite"
	ConfirmationEmail    ConfirmationKind = "email"
	ConfirmationRecovery ConfirmationKind = "recovery"
)

// ParseConfirmationKind accepts the link type values the confirmation endpoint understands.
func ParseConfirmationKind(s string) (ConfirmationKind, error) {
	switch k := ConfirmationKind(s); k {
	case ConfirmationSignup, ConfirmationInvite, ConfirmationEmail, ConfirmationRecovery:
		return k, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported confirmation type")
	}
}

// ConfirmationToken is a single-use, expiring email link. Only the hash is stored.
type ConfirmationToken struct {
	TokenHash string
	UserID    id.UserID
	Kind      ConfirmationKind
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// ValidateForUse checks the token can be consumed at now.
func (t *ConfirmationToken) ValidateForUse(kind ConfirmationKind, now time.Time) error {
	if t.UsedAt != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "confirmation link already used")
	}
	if !now.Before(t.ExpiresAt) {
		return dErrors.New(dErrors.CodeUnauthorized, "confirmation link expired")
	}
	if t.Kind != kind {
		return dErrors.New(dErrors.CodeUnauthorized, "confirmation link type mismatch")
	}
	return nil
}

// MarkUsed records consumption.
func (t *ConfirmationToken) MarkUsed(now time.Time) {
	t.UsedAt = &now
}
