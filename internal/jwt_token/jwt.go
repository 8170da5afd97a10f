package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "caminomanager/pkg/domain"
	dErrors "caminomanager/pkg/domain-errors"
	"caminomanager/pkg/platform/sentinel"
)

// Claims represents the JWT claims for our access tokens
type Claims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
}

func NewJWTService(signingKey string, issuer string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// GenerateAccessToken signs an HS256 access token valid until now+expiresIn.
func (s *JWTService) GenerateAccessToken(
	userID id.UserID,
	sessionID id.SessionID,
	email string,
	now time.Time,
	expiresIn time.Duration,
) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    userID.String(),
		SessionID: sessionID.String(),
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

// ValidateToken verifies signature, issuer and expiry. Expired tokens wrap
// sentinel.ErrExpired so callers can fall back to a refresh.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// ParseIDs extracts the typed user and session IDs from validated claims.
func (c *Claims) ParseIDs() (id.UserID, id.SessionID, error) {
	userID, err := id.ParseUserID(c.UserID)
	if err != nil {
		return id.UserID{}, id.SessionID{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token subject")
	}
	sessionID, err := id.ParseSessionID(c.SessionID)
	if err != nil {
		return id.UserID{}, id.SessionID{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token session")
	}
	return userID, sessionID, nil
}
