package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "caminomanager/pkg/domain"
	dErrors "caminomanager/pkg/domain-errors"
)

func TestConfirmationTokenValidateForUse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := func() *ConfirmationToken {
		return &ConfirmationToken{
			TokenHash: "hash",
			UserID:    id.NewUserID(),
			Kind:      ConfirmationInvite,
			ExpiresAt: now.Add(time.Hour),
		}
	}

	t.Run("valid token", func(t *testing.T) {
		assert.NoError(t, fresh().ValidateForUse(ConfirmationInvite, now))
	})

	t.Run("used token", func(t *testing.T) {
		tok := fresh()
		tok.MarkUsed(now)
		err := tok.ValidateForUse(ConfirmationInvite, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("expired at exact boundary", func(t *testing.T) {
		tok := fresh()
		assert.Error(t, tok.ValidateForUse(ConfirmationInvite, tok.ExpiresAt))
	})

	t.Run("kind mismatch", func(t *testing.T) {
		assert.Error(t, fresh().ValidateForUse(ConfirmationRecovery, now))
	})
}

func TestParseConfirmationKind(t *testing.T) {
	kind, err := ParseConfirmationKind("signup")
	require.NoError(t, err)
	assert.Equal(t, ConfirmationSignup, kind)

	_, err = ParseConfirmationKind("magiclink")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestSessionIsExpired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.IsExpired(now))
	assert.True(t, s.IsExpired(now.Add(time.Minute)))
	assert.False(t, (&Session{}).IsExpired(now))
}
