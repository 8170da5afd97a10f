package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caminomanager/internal/platform/config"
)

func TestOpenWithoutDSN(t *testing.T) {
	pool, err := Open(context.Background(), config.PostgresConfig{})
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestOpenRejectsBadDSN(t *testing.T) {
	_, err := Open(context.Background(), config.PostgresConfig{DSN: "postgres://%zz"})
	assert.Error(t, err)
}
