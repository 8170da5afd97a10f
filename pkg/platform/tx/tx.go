package tx

import (
	"context"
	"fmt"
	"sync"

	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Manager runs fn inside one unit of work. Stores called with the ctx passed
// to fn join that unit of work.
type Manager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewPostgres returns a transaction manager over pool.
func NewPostgres(pool *pgxpool.Pool) (Manager, error) {
	m, err := manager.New(trmpgx.NewDefaultFactory(pool))
	if err != nil {
		return nil, fmt.Errorf("create tx manager: %w", err)
	}
	return m, nil
}

// Local serializes units of work with a coarse lock for in-memory stores.
// It does not roll back partial writes.
type Local struct {
	mu sync.Mutex
}

// NewLocal returns an in-process manager.
func NewLocal() *Local {
	return &Local{}
}

type heldKey struct{}

// Do runs fn under the lock. Nested calls reuse the held lock.
func (l *Local) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(heldKey{}) == l {
		return fn(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(context.WithValue(ctx, heldKey{}, l))
}
