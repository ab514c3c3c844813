package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
)

var ErrNotFound = errors.New("store: not found")

// Store is the root data access interface implemented by the drivers.
// Repositories hang off it as methods so a Tx exposes the same surface and
// nobody opens a transaction inside a transaction by accident.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns ErrNotFound for unknown subjects.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// UpsertUser inserts u with the initial refresh token version, or
	// refreshes username, email and role of an existing row. The version of
	// an existing row is never touched.
	UpsertUser(ctx context.Context, u domain.User) error

	// BumpRefreshTokenVersion increments the version, invalidating every
	// outstanding refresh token for id, and returns the new value.
	BumpRefreshTokenVersion(ctx context.Context, id string) (int64, error)

	// ListScopes returns the user's extra scopes in insertion order.
	ListScopes(ctx context.Context, id string) ([]string, error)

	// AddScope grants scope to id. Granting twice is a no-op.
	AddScope(ctx context.Context, id, scope string) error
}
