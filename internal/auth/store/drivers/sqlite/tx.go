package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/wateroflife/internal/auth/store"
)

type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

func newTx(tx *sql.Tx, now func() time.Time) *txStore {
	return &txStore{tx: tx, now: now}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the outer DB stays open.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(context.Context) error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(context.Context, func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users { return &usersRepo{db: t.tx, now: t.now} }

// Migrations run before any transaction is opened.
func (t *txStore) ApplyMigrations() error { return nil }
