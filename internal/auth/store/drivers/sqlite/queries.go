package sqlite

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every query can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

const getUserByID = `
SELECT user_id, preferred_username, email, refresh_token_version, role, created_at, updated_at
FROM users
WHERE user_id = ?`

const upsertUser = `
INSERT INTO users (user_id, preferred_username, email, refresh_token_version, role, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    preferred_username = excluded.preferred_username,
    email              = excluded.email,
    role               = excluded.role,
    updated_at         = excluded.updated_at`

const bumpRefreshTokenVersion = `
UPDATE users
SET refresh_token_version = refresh_token_version + 1,
    updated_at            = ?
WHERE user_id = ?
RETURNING refresh_token_version`

const listScopes = `
SELECT scope
FROM user_scopes
WHERE user_id = ?
ORDER BY id`

const addScope = `
INSERT INTO user_scopes (user_id, scope)
VALUES (?, ?)
ON CONFLICT (user_id, scope) DO NOTHING`

type userRow struct {
	UserID              string
	PreferredUsername   string
	Email               string
	RefreshTokenVersion int64
	Role                string
	CreatedAt           int64
	UpdatedAt           int64
}

func scanUser(row *sql.Row) (userRow, error) {
	var u userRow
	err := row.Scan(
		&u.UserID,
		&u.PreferredUsername,
		&u.Email,
		&u.RefreshTokenVersion,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}
