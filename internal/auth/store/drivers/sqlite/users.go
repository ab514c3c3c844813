package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
)

type usersRepo struct {
	db  DBTX
	now func() time.Time
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row, err := scanUser(r.db.QueryRowContext(ctx, getUserByID, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row), nil
}

func (r *usersRepo) UpsertUser(ctx context.Context, u domain.User) error {
	if u.ID == "" {
		return fmt.Errorf("sqlite: upsert user: empty id")
	}
	ts := r.now().Unix()
	_, err := r.db.ExecContext(ctx, upsertUser,
		u.ID,
		u.PreferredUsername,
		u.Email,
		domain.InitialRefreshTokenVersion,
		u.Role,
		ts,
		ts,
	)
	return err
}

func (r *usersRepo) BumpRefreshTokenVersion(ctx context.Context, id string) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, bumpRefreshTokenVersion, r.now().Unix(), id).Scan(&version)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return version, nil
}

func (r *usersRepo) ListScopes(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, listScopes, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scopes := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		scopes = append(scopes, s)
	}
	return scopes, rows.Err()
}

func (r *usersRepo) AddScope(ctx context.Context, id, scope string) error {
	_, err := r.db.ExecContext(ctx, addScope, id, scope)
	return err
}
