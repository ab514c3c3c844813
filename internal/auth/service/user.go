package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
	"github.com/aussiebroadwan/wateroflife/internal/auth/store"
	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
)

// Profile is what a signed in user may learn about themselves.
type Profile struct {
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Scopes   []string `json:"scopes"`
}

type UserService struct {
	Store store.Store
}

func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return u, nil
}

func (s *UserService) Profile(ctx context.Context, u domain.User) (Profile, error) {
	scopes, err := s.Store.Users().ListScopes(ctx, u.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if scopes == nil {
		scopes = []string{}
	}
	return Profile{Username: u.PreferredUsername, Role: u.Role, Scopes: scopes}, nil
}

// RevokeRefreshTokens bumps the user's refresh_token_version. Every refresh
// token issued before the call stops working; access tokens already out
// run to their expiry.
func (s *UserService) RevokeRefreshTokens(ctx context.Context, userID string) (int64, error) {
	v, err := s.Store.Users().BumpRefreshTokenVersion(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	slogx.FromContext(ctx).Info("refresh tokens revoked", "sub", userID, "version", v)
	return v, nil
}

// MaxScopeLength bounds a single granted scope.
const MaxScopeLength = 128

// GrantScope adds scope to the user's grants and returns the full set.
// Granting a scope the user already holds changes nothing.
func (s *UserService) GrantScope(ctx context.Context, userID, scope string) ([]string, error) {
	if scope == "" || len(scope) > MaxScopeLength || strings.ContainsFunc(scope, isScopeSeparator) {
		return nil, ErrInvalidScope
	}

	var scopes []string
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().GetUserByID(ctx, userID); err != nil {
			return err
		}
		if err := tx.Users().AddScope(ctx, userID, scope); err != nil {
			return err
		}
		var err error
		scopes, err = tx.Users().ListScopes(ctx, userID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	slogx.FromContext(ctx).Info("scope granted", "sub", userID, "scope", scope)
	return scopes, nil
}

// Scopes travel space separated in OAuth, so none may contain whitespace.
func isScopeSeparator(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
