package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
	"github.com/aussiebroadwan/wateroflife/internal/auth/observability"
	"github.com/aussiebroadwan/wateroflife/pkg/jwtx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	metrics := observability.NewMetrics()

	require.NoError(t, st.Users().UpsertUser(ctx, domain.User{
		ID:                "sub-1",
		PreferredUsername: "jdoe",
		Role:              domain.RoleUser,
	}))

	auth := &AuthService{
		AccessSecret:  jwtx.HMACSecret(testAccessSecret),
		RefreshSecret: jwtx.HMACSecret(testRefreshSecret),
		Audience:      testAudience,
		Users:         st.Users(),
		Metrics:       metrics,
	}

	fresh, err := newTestTokens(t, time.Now()).IssuePair("sub-1", domain.RoleUser, 1)
	require.NoError(t, err)

	// Access expired, refresh still good.
	stale, err := newTestTokens(t, time.Now().Add(-time.Hour)).IssuePair("sub-1", domain.RoleUser, 1)
	require.NoError(t, err)

	t.Run("valid access token", func(t *testing.T) {
		state := auth.Authenticate(ctx, fresh.AccessToken, "garbage")
		require.Equal(t, domain.TokenValid, state.Kind)
		require.Equal(t, "sub-1", state.Subject)
		require.Nil(t, state.User)
	})

	t.Run("expired access with matching refresh", func(t *testing.T) {
		state := auth.Authenticate(ctx, stale.AccessToken, stale.RefreshToken)
		require.Equal(t, domain.TokenRequiresRefresh, state.Kind)
		require.Equal(t, "sub-1", state.Subject)
		require.NotNil(t, state.User)
		require.Equal(t, "jdoe", state.User.PreferredUsername)
		require.Equal(t, int64(1), state.User.RefreshTokenVersion)
	})

	t.Run("missing cookies", func(t *testing.T) {
		require.Equal(t, domain.TokenInvalid, auth.Authenticate(ctx, "", "").Kind)
	})

	t.Run("refresh token for unknown user", func(t *testing.T) {
		ghost, err := newTestTokens(t, time.Now().Add(-time.Hour)).IssuePair("ghost", domain.RoleUser, 1)
		require.NoError(t, err)
		require.Equal(t, domain.TokenInvalid, auth.Authenticate(ctx, ghost.AccessToken, ghost.RefreshToken).Kind)
	})

	t.Run("access token presented as refresh token", func(t *testing.T) {
		require.Equal(t, domain.TokenInvalid, auth.Authenticate(ctx, "", fresh.AccessToken).Kind)
	})

	t.Run("version bumped after issue", func(t *testing.T) {
		_, err := st.Users().BumpRefreshTokenVersion(ctx, "sub-1")
		require.NoError(t, err)

		state := auth.Authenticate(ctx, stale.AccessToken, stale.RefreshToken)
		require.Equal(t, domain.TokenInvalid, state.Kind)
		require.Empty(t, state.Subject)

		// Access tokens run to expiry regardless.
		require.Equal(t, domain.TokenValid, auth.Authenticate(ctx, fresh.AccessToken, stale.RefreshToken).Kind)
	})

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.AuthDecisions.WithLabelValues("valid")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthDecisions.WithLabelValues("requires_refresh")))
	require.Equal(t, 4.0, testutil.ToFloat64(metrics.AuthDecisions.WithLabelValues("invalid")))
}
