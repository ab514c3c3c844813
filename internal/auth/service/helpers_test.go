package service

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/wateroflife/internal/auth/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer        = "http://localhost:3000"
	testAudience      = "wateroflife"
	testAccessSecret  = "access-secret-for-tests"
	testRefreshSecret = "refresh-secret-for-tests"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestTokens(t *testing.T, now time.Time) *TokenService {
	t.Helper()
	ts, err := NewTokenService([]byte(testAccessSecret), []byte(testRefreshSecret), testIssuer, testAudience)
	require.NoError(t, err)
	ts.Now = func() time.Time { return now }
	return ts
}
