package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
	"github.com/aussiebroadwan/wateroflife/internal/auth/observability"
	"github.com/aussiebroadwan/wateroflife/internal/auth/oidc"
	"github.com/aussiebroadwan/wateroflife/internal/auth/oidc/oidctest"
	"github.com/aussiebroadwan/wateroflife/internal/auth/session"
	"github.com/aussiebroadwan/wateroflife/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/wateroflife/pkg/jwtx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "wateroflife"
	testClientSecret = "client-secret"
)

type exchangeFixture struct {
	svc      *ExchangeService
	idp      *oidctest.Server
	store    *sqlite.Store
	sessions *session.MemoryStore
	metrics  *observability.Metrics
	nonce    string
}

func newExchangeFixture(t *testing.T) *exchangeFixture {
	t.Helper()
	ctx := context.Background()

	idp := oidctest.NewServer(t, testClientID, testClientSecret)
	provider, err := oidc.Discover(ctx, idp.Issuer(), oidc.ClientConfig{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURL:  "http://localhost:3000/oidc/token",
	})
	require.NoError(t, err)

	set, err := provider.FetchJWKS(ctx)
	require.NoError(t, err)
	keys, err := jwtx.NewRegistry(set)
	require.NoError(t, err)

	f := &exchangeFixture{
		idp:      idp,
		store:    newTestStore(t),
		sessions: session.NewMemoryStore(64, time.Minute),
		metrics:  observability.NewMetrics(),
		nonce:    "fixed-nonce",
	}
	f.svc = &ExchangeService{
		Provider: provider,
		Keys:     keys,
		Sessions: f.sessions,
		Store:    f.store,
		Tokens:   newTestTokens(t, time.Now()),
		ClientID: testClientID,
		NewNonce: func() (string, error) { return f.nonce, nil },
		Metrics:  f.metrics,
	}
	return f
}

// login runs the first leg and has the provider issue a code for g.
func (f *exchangeFixture) login(t *testing.T, sid string, g oidctest.Grant) string {
	t.Helper()
	authURL, err := f.svc.Login(context.Background(), sid)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, f.nonce, u.Query().Get("nonce"))

	if g.Nonce == "" {
		g.Nonce = f.nonce
	}
	return f.idp.IssueCode(g)
}

func TestLogin(t *testing.T) {
	f := newExchangeFixture(t)

	authURL, err := f.svc.Login(context.Background(), "sid-1")
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, testClientID, q.Get("client_id"))
	require.Equal(t, "fixed-nonce", q.Get("nonce"))
	require.False(t, q.Has("state"))

	stored, err := f.sessions.Take(context.Background(), "sid-1", NonceKey)
	require.NoError(t, err)
	require.Equal(t, "fixed-nonce", stored)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Logins.WithLabelValues("redirect")))
}

func TestLogin_EntropyFailure(t *testing.T) {
	f := newExchangeFixture(t)
	f.svc.NewNonce = func() (string, error) { return "", errors.New("no entropy") }

	authURL, err := f.svc.Login(context.Background(), "sid-1")
	require.ErrorIs(t, err, ErrInternal)
	require.Empty(t, authURL)
	require.Zero(t, f.sessions.Len())
}

func TestCallback_AdminLogin(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t)

	code := f.login(t, "sid-1", oidctest.Grant{
		Subject:           "sub-1",
		PreferredUsername: "jdoe",
		Email:             "jdoe@example.com",
		Roles:             []string{"offline_access", DefaultAdminRole},
	})

	pair, user, err := f.svc.Callback(ctx, "sid-1", CallbackParams{Code: code, Issuer: f.idp.Issuer()})
	require.NoError(t, err)
	require.Equal(t, "sub-1", user.ID)
	require.Equal(t, domain.RoleAdmin, user.Role)
	require.Equal(t, int64(domain.InitialRefreshTokenVersion), user.RefreshTokenVersion)

	access, err := jwtx.Verify[jwtx.AccessClaims](pair.AccessToken, testAudience, jwtx.HMACSecret(testAccessSecret))
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, access.Role)

	refresh, err := jwtx.Verify[jwtx.RefreshClaims](pair.RefreshToken, testAudience, jwtx.HMACSecret(testRefreshSecret))
	require.NoError(t, err)
	require.Equal(t, int64(1), refresh.Version)

	stored, err := f.store.Users().GetUserByID(ctx, "sub-1")
	require.NoError(t, err)
	require.Equal(t, "jdoe", stored.PreferredUsername)
	require.Equal(t, "jdoe@example.com", stored.Email)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Callbacks.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TokensIssued.WithLabelValues("login")))
}

func TestCallback_ReplayFails(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t)

	grant := oidctest.Grant{Subject: "sub-1", PreferredUsername: "jdoe"}
	code := f.login(t, "sid-1", grant)
	_, _, err := f.svc.Callback(ctx, "sid-1", CallbackParams{Code: code})
	require.NoError(t, err)

	again := f.idp.IssueCode(oidctest.Grant{Subject: "sub-1", Nonce: f.nonce})
	_, _, err = f.svc.Callback(ctx, "sid-1", CallbackParams{Code: again})
	require.ErrorIs(t, err, ErrNonceNotFound)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Callbacks.WithLabelValues(ErrNonceNotFound.Error())))
}

func TestCallback_UnknownSession(t *testing.T) {
	f := newExchangeFixture(t)
	code := f.idp.IssueCode(oidctest.Grant{Subject: "sub-1", Nonce: f.nonce})

	_, _, err := f.svc.Callback(context.Background(), "never-logged-in", CallbackParams{Code: code})
	require.ErrorIs(t, err, ErrNonceNotFound)
}

func TestCallback_NonceMismatch(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t)

	code := f.login(t, "sid-1", oidctest.Grant{Subject: "sub-1", Nonce: "attacker-nonce"})
	_, _, err := f.svc.Callback(ctx, "sid-1", CallbackParams{Code: code})
	require.ErrorIs(t, err, ErrNonceMismatch)

	// Nothing persisted, and the nonce is gone.
	_, err = f.store.Users().GetUserByID(ctx, "sub-1")
	require.Error(t, err)
	_, err = f.sessions.Take(ctx, "sid-1", NonceKey)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestCallback_UserinfoFailureDefaultsToUser(t *testing.T) {
	f := newExchangeFixture(t)
	f.idp.FailUserinfo.Store(true)

	code := f.login(t, "sid-1", oidctest.Grant{Subject: "sub-1", Roles: []string{DefaultAdminRole}})
	_, user, err := f.svc.Callback(context.Background(), "sid-1", CallbackParams{Code: code})
	require.NoError(t, err)
	require.Equal(t, domain.RoleUser, user.Role)
}

func TestCallback_CustomAdminRole(t *testing.T) {
	f := newExchangeFixture(t)
	f.svc.AdminRole = "superuser"

	code := f.login(t, "sid-1", oidctest.Grant{Subject: "sub-1", Roles: []string{DefaultAdminRole}})
	_, user, err := f.svc.Callback(context.Background(), "sid-1", CallbackParams{Code: code})
	require.NoError(t, err)
	require.Equal(t, domain.RoleUser, user.Role)

	code = f.login(t, "sid-2", oidctest.Grant{Subject: "sub-1", Roles: []string{"superuser"}})
	_, user, err = f.svc.Callback(context.Background(), "sid-2", CallbackParams{Code: code})
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, user.Role)
}

func TestCallback_ReloginKeepsVersion(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t)

	code := f.login(t, "sid-1", oidctest.Grant{Subject: "sub-1", PreferredUsername: "old"})
	_, _, err := f.svc.Callback(ctx, "sid-1", CallbackParams{Code: code})
	require.NoError(t, err)

	v, err := f.store.Users().BumpRefreshTokenVersion(ctx, "sub-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	code = f.login(t, "sid-2", oidctest.Grant{Subject: "sub-1", PreferredUsername: "new"})
	pair, user, err := f.svc.Callback(ctx, "sid-2", CallbackParams{Code: code})
	require.NoError(t, err)
	require.Equal(t, "new", user.PreferredUsername)
	require.Equal(t, int64(2), user.RefreshTokenVersion)

	refresh, err := jwtx.Verify[jwtx.RefreshClaims](pair.RefreshToken, testAudience, jwtx.HMACSecret(testRefreshSecret))
	require.NoError(t, err)
	require.Equal(t, int64(2), refresh.Version)
}

func TestCallback_Failures(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *exchangeFixture)
		params  func(f *exchangeFixture, code string) CallbackParams
		want    error
	}{
		{
			name:   "provider error",
			params: func(_ *exchangeFixture, code string) CallbackParams { return CallbackParams{Code: code, Error: "access_denied"} },
			want:   ErrExchange,
		},
		{
			name:   "missing code",
			params: func(*exchangeFixture, string) CallbackParams { return CallbackParams{} },
			want:   ErrExchange,
		},
		{
			name: "issuer mismatch",
			params: func(_ *exchangeFixture, code string) CallbackParams {
				return CallbackParams{Code: code, Issuer: "https://evil.example.com"}
			},
			want: ErrIssuerMismatch,
		},
		{
			name:    "token endpoint down",
			prepare: func(f *exchangeFixture) { f.idp.FailToken.Store(true) },
			want:    ErrProviderUnreachable,
		},
		{
			name:    "no id token",
			prepare: func(f *exchangeFixture) { f.idp.OmitIDToken.Store(true) },
			want:    ErrIdentityToken,
		},
		{
			name:    "id token for another client",
			prepare: func(f *exchangeFixture) { f.svc.ClientID = "someone-else" },
			want:    ErrIdentityToken,
		},
		{
			name: "unknown code",
			params: func(*exchangeFixture, string) CallbackParams {
				return CallbackParams{Code: "made-up"}
			},
			want: ErrProviderUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExchangeFixture(t)
			if tt.prepare != nil {
				tt.prepare(f)
			}
			code := f.login(t, "sid-1", oidctest.Grant{Subject: "sub-1"})

			params := CallbackParams{Code: code}
			if tt.params != nil {
				params = tt.params(f, code)
			}

			pair, _, err := f.svc.Callback(context.Background(), "sid-1", params)
			require.ErrorIs(t, err, tt.want)
			require.Empty(t, pair.AccessToken)
			require.Equal(t, 0.0, testutil.ToFloat64(f.metrics.Callbacks.WithLabelValues("success")))
		})
	}
}

func TestCallback_FailedAttemptConsumesNonce(t *testing.T) {
	tests := map[string]CallbackParams{
		"provider error": {Error: "access_denied"},
		"missing code":   {},
	}
	for name, first := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newExchangeFixture(t)
			code := f.login(t, "sid-1", oidctest.Grant{Subject: "sub-1"})

			_, _, err := f.svc.Callback(ctx, "sid-1", first)
			require.ErrorIs(t, err, ErrExchange)
			require.Zero(t, f.sessions.Len())

			_, _, err = f.svc.Callback(ctx, "sid-1", CallbackParams{Code: code})
			require.ErrorIs(t, err, ErrNonceNotFound)
		})
	}
}
