package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
	"github.com/aussiebroadwan/wateroflife/internal/auth/observability"
	"github.com/aussiebroadwan/wateroflife/internal/auth/oidc"
	"github.com/aussiebroadwan/wateroflife/internal/auth/session"
	"github.com/aussiebroadwan/wateroflife/internal/auth/store"
	"github.com/aussiebroadwan/wateroflife/pkg/cryptox"
	"github.com/aussiebroadwan/wateroflife/pkg/jwtx"
	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
)

// NonceKey is the session key the login nonce lives under.
const NonceKey = "nonce"

// DefaultAdminRole is the provider-side role that maps to domain.RoleAdmin.
const DefaultAdminRole = "wol-admin"

// IdentityProvider is the part of the OIDC client the exchange needs.
type IdentityProvider interface {
	Issuer() string
	AuthCodeURL(nonce string) string
	Exchange(ctx context.Context, code string) (oidc.Tokens, error)
	Roles(ctx context.Context, accessToken string) ([]string, error)
}

// CallbackParams are the query parameters the provider redirects back with.
type CallbackParams struct {
	Code         string
	SessionState string
	Issuer       string // RFC 9207, optional
	Error        string
}

// ExchangeService runs the two legs of the authorization-code login.
type ExchangeService struct {
	Provider IdentityProvider
	Keys     jwtx.KeySource
	Sessions session.Store
	Store    store.Store
	Tokens   *TokenService
	ClientID string

	// AdminRole defaults to DefaultAdminRole.
	AdminRole string

	// NewNonce defaults to 32 random bytes from crypto/rand.
	NewNonce func() (string, error)

	Metrics *observability.Metrics
}

func (s *ExchangeService) nonce() (string, error) {
	if s.NewNonce != nil {
		return s.NewNonce()
	}
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

// Login stores a fresh nonce for sessionID and returns the provider URL to
// send the browser to.
func (s *ExchangeService) Login(ctx context.Context, sessionID string) (string, error) {
	nonce, err := s.nonce()
	if err != nil {
		s.Metrics.ObserveLogin("error")
		return "", fmt.Errorf("%w: generate nonce: %w", ErrInternal, err)
	}
	if err := s.Sessions.Put(ctx, sessionID, NonceKey, nonce); err != nil {
		s.Metrics.ObserveLogin("error")
		return "", fmt.Errorf("%w: store nonce: %w", ErrInternal, err)
	}
	s.Metrics.ObserveLogin("redirect")
	return s.Provider.AuthCodeURL(nonce), nil
}

// Callback completes the login. The session's nonce is consumed before
// anything else so a replayed callback fails even if this one does.
func (s *ExchangeService) Callback(ctx context.Context, sessionID string, p CallbackParams) (domain.TokenPair, domain.User, error) {
	pair, user, err := s.callback(ctx, sessionID, p)
	if err != nil {
		s.Metrics.ObserveCallback(outcome(err))
		return domain.TokenPair{}, domain.User{}, err
	}
	s.Metrics.ObserveCallback("success")
	s.Metrics.ObserveIssued("login")
	return pair, user, nil
}

func (s *ExchangeService) callback(ctx context.Context, sessionID string, p CallbackParams) (domain.TokenPair, domain.User, error) {
	l := slogx.FromContext(ctx)

	expected, err := s.Sessions.Take(ctx, sessionID, NonceKey)
	if errors.Is(err, session.ErrNotFound) {
		return domain.TokenPair{}, domain.User{}, ErrNonceNotFound
	}
	if err != nil {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("%w: take nonce: %w", ErrInternal, err)
	}

	if p.Error != "" {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("%w: provider returned %q", ErrExchange, p.Error)
	}
	if p.Code == "" {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("%w: no code", ErrExchange)
	}

	if p.Issuer != "" && p.Issuer != s.Provider.Issuer() {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("%w: got %q", ErrIssuerMismatch, p.Issuer)
	}

	tokens, err := s.Provider.Exchange(ctx, p.Code)
	if errors.Is(err, oidc.ErrMissingIDToken) {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("%w: %w", ErrIdentityToken, err)
	}
	if err != nil {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("%w: %w", ErrProviderUnreachable, err)
	}

	id, err := jwtx.Verify[jwtx.IDClaims](tokens.IDToken, s.ClientID, s.Keys)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("%w: %w", ErrIdentityToken, err)
	}
	if id.Issuer != s.Provider.Issuer() {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("%w: issued by %q", ErrIdentityToken, id.Issuer)
	}
	if subtle.ConstantTimeCompare([]byte(id.Nonce), []byte(expected)) != 1 {
		return domain.TokenPair{}, domain.User{}, ErrNonceMismatch
	}

	role := s.resolveRole(ctx, tokens.AccessToken)

	var user domain.User
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpsertUser(ctx, domain.User{
			ID:                id.Subject,
			PreferredUsername: id.PreferredUsername,
			Email:             id.Email,
			Role:              role,
		}); err != nil {
			return err
		}
		var err error
		user, err = tx.Users().GetUserByID(ctx, id.Subject)
		return err
	})
	if err != nil {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	pair, err := s.Tokens.IssuePair(user.ID, user.Role, user.RefreshTokenVersion)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	l.Info("login completed", "sub", user.ID, "role", user.Role)
	return pair, user, nil
}

// resolveRole maps provider roles onto ours. A userinfo failure costs the
// user their admin rights for this session, not their login.
func (s *ExchangeService) resolveRole(ctx context.Context, accessToken string) string {
	adminRole := s.AdminRole
	if adminRole == "" {
		adminRole = DefaultAdminRole
	}

	roles, err := s.Provider.Roles(ctx, accessToken)
	if err != nil {
		slogx.FromContext(ctx).Warn("role lookup failed, defaulting to user", "error", err)
		return domain.RoleUser
	}
	if slices.Contains(roles, adminRole) {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}

func outcome(err error) string {
	for _, e := range []error{
		ErrExchange,
		ErrNonceNotFound,
		ErrNonceMismatch,
		ErrIssuerMismatch,
		ErrIdentityToken,
		ErrProviderUnreachable,
		ErrStoreUnavailable,
	} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "error"
}
