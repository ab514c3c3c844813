package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
	"github.com/aussiebroadwan/wateroflife/pkg/jwtx"
)

// TokenService mints the application's own access/refresh token pairs.
type TokenService struct {
	AccessSigner  jwtx.Signer
	RefreshSigner jwtx.Signer
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewTokenService builds HS256 signers for both token kinds. The secrets
// must differ so a refresh token can never pass as an access token.
func NewTokenService(accessSecret, refreshSecret []byte, issuer, audience string) (*TokenService, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, errors.New("service: token secrets must not be empty")
	}
	if subtle.ConstantTimeCompare(accessSecret, refreshSecret) == 1 {
		return nil, errors.New("service: access and refresh secrets must differ")
	}

	access, err := jwtx.NewSignerHS256(accessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := jwtx.NewSignerHS256(refreshSecret)
	if err != nil {
		return nil, err
	}

	return &TokenService{
		AccessSigner:  access,
		RefreshSigner: refresh,
		Issuer:        issuer,
		Audience:      audience,
		AccessTTL:     jwtx.DefaultAccessTokenTTL,
		RefreshTTL:    jwtx.DefaultRefreshTokenTTL,
	}, nil
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// IssuePair signs a fresh pair for subject. The refresh token carries
// version, which must match the user's stored refresh_token_version for
// the token to be honoured later. Either both tokens come back or neither.
func (s *TokenService) IssuePair(subject, role string, version int64) (domain.TokenPair, error) {
	now := s.now()
	if now.Unix() <= 0 {
		return domain.TokenPair{}, ErrClock
	}
	if subject == "" {
		return domain.TokenPair{}, errors.New("service: issue pair: empty subject")
	}
	if !domain.ValidRole(role) {
		return domain.TokenPair{}, fmt.Errorf("service: issue pair: unknown role %q", role)
	}

	access, err := s.AccessSigner.Sign(jwtx.NewAccessClaims(subject, role, s.Issuer, s.Audience, s.AccessTTL, now))
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("service: sign access token: %w", err)
	}
	refresh, err := s.RefreshSigner.Sign(jwtx.NewRefreshClaims(subject, version, s.Issuer, s.Audience, s.RefreshTTL, now))
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("service: sign refresh token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.AccessTTL),
		RefreshExpiresAt: now.Add(s.RefreshTTL),
	}, nil
}
