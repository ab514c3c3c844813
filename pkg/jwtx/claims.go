package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Lifetimes of the application's own tokens.
const (
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Roles an access token may carry.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// CommonClaims is the envelope shared by every token we read or write.
// The provider-specific fields only ever appear on identity tokens.
type CommonClaims struct {
	jwt.RegisteredClaims

	Nonce        string           `json:"nonce,omitempty"`
	SID          string           `json:"sid,omitempty"`
	AuthTime     *jwt.NumericDate `json:"auth_time,omitempty"`
	SessionState string           `json:"session_state,omitempty"`
	AZP          string           `json:"azp,omitempty"`
}

// AccessClaims are carried by the short lived access token.
type AccessClaims struct {
	CommonClaims

	Role string `json:"role"`

	// Reserved, always empty for now.
	AdditionalScopes []string `json:"additional_scopes"`
}

// Validate rejects access tokens that verified but are missing fields.
func (c AccessClaims) Validate() error {
	if c.Subject == "" {
		return errors.New("jwtx: access token has no subject")
	}
	if c.Role != RoleAdmin && c.Role != RoleUser {
		return errors.New("jwtx: access token has unknown role")
	}
	return nil
}

// RefreshClaims are carried by the long lived refresh token. Version must
// match the user's persisted refresh_token_version to be honoured.
type RefreshClaims struct {
	CommonClaims

	Version int64 `json:"version"`
}

func (c RefreshClaims) Validate() error {
	if c.Subject == "" {
		return errors.New("jwtx: refresh token has no subject")
	}
	if c.Version < 1 {
		return errors.New("jwtx: refresh token has no version")
	}
	return nil
}

// IDClaims is the subset of an OpenID Connect identity token we consume.
type IDClaims struct {
	CommonClaims

	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	Name              string `json:"name,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
}

func (c IDClaims) Validate() error {
	if c.Subject == "" {
		return errors.New("jwtx: identity token has no subject")
	}
	return nil
}

func newCommonClaims(subject, issuer, audience string, ttl time.Duration, now time.Time) CommonClaims {
	return CommonClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
	}
}

// NewAccessClaims builds access claims with an empty scope list.
func NewAccessClaims(subject, role, issuer, audience string, ttl time.Duration, now time.Time) AccessClaims {
	return AccessClaims{
		CommonClaims:     newCommonClaims(subject, issuer, audience, ttl, now),
		Role:             role,
		AdditionalScopes: []string{},
	}
}

// NewRefreshClaims builds refresh claims pinned to version.
func NewRefreshClaims(subject string, version int64, issuer, audience string, ttl time.Duration, now time.Time) RefreshClaims {
	return RefreshClaims{
		CommonClaims: newCommonClaims(subject, issuer, audience, ttl, now),
		Version:      version,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
