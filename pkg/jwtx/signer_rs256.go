package jwtx

import (
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"
)

// RS256Signer signs with an RSA private key and stamps its kid on every
// token. We never sign with RSA in production, the provider does; this is
// what stands in for the provider in tests.
type RS256Signer struct {
	kid string
	key *rsa.PrivateKey
}

func NewSignerRS256(kid string, key *rsa.PrivateKey) *RS256Signer {
	return &RS256Signer{kid: kid, key: key}
}

func (s *RS256Signer) Alg() string { return jwt.SigningMethodRS256.Alg() }
func (s *RS256Signer) KID() string { return s.kid }

func (s *RS256Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.kid != "" {
		t.Header["kid"] = s.kid
	}
	return t.SignedString(s.key)
}

// PublicJWK is the JWKS entry that verifies this signer's tokens.
func (s *RS256Signer) PublicJWK() JWK {
	return NewRSAJWK(s.kid, "sig", s.Alg(), &s.key.PublicKey)
}
