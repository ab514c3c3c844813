package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Signer turns claims into a compact signed token.
type Signer interface {
	Alg() string
	Sign(jwt.Claims) (string, error)
}

// HS256Signer signs with a shared secret. Its Secret is the matching
// KeySource for verification.
type HS256Signer struct {
	secret HMACSecret
}

// NewSignerHS256 copies secret so later mutation by the caller is harmless.
func NewSignerHS256(secret []byte) (*HS256Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwtx: empty HMAC secret")
	}
	return &HS256Signer{secret: HMACSecret(append([]byte(nil), secret...))}, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

func (s *HS256Signer) Sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
}

// Secret returns the verification side of the signer.
func (s *HS256Signer) Secret() HMACSecret { return s.secret }
