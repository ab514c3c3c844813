package jwtx

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Leeway is the clock skew tolerated on exp, nbf and iat. The provider's
// clock and ours are never exactly in step.
const Leeway = 60 * time.Second

var (
	ErrInvalidFormat    = errors.New("jwtx: invalid token format")
	ErrDecode           = errors.New("jwtx: decode error")
	ErrUnknownAlgorithm = errors.New("jwtx: unknown algorithm")
	ErrInvalidSignature = errors.New("jwtx: invalid signature")
	ErrInvalidClaims    = errors.New("jwtx: invalid claims")
	ErrCertificate      = errors.New("jwtx: invalid certificate")
	ErrNoKey            = errors.New("jwtx: key not found")

	// Wrapped alongside ErrInvalidSignature.
	ErrAudience = errors.New("jwtx: audience mismatch")
	ErrExpired  = errors.New("jwtx: token expired")
)

// KeySource hands out verification keys for a token header.
type KeySource interface {
	// Methods lists the algorithms this source accepts.
	Methods() []string
	// Key returns the key for alg and kid, or ErrUnknownAlgorithm.
	Key(alg, kid string) (any, error)
}

// HMACSecret is a KeySource for HS256 tokens signed with a shared secret.
type HMACSecret []byte

func (s HMACSecret) Methods() []string {
	return []string{jwt.SigningMethodHS256.Alg()}
}

func (s HMACSecret) Key(alg, _ string) (any, error) {
	if alg != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	if len(s) == 0 {
		return nil, ErrNoKey
	}
	return []byte(s), nil
}

// Header is the JOSE header of a compact token.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
	Typ string `json:"typ,omitempty"`
}

// ParseHeader decodes the header segment without verifying anything.
func ParseHeader(token string) (Header, error) {
	seg, _, ok := strings.Cut(token, ".")
	if !ok {
		return Header{}, ErrInvalidFormat
	}
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return Header{}, fmt.Errorf("%w: header: %w", ErrDecode, err)
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Header{}, fmt.Errorf("%w: header: %w", ErrDecode, err)
	}
	if h.Alg == "" {
		return Header{}, fmt.Errorf("%w: header has no alg", ErrUnknownAlgorithm)
	}
	return h, nil
}

// HeaderAlgorithm returns the alg a token claims to be signed with.
func HeaderAlgorithm(token string) (string, error) {
	h, err := ParseHeader(token)
	if err != nil {
		return "", err
	}
	return h.Alg, nil
}

type claimsPtr[T any] interface {
	*T
	jwt.Claims
}

// Verify checks token against src and decodes it into T. The audience must
// match exactly and an expiry is required. Every failure is an error; a
// nil error means the claims are authentic, current and complete.
func Verify[T any, P claimsPtr[T]](token, audience string, src KeySource) (*T, error) {
	h, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(src.Methods(), h.Alg) {
		return nil, fmt.Errorf("%w: %q not accepted here", ErrUnknownAlgorithm, h.Alg)
	}
	key, err := src.Key(h.Alg, h.Kid)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{h.Alg}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(Leeway),
	)

	claims := P(new(T))
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return nil, classify(err)
	}
	return (*T)(claims), nil
}

// classify maps golang-jwt errors onto our taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, ErrAudience)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, ErrExpired)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrDecode, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrUnknownAlgorithm, err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
}
