package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// JWK represents a public key in JSON Web Key format (RFC 7517).
// Identity providers publish RSA keys with an x5c chain alongside the raw
// modulus and exponent, so both forms are accepted.
type JWK struct {
	Kty string `json:"kty"`           // key type: "RSA", "EC", "OKP"
	Use string `json:"use,omitempty"` // "sig" or "enc"
	Alg string `json:"alg,omitempty"` // e.g. "RS256"
	Kid string `json:"kid,omitempty"`

	// RSA
	N string `json:"n,omitempty"` // modulus (base64url)
	E string `json:"e,omitempty"` // exponent (base64url)

	// EC and OKP
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`

	// Certificate chain, leaf first. Entries are standard base64 DER.
	X5c     []string `json:"x5c,omitempty"`
	X5t     string   `json:"x5t,omitempty"`
	X5tS256 string   `json:"x5t#S256,omitempty"`
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewRSAJWK builds a JWK for an RSA public key.
func NewRSAJWK(kid, use, alg string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: use,
		Alg: alg,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// PublicKey decodes the JWK into a crypto public key. When an x5c chain is
// present the leaf certificate wins over the raw parameters.
func (j JWK) PublicKey() (any, error) {
	if len(j.X5c) > 0 {
		return publicKeyFromCertificate(j.X5c[0])
	}

	switch j.Kty {
	case "RSA":
		nb, err := base64.RawURLEncoding.DecodeString(j.N)
		if err != nil {
			return nil, fmt.Errorf("%w: rsa modulus: %w", ErrDecode, err)
		}
		eb, err := base64.RawURLEncoding.DecodeString(j.E)
		if err != nil {
			return nil, fmt.Errorf("%w: rsa exponent: %w", ErrDecode, err)
		}
		if len(nb) == 0 || len(eb) == 0 {
			return nil, fmt.Errorf("%w: empty rsa parameters", ErrDecode)
		}
		e := new(big.Int).SetBytes(eb)
		if !e.IsInt64() || e.Int64() > 1<<31-1 {
			return nil, fmt.Errorf("%w: rsa exponent out of range", ErrDecode)
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}, nil

	case "EC":
		curve, err := ellipticCurve(j.Crv)
		if err != nil {
			return nil, err
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return nil, fmt.Errorf("%w: ec x: %w", ErrDecode, err)
		}
		yb, err := base64.RawURLEncoding.DecodeString(j.Y)
		if err != nil {
			return nil, fmt.Errorf("%w: ec y: %w", ErrDecode, err)
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(xb),
			Y:     new(big.Int).SetBytes(yb),
		}, nil

	case "OKP":
		if j.Crv != "Ed25519" {
			return nil, fmt.Errorf("%w: okp curve %q", ErrUnknownAlgorithm, j.Crv)
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return nil, fmt.Errorf("%w: okp x: %w", ErrDecode, err)
		}
		if len(xb) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: ed25519 key size %d", ErrDecode, len(xb))
		}
		return ed25519.PublicKey(xb), nil

	default:
		return nil, fmt.Errorf("%w: kty %q", ErrUnknownAlgorithm, j.Kty)
	}
}

func publicKeyFromCertificate(encoded string) (any, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificate, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificate, err)
	}
	if cert.PublicKey == nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificate, errors.New("no public key"))
	}
	return cert.PublicKey, nil
}

func ellipticCurve(crv string) (elliptic.Curve, error) {
	switch crv {
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("%w: ec curve %q", ErrUnknownAlgorithm, crv)
	}
}
