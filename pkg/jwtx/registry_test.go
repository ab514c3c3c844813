package jwtx_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"testing"

	"github.com/aussiebroadwan/wateroflife/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_RSAParameters(t *testing.T) {
	key := newRSAKey(t)
	reg, err := jwtx.NewRegistry(jwtx.JWKS{Keys: []jwtx.JWK{
		jwtx.NewRSAJWK("kid-1", "sig", "RS256", &key.PublicKey),
	}})
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())
	require.Equal(t, []string{"kid-1"}, reg.KeyIDs())
	require.Equal(t, []string{"RS256"}, reg.Algorithms())

	got, err := reg.Resolve("RS256", "kid-1")
	require.NoError(t, err)
	pub, ok := got.(*rsa.PublicKey)
	require.True(t, ok)
	require.Equal(t, 0, key.PublicKey.N.Cmp(pub.N))
	require.Equal(t, key.PublicKey.E, pub.E)
}

func TestNewRegistry_CertificateChain(t *testing.T) {
	key := newRSAKey(t)
	der := selfSignedDER(t, key)

	reg, err := jwtx.NewRegistry(jwtx.JWKS{Keys: []jwtx.JWK{{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: "cert-key",
		X5c: []string{base64.StdEncoding.EncodeToString(der)},
	}}})
	require.NoError(t, err)

	got, err := reg.Resolve("RS256", "cert-key")
	require.NoError(t, err)
	pub, ok := got.(*rsa.PublicKey)
	require.True(t, ok)
	require.Equal(t, 0, key.PublicKey.N.Cmp(pub.N))
}

func TestNewRegistry_MalformedCertificate(t *testing.T) {
	_, err := jwtx.NewRegistry(jwtx.JWKS{Keys: []jwtx.JWK{{
		Kty: "RSA",
		Alg: "RS256",
		Kid: "broken",
		X5c: []string{base64.StdEncoding.EncodeToString([]byte("not a certificate"))},
	}}})
	require.ErrorIs(t, err, jwtx.ErrCertificate)

	_, err = jwtx.NewRegistry(jwtx.JWKS{Keys: []jwtx.JWK{{
		Kty: "RSA",
		Kid: "broken",
		X5c: []string{"%%%"},
	}}})
	require.ErrorIs(t, err, jwtx.ErrCertificate)
}

func TestNewRegistry_Empty(t *testing.T) {
	_, err := jwtx.NewRegistry(jwtx.JWKS{})
	require.ErrorIs(t, err, jwtx.ErrNoKey)

	// Encryption keys are not verification keys.
	key := newRSAKey(t)
	_, err = jwtx.NewRegistry(jwtx.JWKS{Keys: []jwtx.JWK{
		jwtx.NewRSAJWK("enc", "enc", "RSA-OAEP", &key.PublicKey),
	}})
	require.ErrorIs(t, err, jwtx.ErrNoKey)
}

func TestNewRegistry_RejectsSymmetricAlgorithm(t *testing.T) {
	key := newRSAKey(t)
	_, err := jwtx.NewRegistry(jwtx.JWKS{Keys: []jwtx.JWK{
		jwtx.NewRSAJWK("kid", "sig", "HS256", &key.PublicKey),
	}})
	require.ErrorIs(t, err, jwtx.ErrUnknownAlgorithm)
}

func TestRegistry_Resolve(t *testing.T) {
	first := newRSAKey(t)
	second := newRSAKey(t)

	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	x := make([]byte, 32)
	y := make([]byte, 32)
	ec.PublicKey.X.FillBytes(x)
	ec.PublicKey.Y.FillBytes(y)

	reg, err := jwtx.NewRegistry(jwtx.JWKS{Keys: []jwtx.JWK{
		jwtx.NewRSAJWK("first", "sig", "RS256", &first.PublicKey),
		jwtx.NewRSAJWK("second", "sig", "RS256", &second.PublicKey),
		{
			Kty: "EC", Use: "sig", Alg: "ES256", Kid: "ec", Crv: "P-256",
			X: base64.RawURLEncoding.EncodeToString(x),
			Y: base64.RawURLEncoding.EncodeToString(y),
		},
	}})
	require.NoError(t, err)
	require.Equal(t, 3, reg.Len())

	t.Run("kid selects the key", func(t *testing.T) {
		got, err := reg.Resolve("RS256", "first")
		require.NoError(t, err)
		require.Equal(t, 0, first.PublicKey.N.Cmp(got.(*rsa.PublicKey).N))
	})

	t.Run("without kid the last key for the algorithm wins", func(t *testing.T) {
		got, err := reg.Resolve("RS256", "")
		require.NoError(t, err)
		require.Equal(t, 0, second.PublicKey.N.Cmp(got.(*rsa.PublicKey).N))
	})

	t.Run("ec key", func(t *testing.T) {
		got, err := reg.Resolve("ES256", "ec")
		require.NoError(t, err)
		_, ok := got.(*ecdsa.PublicKey)
		require.True(t, ok)
	})

	t.Run("unknown kid", func(t *testing.T) {
		_, err := reg.Resolve("RS256", "nope")
		require.ErrorIs(t, err, jwtx.ErrUnknownAlgorithm)
	})

	t.Run("algorithm differs from key", func(t *testing.T) {
		_, err := reg.Resolve("ES256", "first")
		require.ErrorIs(t, err, jwtx.ErrUnknownAlgorithm)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := reg.Resolve("PS512", "")
		require.ErrorIs(t, err, jwtx.ErrUnknownAlgorithm)
	})
}

func TestRegistry_KeyWithoutAlgorithmChecksKeyType(t *testing.T) {
	key := newRSAKey(t)
	jwk := jwtx.NewRSAJWK("plain", "", "", &key.PublicKey)

	reg, err := jwtx.NewRegistry(jwtx.JWKS{Keys: []jwtx.JWK{jwk}})
	require.NoError(t, err)

	_, err = reg.Resolve("RS256", "plain")
	require.NoError(t, err)

	_, err = reg.Resolve("ES256", "plain")
	require.ErrorIs(t, err, jwtx.ErrUnknownAlgorithm)
}
