package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// Token sizes in bytes before encoding.
const (
	TokenSize128 = 16 // 22 chars base64url
	TokenSize256 = 32 // 43 chars base64url, nonces and session ids
)

// GenerateToken returns size random bytes from crypto/rand, base64url
// encoded without padding. A failing entropy source is reported, never
// papered over.
func GenerateToken(size int) (string, error) {
	return GenerateTokenFrom(rand.Reader, size)
}

// GenerateTokenFrom is GenerateToken with an explicit entropy source.
func GenerateTokenFrom(r io.Reader, size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("cryptox: read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns the base64url SHA-256 of token. Used to key
// server-side state by a browser secret without storing the secret.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
