package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
)

const (
	AccessTokenCookie  = "wl_id"
	RefreshTokenCookie = "wl_rid"
)

// TokenCookies carries the application's token pair to and from the
// browser. Both cookies live as long as the refresh token so an expired
// access token still reaches the gate and can be refreshed.
type TokenCookies struct {
	// Secure should only be off for plain-http local development.
	Secure bool
}

func (c TokenCookies) options(maxAge time.Duration) httpx.CookieOptions {
	return httpx.CookieOptions{Path: "/", Secure: c.Secure, SameSite: http.SameSiteLaxMode, MaxAge: maxAge}
}

// Set overwrites both cookies with pair.
func (c TokenCookies) Set(w http.ResponseWriter, pair domain.TokenPair) {
	opts := c.options(time.Until(pair.RefreshExpiresAt))
	httpx.SetCookie(w, AccessTokenCookie, pair.AccessToken, opts)
	httpx.SetCookie(w, RefreshTokenCookie, pair.RefreshToken, opts)
}

func (c TokenCookies) Clear(w http.ResponseWriter) {
	opts := c.options(0)
	httpx.ClearCookie(w, AccessTokenCookie, opts)
	httpx.ClearCookie(w, RefreshTokenCookie, opts)
}

// Read returns the presented tokens. A missing cookie reads as "", which
// never verifies.
func (c TokenCookies) Read(r *http.Request) (access, refresh string) {
	return httpx.CookieValue(r, AccessTokenCookie), httpx.CookieValue(r, RefreshTokenCookie)
}
