package session

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/wateroflife/pkg/cryptox"
	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
)

const CookieName = "wl_sid"

// Manager binds a Store to the browser through the session id cookie.
type Manager struct {
	TTL    time.Duration
	Secure bool
}

func (m Manager) cookieOptions() httpx.CookieOptions {
	ttl := m.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return httpx.CookieOptions{Path: "/", Secure: m.Secure, SameSite: http.SameSiteLaxMode, MaxAge: ttl}
}

// ID returns the session id presented by the browser.
func (m Manager) ID(r *http.Request) (string, bool) {
	id := httpx.CookieValue(r, CookieName)
	return id, id != ""
}

// Ensure returns the browser's session id, minting and setting a new one
// when none is present. The cookie is refreshed either way so an active
// browser keeps its session.
func (m Manager) Ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	id, ok := m.ID(r)
	if !ok {
		var err error
		id, err = cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return "", err
		}
	}
	httpx.SetCookie(w, CookieName, id, m.cookieOptions())
	return id, nil
}

// Clear drops the session cookie.
func (m Manager) Clear(w http.ResponseWriter) {
	httpx.ClearCookie(w, CookieName, m.cookieOptions())
}
