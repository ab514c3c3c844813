package httpx

import (
	"net/http"
	"time"
)

// CookieOptions are the attributes shared by the cookies we set.
type CookieOptions struct {
	Path     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration // zero means a session cookie
}

// SetCookie writes an HttpOnly cookie. Script never needs to read any of
// our cookies.
func SetCookie(w http.ResponseWriter, name, value string, opts CookieOptions) {
	path := opts.Path
	if path == "" {
		path = "/"
	}
	sameSite := opts.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}

	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: sameSite,
	}
	if opts.MaxAge > 0 {
		c.MaxAge = int(opts.MaxAge.Seconds())
		c.Expires = time.Now().Add(opts.MaxAge)
	}
	http.SetCookie(w, c)
}

// ClearCookie expires name immediately.
func ClearCookie(w http.ResponseWriter, name string, opts CookieOptions) {
	path := opts.Path
	if path == "" {
		path = "/"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// CookieValue returns the named cookie's value or "" when absent.
func CookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
