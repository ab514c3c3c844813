package http

import (
	"net/http"

	"github.com/aussiebroadwan/wateroflife/internal/auth/service"
	"github.com/aussiebroadwan/wateroflife/internal/auth/session"
	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
)

const (
	// LoginPage is where a failed callback lands. The page offers a retry.
	LoginPage = "/login"
	HomePage  = "/"
)

// OIDCHandler serves the browser side of the provider login.
type OIDCHandler struct {
	Exchange *service.ExchangeService
	Sessions session.Manager
	Cookies  TokenCookies

	// EndSessionURL is the provider's logout page; empty sends the browser
	// home instead.
	EndSessionURL string
}

// HandleLogin serves GET /oidc/login.
func (h *OIDCHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sid, err := h.Sessions.Ensure(w, r)
	if err != nil {
		log.Error("create session", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Please try again later")
		return
	}

	target, err := h.Exchange.Login(ctx, sid)
	if err != nil {
		log.Error("start login", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Please try again later")
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleCallback serves GET /oidc/token, the redirect_uri. Every failure
// sends the browser to the login page; the reason is only logged.
func (h *OIDCHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sid, _ := h.Sessions.ID(r)
	h.Sessions.Clear(w)

	q := r.URL.Query()
	pair, user, err := h.Exchange.Callback(ctx, sid, service.CallbackParams{
		Code:         q.Get("code"),
		SessionState: q.Get("session_state"),
		Issuer:       q.Get("iss"),
		Error:        q.Get("error"),
	})
	if err != nil {
		log.Warn("login callback rejected", "error", err)
		httpx.NoCache(w)
		http.Redirect(w, r, LoginPage, http.StatusSeeOther)
		return
	}

	h.Cookies.Set(w, pair)
	log.Info("signed in", "sub", user.ID)
	httpx.NoCache(w)
	http.Redirect(w, r, HomePage, http.StatusSeeOther)
}

// HandleLogout serves GET /oidc/logout. Tokens already handed out stay
// valid until they expire; this only forgets them in this browser.
func (h *OIDCHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Cookies.Clear(w)
	h.Sessions.Clear(w)

	target := h.EndSessionURL
	if target == "" {
		target = HomePage
	}
	httpx.NoCache(w)
	http.Redirect(w, r, target, http.StatusSeeOther)
}
