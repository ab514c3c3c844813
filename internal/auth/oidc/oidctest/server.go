// Package oidctest runs an in-process OpenID Connect provider for tests.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/wateroflife/pkg/cryptox"
	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
	"github.com/aussiebroadwan/wateroflife/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

// Grant is the login a code stands for.
type Grant struct {
	Subject           string
	Nonce             string
	PreferredUsername string
	Email             string
	Roles             []string
}

type Server struct {
	*httptest.Server

	ClientID     string
	ClientSecret string
	Signer       *jwtx.RS256Signer

	mu     sync.Mutex
	codes  map[string]Grant
	access map[string]Grant

	// Failure switches, safe to flip while requests are in flight.
	FailToken    atomic.Bool
	FailUserinfo atomic.Bool
	OmitIDToken  atomic.Bool
}

// NewServer starts a provider that is shut down with the test.
func NewServer(t testing.TB, clientID, clientSecret string) *Server {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("oidctest: generate key: %v", err)
	}

	s := &Server{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Signer:       jwtx.NewSignerRS256("oidctest-key", key),
		codes:        make(map[string]Grant),
		access:       make(map[string]Grant),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", s.handleDiscovery)
	mux.HandleFunc("GET /certs", s.handleJWKS)
	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("GET /userinfo", s.handleUserinfo)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Issuer() string { return s.URL }

// IssueCode registers g and returns the authorization code for it.
func (s *Server) IssueCode(g Grant) string {
	code := cryptox.FingerprintToken(g.Subject + g.Nonce + time.Now().String())
	s.mu.Lock()
	s.codes[code] = g
	s.mu.Unlock()
	return code
}

// IDToken signs an identity token for g as the provider would.
func (s *Server) IDToken(g Grant, audience string) (string, error) {
	now := time.Now()
	return s.Signer.Sign(jwtx.IDClaims{
		CommonClaims: jwtx.CommonClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    s.URL,
				Subject:   g.Subject,
				Audience:  jwt.ClaimStrings{audience},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
			},
			Nonce:    g.Nonce,
			AuthTime: jwt.NewNumericDate(now),
			AZP:      audience,
		},
		PreferredUsername: g.PreferredUsername,
		Email:             g.Email,
	})
}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"issuer":                                s.URL,
		"authorization_endpoint":                s.URL + "/auth",
		"token_endpoint":                        s.URL + "/token",
		"userinfo_endpoint":                     s.URL + "/userinfo",
		"end_session_endpoint":                  s.URL + "/logout",
		"jwks_uri":                              s.URL + "/certs",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, jwtx.JWKS{Keys: []jwtx.JWK{s.Signer.PublicJWK()}})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if s.FailToken.Load() {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" ||
		r.PostForm.Get("client_id") != s.ClientID ||
		r.PostForm.Get("client_secret") != s.ClientSecret {
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	s.mu.Lock()
	g, ok := s.codes[r.PostForm.Get("code")]
	delete(s.codes, r.PostForm.Get("code"))
	s.mu.Unlock()
	if !ok {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	idToken, err := s.IDToken(g, s.ClientID)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	accessToken := cryptox.FingerprintToken(idToken)
	s.mu.Lock()
	s.access[accessToken] = g
	s.mu.Unlock()

	body := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   300,
	}
	if !s.OmitIDToken.Load() {
		body["id_token"] = idToken
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

func (s *Server) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	if s.FailUserinfo.Load() {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	g, ok := s.access[token]
	s.mu.Unlock()
	if !ok {
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	roles := g.Roles
	if roles == nil {
		roles = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"sub":                g.Subject,
		"preferred_username": g.PreferredUsername,
		"resource_access": map[string]any{
			s.ClientID: map[string]any{"roles": roles},
			"account":  map[string]any{"roles": []string{"manage-account"}},
		},
	})
}

