// Package oidc talks to the OpenID Connect provider: discovery, the key set,
// the authorization-code exchange and the userinfo role lookup.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/wateroflife/pkg/jwtx"
	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrDiscovery      = errors.New("oidc: discovery failed")
	ErrJWKS           = errors.New("oidc: fetch key set failed")
	ErrExchange       = errors.New("oidc: code exchange failed")
	ErrMissingIDToken = errors.New("oidc: token response has no id_token")
	ErrUserInfo       = errors.New("oidc: userinfo request failed")
)

// DefaultScopes are requested when the client config names none.
var DefaultScopes = []string{gooidc.ScopeOpenID, "roles"}

type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Timeout bounds every request to the provider. Zero means 10s.
	Timeout time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Metadata is the part of the discovery document we use.
type Metadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// Tokens is what the provider's token endpoint returned.
type Tokens struct {
	AccessToken string
	IDToken     string
}

type Provider struct {
	clientID string
	provider *gooidc.Provider
	oauth2   oauth2.Config
	metadata Metadata
	client   *http.Client
}

// Discover fetches the provider's discovery document. The issuer it reports
// must equal issuerURL.
func Discover(ctx context.Context, issuerURL string, cfg ClientConfig) (*Provider, error) {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	p, err := gooidc.NewProvider(gooidc.ClientContext(ctx, client), issuerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	var md Metadata
	if err := p.Claims(&md); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	if md.JWKSURI == "" {
		return nil, fmt.Errorf("%w: no jwks_uri advertised", ErrDiscovery)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	endpoint := p.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &Provider{
		clientID: cfg.ClientID,
		provider: p,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		metadata: md,
		client:   client,
	}, nil
}

func (p *Provider) Metadata() Metadata { return p.metadata }
func (p *Provider) Issuer() string     { return p.metadata.Issuer }

// EndSessionURL is empty when the provider does not support RP logout.
func (p *Provider) EndSessionURL() string { return p.metadata.EndSessionEndpoint }

func (p *Provider) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// FetchJWKS downloads the provider's signing keys.
func (p *Provider) FetchJWKS(ctx context.Context) (jwtx.JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.metadata.JWKSURI, nil)
	if err != nil {
		return jwtx.JWKS{}, fmt.Errorf("%w: %w", ErrJWKS, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return jwtx.JWKS{}, fmt.Errorf("%w: %w", ErrJWKS, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jwtx.JWKS{}, fmt.Errorf("%w: status %d", ErrJWKS, resp.StatusCode)
	}

	var set jwtx.JWKS
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return jwtx.JWKS{}, fmt.Errorf("%w: decode: %w", ErrJWKS, err)
	}
	return set, nil
}

// AuthCodeURL is where the browser goes to log in. No state parameter is
// sent; the nonce bound to the browser session does that job.
func (p *Provider) AuthCodeURL(nonce string) string {
	return p.oauth2.AuthCodeURL("", gooidc.Nonce(nonce))
}

// Exchange redeems an authorization code server to server.
func (p *Provider) Exchange(ctx context.Context, code string) (Tokens, error) {
	tok, err := p.oauth2.Exchange(p.ctx(ctx), code)
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return Tokens{}, ErrMissingIDToken
	}
	return Tokens{AccessToken: tok.AccessToken, IDToken: idToken}, nil
}

// ResourceAccess is the provider's per-client role claim.
type ResourceAccess map[string]struct {
	Roles []string `json:"roles"`
}

// Roles returns the roles the provider grants the token's user on our
// client.
func (p *Provider) Roles(ctx context.Context, accessToken string) ([]string, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	info, err := p.provider.UserInfo(p.ctx(ctx), src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}

	var claims struct {
		ResourceAccess ResourceAccess `json:"resource_access"`
	}
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	return ExtractRoles(claims.ResourceAccess, p.clientID), nil
}

// ExtractRoles picks clientID's roles out of a resource_access claim.
func ExtractRoles(access ResourceAccess, clientID string) []string {
	entry, ok := access[clientID]
	if !ok {
		return nil
	}
	return entry.Roles
}
