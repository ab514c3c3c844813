package service

import (
	"context"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
	"github.com/aussiebroadwan/wateroflife/internal/auth/observability"
	"github.com/aussiebroadwan/wateroflife/internal/auth/store"
	"github.com/aussiebroadwan/wateroflife/pkg/jwtx"
	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
)

// AuthService decides whether a request's token cookies authenticate it.
type AuthService struct {
	AccessSecret  jwtx.HMACSecret
	RefreshSecret jwtx.HMACSecret
	Audience      string
	Users         store.Users
	Metrics       *observability.Metrics
}

// Authenticate never mutates anything. A valid access token short-circuits
// without looking at the refresh token. Otherwise the refresh token is
// honoured only while its version equals the stored one, in which case the
// caller must issue a new pair.
//
// Two concurrent requests holding the same refresh token can both get
// RequiresRefresh; the later cookie simply wins.
func (s *AuthService) Authenticate(ctx context.Context, accessToken, refreshToken string) domain.TokenState {
	state := s.decide(ctx, accessToken, refreshToken)
	s.Metrics.ObserveDecision(state.Kind.String())
	return state
}

func (s *AuthService) decide(ctx context.Context, accessToken, refreshToken string) domain.TokenState {
	l := slogx.FromContext(ctx)

	access, err := jwtx.Verify[jwtx.AccessClaims](accessToken, s.Audience, s.AccessSecret)
	if err == nil {
		return domain.Valid(access.Subject)
	}
	l.Debug("access token rejected", "error", err)

	refresh, err := jwtx.Verify[jwtx.RefreshClaims](refreshToken, s.Audience, s.RefreshSecret)
	if err != nil {
		l.Debug("refresh token rejected", "error", err)
		return domain.Invalid()
	}

	user, err := s.Users.GetUserByID(ctx, refresh.Subject)
	if err != nil {
		l.Warn("refresh token subject lookup failed", "sub", refresh.Subject, "error", err)
		return domain.Invalid()
	}

	if refresh.Version != user.RefreshTokenVersion {
		l.Info("refresh token superseded",
			"sub", refresh.Subject,
			"token_version", refresh.Version,
			"current_version", user.RefreshTokenVersion,
		)
		return domain.Invalid()
	}

	return domain.RequiresRefresh(refresh.Subject, user)
}
