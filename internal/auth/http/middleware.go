package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
	"github.com/aussiebroadwan/wateroflife/internal/auth/observability"
	"github.com/aussiebroadwan/wateroflife/internal/auth/service"
	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
)

// ProtectedPrefix is the path prefix the gate guards.
const ProtectedPrefix = "/api"

type ctxKey string

const ctxKeyUser ctxKey = "user"

func withUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

// UserFromContext returns the user the gate authenticated.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(domain.User)
	return u, ok
}

// AuthGate authenticates every request under Prefix from the token cookies.
// Requests elsewhere pass through untouched.
type AuthGate struct {
	Auth    *service.AuthService
	Users   *service.UserService
	Tokens  *service.TokenService
	Cookies TokenCookies
	Metrics *observability.Metrics

	// Prefix defaults to ProtectedPrefix.
	Prefix string
}

func (g *AuthGate) protects(path string) bool {
	prefix := g.Prefix
	if prefix == "" {
		prefix = ProtectedPrefix
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func (g *AuthGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.protects(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		log := slogx.FromContext(ctx)

		access, refresh := g.Cookies.Read(r)
		state := g.Auth.Authenticate(ctx, access, refresh)

		var user domain.User
		switch state.Kind {
		case domain.TokenValid:
			u, err := g.Users.GetUserByID(ctx, state.Subject)
			if errors.Is(err, service.ErrUserNotFound) {
				log.Warn("access token for unknown user", "sub", state.Subject)
				httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if err != nil {
				log.Error("load user", "sub", state.Subject, "error", err)
				httpx.WriteError(w, http.StatusInternalServerError, "Please try again later")
				return
			}
			user = u

		case domain.TokenRequiresRefresh:
			user = *state.User
			pair, err := g.Tokens.IssuePair(user.ID, user.Role, user.RefreshTokenVersion)
			if err != nil {
				// The refresh token still proves who this is; the browser
				// just keeps its old cookies and tries again next time.
				log.Error("reissue token pair", "sub", user.ID, "error", err)
				break
			}
			g.Cookies.Set(w, pair)
			g.Metrics.ObserveIssued("refresh")
			log.Debug("token pair refreshed", "sub", user.ID)

		default:
			httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx = withUser(ctx, user)
		ctx = httpx.WithSubject(ctx, user.ID)
		ctx = slogx.WithContext(ctx, log.With("sub", user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated users without role. It must run behind
// the gate.
func RequireRole(role string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if u.Role != role {
				slogx.FromContext(r.Context()).Warn("role required", "role", role, "have", u.Role)
				httpx.WriteError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
