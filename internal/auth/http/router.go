package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/wateroflife/internal/auth/domain"
	"github.com/aussiebroadwan/wateroflife/internal/auth/observability"
	"github.com/aussiebroadwan/wateroflife/internal/auth/service"
	"github.com/aussiebroadwan/wateroflife/internal/auth/session"
	"github.com/aussiebroadwan/wateroflife/internal/auth/store"
	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux     *http.ServeMux
	handler http.Handler

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	sessions session.Store
	keys     KeyCounter
	metrics  *observability.Metrics

	AuthService     *service.AuthService
	ExchangeService *service.ExchangeService
	TokenService    *service.TokenService
	UserService     *service.UserService

	SessionManager session.Manager
	Cookies        TokenCookies
	EndSessionURL  string
}

func NewRouter(
	buildVersion string,
	st store.Store,
	sessions session.Store,
	keys KeyCounter,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		sessions:     sessions,
		keys:         keys,
		metrics:      metrics,
		logger:       logger,
	}
}

// ApplyRoutes registers every endpoint and builds the global chain. The
// services must be set before it is called.
func (r *Router) ApplyRoutes() {
	r.registerOIDC()
	r.registerAPI()
	r.registerSystem()
	r.Mux.HandleFunc("/", notFound)

	gate := &AuthGate{
		Auth:    r.AuthService,
		Users:   r.UserService,
		Tokens:  r.TokenService,
		Cookies: r.Cookies,
		Metrics: r.metrics,
	}

	r.handler = httpx.Chain(r.Mux,
		slogx.HTTPMiddleware(r.logger),
		r.metrics.Middleware(r.Mux),
		gate.Middleware,
	)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) registerOIDC() {
	h := &OIDCHandler{
		Exchange:      r.ExchangeService,
		Sessions:      r.SessionManager,
		Cookies:       r.Cookies,
		EndSessionURL: r.EndSessionURL,
	}

	limit := httpx.RateLimitByIP(httpx.AuthLimit)
	r.Mux.Handle("GET /oidc/login", httpx.Chain(http.HandlerFunc(h.HandleLogin), limit))
	r.Mux.Handle("GET /oidc/token", httpx.Chain(http.HandlerFunc(h.HandleCallback), limit))
	r.Mux.Handle("GET /oidc/logout", httpx.Chain(http.HandlerFunc(h.HandleLogout), limit))
}

func (r *Router) registerAPI() {
	limit := httpx.RateLimitBySubject(httpx.APILimit)

	r.Mux.Handle("GET /api/user_info",
		httpx.Chain(&UserInfoHandler{UserService: r.UserService}, limit),
	)

	r.Mux.Handle("POST /api/admin/users/{id}/revoke",
		httpx.Chain(&RevokeHandler{UserService: r.UserService},
			RequireRole(domain.RoleAdmin),
			limit,
		),
	)

	r.Mux.Handle("POST /api/admin/users/{id}/scopes",
		httpx.Chain(&GrantScopeHandler{UserService: r.UserService},
			RequireRole(domain.RoleAdmin),
			limit,
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.sessions, r.keys))
	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteError(w, http.StatusNotFound, "That endpoint does not exist.")
}
