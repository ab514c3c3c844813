package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/wateroflife/pkg/idx"
)

const RequestIDHeader = "X-Request-ID"

// HTTPMiddleware logs one line per request and attaches a request scoped
// logger to the context. Query strings are never logged: the OIDC callback
// carries the authorization code there.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			reqID, err := idx.Parse(r.Header.Get(RequestIDHeader))
			if err != nil {
				reqID = idx.New()
			}
			w.Header().Set(RequestIDHeader, reqID.String())

			logger := base.With(
				"req_id", reqID.String(),
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			r = r.WithContext(WithContext(r.Context(), logger))

			next.ServeHTTP(rw, r)

			logger.Info("http_request",
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
