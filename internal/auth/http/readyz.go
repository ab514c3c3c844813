package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
)

// Pinger is anything readiness can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KeyCounter reports how many provider keys are loaded.
type KeyCounter interface {
	Len() int
}

// ReadyzHandler answers 503 when the user store or the session store is
// unreachable, or when no provider key is loaded.
func ReadyzHandler(startTime time.Time, version string, db, sessions Pinger, keys KeyCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &HealthChecks{
			Database: "ok",
			Sessions: "ok",
			Keys:     "ok",
		}
		status := "ok"
		code := http.StatusOK

		if err := db.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		}
		if err := sessions.Ping(r.Context()); err != nil {
			checks.Sessions = "error: " + err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		}
		if keys == nil || keys.Len() == 0 {
			checks.Keys = "error: no keys loaded"
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
