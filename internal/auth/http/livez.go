package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
)

// HealthResponse is the body of both health probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each dependency as "ok" or "error: ...".
type HealthChecks struct {
	Database string `json:"database"`
	Sessions string `json:"sessions"`
	Keys     string `json:"keys"`
}

// LivezHandler always answers 200 while the process is serving.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
