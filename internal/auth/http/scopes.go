package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/wateroflife/internal/auth/service"
	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
)

const maxScopeRequestBytes = 4 << 10

// GrantScopeRequest names the scope to add.
type GrantScopeRequest struct {
	Scope string `json:"scope"`
}

// GrantScopeResponse lists every scope the user holds after the grant.
type GrantScopeResponse struct {
	UserID string   `json:"user_id"`
	Scopes []string `json:"scopes"`
}

// GrantScopeHandler serves POST /api/admin/users/{id}/scopes.
type GrantScopeHandler struct {
	UserService *service.UserService
}

func (h *GrantScopeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := r.PathValue("id")
	if userID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "Missing user id")
		return
	}

	var req GrantScopeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScopeRequestBytes)).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	scopes, err := h.UserService.GrantScope(ctx, userID, req.Scope)
	switch {
	case errors.Is(err, service.ErrInvalidScope):
		httpx.WriteError(w, http.StatusBadRequest, "Invalid scope")
		return
	case errors.Is(err, service.ErrUserNotFound):
		httpx.WriteError(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		log.Error("grant scope", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Please try again later")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, GrantScopeResponse{UserID: userID, Scopes: scopes})
}
