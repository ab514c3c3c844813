package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/wateroflife/internal/auth/service"
	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
)

// RevokeResponse reports the user's refresh token version after the bump.
type RevokeResponse struct {
	UserID              string `json:"user_id"`
	RefreshTokenVersion int64  `json:"refresh_token_version"`
}

// RevokeHandler serves POST /api/admin/users/{id}/revoke. Every refresh
// token issued to the user so far stops working; their access tokens run
// out on their own.
type RevokeHandler struct {
	UserService *service.UserService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := r.PathValue("id")
	if userID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "Missing user id")
		return
	}

	version, err := h.UserService.RevokeRefreshTokens(ctx, userID)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		httpx.WriteError(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		log.Error("revoke refresh tokens", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Please try again later")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, RevokeResponse{UserID: userID, RefreshTokenVersion: version})
}
