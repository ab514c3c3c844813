package http

import (
	"net/http"

	"github.com/aussiebroadwan/wateroflife/internal/auth/service"
	"github.com/aussiebroadwan/wateroflife/pkg/httpx"
	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
)

type UserInfoHandler struct {
	UserService *service.UserService
}

// ServeHTTP returns the signed in user's username, role and scopes.
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, ok := UserFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	profile, err := h.UserService.Profile(ctx, user)
	if err != nil {
		log.Warn("failed to load profile", "user_id", user.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Please try again later")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, profile)
}
