package handlers

import (
	"errors"
	"net/http"

	"github.com/meyoo/platform/internal/api/dto"
	"github.com/meyoo/platform/internal/api/middleware"
	"github.com/meyoo/platform/internal/identity"
)

type MeHandler struct {
	authService *identity.Service
}

func NewMeHandler(authService *identity.Service) *MeHandler {
	return &MeHandler{authService: authService}
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "User not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, userDTO(user))
}
