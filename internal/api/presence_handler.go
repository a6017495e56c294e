package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/trackerlive/internal/models"
	"github.com/prudhvinik1/trackerlive/internal/realtime"
)

type PresenceHandler struct {
	hub *realtime.Hub
}

func NewPresenceHandler(hub *realtime.Hub) *PresenceHandler {
	return &PresenceHandler{hub: hub}
}

type presenceResponse struct {
	*models.Presence
	Online bool `json:"online"`
}

func (h *PresenceHandler) get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	writeJSON(w, http.StatusOK, presenceResponse{
		Presence: h.hub.PresenceOf(r.Context(), userID),
		Online:   h.hub.IsOnline(userID),
	})
}
