package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/middleware"
	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/service"
)

// StateHandler exposes the pairing state read/write surface for the app.
type StateHandler struct {
	presence *service.PresenceService
}

func NewStateHandler(presence *service.PresenceService) *StateHandler {
	return &StateHandler{presence: presence}
}

// Update handles POST /v1/state.
func (h *StateHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())

	var params model.UpdateStateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.Format("invalid JSON body"))
		return
	}

	view, err := h.presence.UpdateState(r.Context(), claims, params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Get handles GET /v1/state.
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())

	view, err := h.presence.GetState(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
