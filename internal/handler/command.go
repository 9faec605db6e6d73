package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/middleware"
	"github.com/statusbeacon/bridge-server-go/internal/service"
)

// CommandHandler exposes the app-side command enqueue.
type CommandHandler struct {
	commands *service.CommandService
}

func NewCommandHandler(commands *service.CommandService) *CommandHandler {
	return &CommandHandler{commands: commands}
}

// Enqueue handles POST /v1/commands.
func (h *CommandHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())

	var params service.EnqueueParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.Format("invalid JSON body"))
		return
	}

	cmd, err := h.commands.Enqueue(r.Context(), claims, params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, cmd)
}
