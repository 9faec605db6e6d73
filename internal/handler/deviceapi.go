package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/middleware"
	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/service"
)

// DeviceAPIHandler is the firmware-facing surface: signed authentication,
// command polling, and acks.
type DeviceAPIHandler struct {
	auth     *service.DeviceAuthService
	commands *service.CommandService
}

func NewDeviceAPIHandler(auth *service.DeviceAuthService, commands *service.CommandService) *DeviceAPIHandler {
	return &DeviceAPIHandler{auth: auth, commands: commands}
}

// Authenticate handles POST /v1/device/auth behind the signature middleware.
func (h *DeviceAPIHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	serial := middleware.GetVerifiedSerial(r.Context())
	if serial == "" {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	result, err := h.auth.Authenticate(r.Context(), serial)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// PollCommands handles GET /v1/device/commands with a device token.
func (h *DeviceAPIHandler) PollCommands(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil || claims.DeviceUUID == "" {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	commands, err := h.commands.PollPending(r.Context(), claims.DeviceUUID)
	if err != nil {
		writeError(w, err)
		return
	}
	if commands == nil {
		commands = []model.Command{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"commands": commands})
}

type ackRequest struct {
	CommandID string          `json:"command_id"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *string         `json:"error,omitempty"`
}

// AckCommand handles POST /v1/device/commands/ack with a device token.
func (h *DeviceAPIHandler) AckCommand(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil || claims.DeviceUUID == "" {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Format("invalid JSON body"))
		return
	}
	if req.CommandID == "" {
		writeError(w, apperrors.Validation("command_id is required"))
		return
	}

	cmd, err := h.commands.Ack(r.Context(), claims.DeviceUUID, model.AckCommandParams{
		CommandID: req.CommandID,
		Success:   req.Success,
		Result:    req.Result,
		Error:     req.Error,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cmd)
}
