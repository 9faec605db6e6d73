package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/middleware"
	"github.com/statusbeacon/bridge-server-go/internal/service"
)

// ApprovalHandler exposes user approval of a device.
type ApprovalHandler struct {
	approval *service.DeviceApprovalService
}

func NewApprovalHandler(approval *service.DeviceApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approval: approval}
}

type approveRequest struct {
	PairingCode string `json:"pairing_code"`
}

// Approve handles POST /v1/devices/approve. Requires an app token carrying a
// user identity.
func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil || claims.UserUUID == nil {
		writeError(w, apperrors.Forbidden("approval requires a user identity"))
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Format("invalid JSON body"))
		return
	}

	if err := h.approval.Approve(r.Context(), *claims.UserUUID, req.PairingCode); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"approved": true})
}
