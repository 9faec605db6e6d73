package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/middleware"
	"github.com/statusbeacon/bridge-server-go/internal/service"
)

// AdminHandler is the operator API: session auth, device registration,
// pairing-code issuance, and account management.
type AdminHandler struct {
	admin       *service.AdminService
	sweeper     *service.Sweeper
	sweepOn     bool
	sessionAuth func(http.Handler) http.Handler
}

func NewAdminHandler(admin *service.AdminService, sweeper *service.Sweeper, sweepOn bool, sessionAuth func(http.Handler) http.Handler) *AdminHandler {
	return &AdminHandler{admin: admin, sweeper: sweeper, sweepOn: sweepOn, sessionAuth: sessionAuth}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.sessionAuth)

		r.Post("/logout", h.Logout)

		r.Get("/devices", h.ListDevices)
		r.Post("/devices", h.RegisterDevice)
		r.Post("/devices/{deviceUUID}/pairing-code", h.IssuePairingCode)
		r.Post("/devices/{deviceUUID}/rotate-key", h.RotateDeviceKey)

		r.Get("/admins", h.ListAdmins)
		r.Post("/admins", h.CreateAdmin)
		r.Delete("/admins/{id}", h.DeleteAdmin)

		r.Post("/sweep", h.TriggerSweep)
	})

	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Format("invalid JSON body"))
		return
	}

	result, err := h.admin.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw := middleware.ExtractBearerToken(r)
	if err := h.admin.Logout(r.Context(), raw); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *AdminHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.admin.ListDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

type registerDeviceRequest struct {
	SerialNumber string  `json:"serial_number"`
	DeviceID     *string `json:"device_id,omitempty"`
}

func (h *AdminHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Format("invalid JSON body"))
		return
	}

	result, err := h.admin.RegisterDevice(r.Context(), req.SerialNumber, req.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *AdminHandler) RotateDeviceKey(w http.ResponseWriter, r *http.Request) {
	deviceUUID := chi.URLParam(r, "deviceUUID")

	result, err := h.admin.RotateDeviceKey(r.Context(), deviceUUID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) IssuePairingCode(w http.ResponseWriter, r *http.Request) {
	deviceUUID := chi.URLParam(r, "deviceUUID")

	code, err := h.admin.IssuePairingCode(r.Context(), deviceUUID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, code)
}

func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.admin.ListAdmins(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"admins": admins})
}

type createAdminRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Format("invalid JSON body"))
		return
	}
	if len(req.Password) < 8 {
		writeError(w, apperrors.Validation("password must be at least 8 characters"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrCodeInternal, "hash password", err))
		return
	}

	user, err := h.admin.CreateAdmin(r.Context(), req.Username, string(hash))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// TriggerSweep runs one presence sweep synchronously, outside the ticker
// schedule. Useful after re-linking an OAuth account.
func (h *AdminHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if !h.sweepOn {
		writeError(w, apperrors.Configuration("presence sweep is not configured"))
		return
	}

	result := h.sweeper.Run(r.Context())
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.admin.DeleteAdmin(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
