package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/token"
)

// StateView is the pairing state as reported to the companion app.
// DeviceConnected is computed from heartbeat recency, not the stored flag:
// a stale true must read as disconnected.
type StateView struct {
	DeviceUUID      string               `json:"device_uuid"`
	UserUUID        *string              `json:"user_uuid,omitempty"`
	AppConnected    bool                 `json:"app_connected"`
	DeviceConnected bool                 `json:"device_connected"`
	WebexStatus     model.PresenceStatus `json:"webex_status"`
	CameraOn        bool                 `json:"camera_on"`
	MicMuted        bool                 `json:"mic_muted"`
	InCall          bool                 `json:"in_call"`
	DisplayName     *string              `json:"display_name,omitempty"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// PresenceService is the app-side write path into the pairing row. The
// background sweep is the other writer; recency arbitrates between them.
type PresenceService struct {
	pairingRepo repository.PairingRepository
	deviceRepo  repository.DeviceRepository
	validate    *validator.Validate
}

func NewPresenceService(
	pairingRepo repository.PairingRepository,
	deviceRepo repository.DeviceRepository,
) *PresenceService {
	return &PresenceService{
		pairingRepo: pairingRepo,
		deviceRepo:  deviceRepo,
		validate:    validator.New(),
	}
}

// UpdateState applies an app-pushed presence update, creating the pairing
// row lazily on first contact.
func (s *PresenceService) UpdateState(ctx context.Context, claims *token.Claims, params model.UpdateStateParams) (*StateView, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apperrors.Validation("invalid webex_status").WithDetails(map[string]any{
			"valid_statuses": model.PresenceStatuses,
		})
	}

	deviceUUID, err := s.resolveDeviceUUID(ctx, claims)
	if err != nil {
		return nil, err
	}

	if _, err := s.pairingRepo.EnsureForDevice(ctx, deviceUUID); err != nil {
		return nil, apperrors.Database(err)
	}

	pairing, err := s.pairingRepo.UpdateAppState(ctx, deviceUUID, params, time.Now())
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if pairing == nil {
		return nil, apperrors.NotFound("pairing record")
	}

	log.Debug().
		Str("deviceUuid", deviceUUID).
		Msg("presence state updated by app")

	return viewOf(pairing), nil
}

// GetState reads the pairing state for the token's device.
func (s *PresenceService) GetState(ctx context.Context, claims *token.Claims) (*StateView, error) {
	deviceUUID, err := s.resolveDeviceUUID(ctx, claims)
	if err != nil {
		return nil, err
	}

	pairing, err := s.pairingRepo.FindByDeviceUUID(ctx, deviceUUID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if pairing == nil {
		return nil, apperrors.NotFound("pairing record")
	}

	return viewOf(pairing), nil
}

func (s *PresenceService) resolveDeviceUUID(ctx context.Context, claims *token.Claims) (string, error) {
	if claims.DeviceUUID != "" {
		return claims.DeviceUUID, nil
	}

	if claims.PairingCode != "" {
		device, err := s.deviceRepo.FindByPairingCode(ctx, claims.PairingCode)
		if err != nil {
			return "", apperrors.Database(err)
		}
		if device != nil {
			return device.DeviceUUID, nil
		}
	}

	return "", apperrors.NotFound("device")
}

func viewOf(p *model.Pairing) *StateView {
	return &StateView{
		DeviceUUID:      p.DeviceUUID,
		UserUUID:        p.UserUUID,
		AppConnected:    p.AppConnected,
		DeviceConnected: DeviceConnected(p),
		WebexStatus:     p.WebexStatus,
		CameraOn:        p.CameraOn,
		MicMuted:        p.MicMuted,
		InCall:          p.InCall,
		DisplayName:     p.DisplayName,
		UpdatedAt:       p.UpdatedAt,
	}
}

// DeviceConnected applies the heartbeat staleness threshold.
func DeviceConnected(p *model.Pairing) bool {
	if p.DeviceLastSeen == nil {
		return false
	}
	return time.Since(*p.DeviceLastSeen) <= config.DeviceStaleAfter
}
