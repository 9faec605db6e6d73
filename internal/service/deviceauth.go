package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/token"
)

// DeviceAuthResult is the credential bundle handed back to firmware after a
// signed authentication request.
type DeviceAuthResult struct {
	Success               bool      `json:"success"`
	Token                 string    `json:"token"`
	ExpiresAt             time.Time `json:"expires_at"`
	DeviceID              *string   `json:"device_id,omitempty"`
	DebugEnabled          bool      `json:"debug_enabled"`
	TargetFirmwareVersion *string   `json:"target_firmware_version,omitempty"`
}

// DeviceAuthService issues device-type tokens to firmware that has already
// proven key possession through the request-signature middleware.
type DeviceAuthService struct {
	deviceRepo  repository.DeviceRepository
	pairingRepo repository.PairingRepository
	signer      token.Signer
}

func NewDeviceAuthService(
	deviceRepo repository.DeviceRepository,
	pairingRepo repository.PairingRepository,
	signer token.Signer,
) *DeviceAuthService {
	return &DeviceAuthService{
		deviceRepo:  deviceRepo,
		pairingRepo: pairingRepo,
		signer:      signer,
	}
}

// Authenticate mints a device token for the signature-verified serial and
// stamps the device heartbeat.
func (s *DeviceAuthService) Authenticate(ctx context.Context, serialNumber string) (*DeviceAuthResult, error) {
	device, err := s.deviceRepo.FindBySerial(ctx, serialNumber)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if device == nil {
		return nil, apperrors.Unauthorized("unknown device")
	}

	pairingCode := ""
	if device.PairingCode != nil {
		pairingCode = *device.PairingCode
	}

	claims := token.NewClaims(token.TypeDevice, device.DeviceUUID, device.SerialNumber, pairingCode, device.UserApprovedBy, config.SignedTokenTTL)
	signed, err := s.signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	if _, err := s.pairingRepo.EnsureForDevice(ctx, device.DeviceUUID); err != nil {
		return nil, apperrors.Database(err)
	}
	if err := s.pairingRepo.StampDeviceSeen(ctx, device.DeviceUUID, time.Now()); err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("deviceUuid", device.DeviceUUID).
		Str("serial", device.SerialNumber).
		Msg("device authenticated")

	return &DeviceAuthResult{
		Success:               true,
		Token:                 signed,
		ExpiresAt:             claims.ExpiresAt.Time,
		DeviceID:              device.DeviceID,
		DebugEnabled:          device.DebugEnabled,
		TargetFirmwareVersion: device.TargetFirmwareVersion,
	}, nil
}
