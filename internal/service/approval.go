package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/redis"
	"github.com/statusbeacon/bridge-server-go/internal/realtime"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/util"
)

// DeviceApprovalService binds a user identity to a device via pairing code.
// Approval can happen after the code itself was exchanged, so the lookup
// goes through the device row's retained code copy and the expiry window is
// measured from the code's issuance stamp on that row.
type DeviceApprovalService struct {
	codes          *PairingCodeService
	deviceRepo     repository.DeviceRepository
	membershipRepo repository.MembershipRepository
	pairingRepo    repository.PairingRepository
	notifier       *realtime.Notifier
}

func NewDeviceApprovalService(
	codes *PairingCodeService,
	deviceRepo repository.DeviceRepository,
	membershipRepo repository.MembershipRepository,
	pairingRepo repository.PairingRepository,
	notifier *realtime.Notifier,
) *DeviceApprovalService {
	return &DeviceApprovalService{
		codes:          codes,
		deviceRepo:     deviceRepo,
		membershipRepo: membershipRepo,
		pairingRepo:    pairingRepo,
		notifier:       notifier,
	}
}

// Approve assigns the user to the device identified by the pairing code.
// Idempotent: re-approval by the same user succeeds without mutation.
func (s *DeviceApprovalService) Approve(ctx context.Context, userUUID, rawCode string) error {
	code, err := s.codes.Validate(rawCode)
	if err != nil {
		return err
	}

	device, err := s.deviceRepo.FindByPairingCode(ctx, code)
	if err != nil {
		return apperrors.Database(err)
	}
	if device == nil {
		log.Warn().Str("code", util.MaskCode(code)).Msg("approval: pairing code unknown")
		return apperrors.NotFound("pairing code")
	}

	if device.PairingCodeIssuedAt == nil || time.Since(*device.PairingCodeIssuedAt) > config.PairingCodeTTL {
		log.Warn().
			Str("code", util.MaskCode(code)).
			Str("deviceUuid", device.DeviceUUID).
			Msg("approval: window lapsed")
		return apperrors.Expired("pairing code")
	}

	if device.UserApprovedBy != nil && *device.UserApprovedBy == userUUID {
		log.Debug().
			Str("deviceUuid", device.DeviceUUID).
			Str("userUuid", userUUID).
			Msg("approval: already approved by this user")
		return nil
	}

	now := time.Now()
	if err := s.deviceRepo.StampApproval(ctx, device.DeviceUUID, userUUID, now); err != nil {
		return apperrors.Database(err)
	}

	// Tolerant of concurrent duplicate approvals; a conflicting insert is a
	// no-op, not an error.
	if err := s.membershipRepo.Upsert(ctx, userUUID, device.DeviceUUID); err != nil {
		return apperrors.Database(err)
	}

	if _, err := s.pairingRepo.EnsureForDevice(ctx, device.DeviceUUID); err != nil {
		return apperrors.Database(err)
	}
	if err := s.pairingRepo.SetUserUUID(ctx, device.DeviceUUID, userUUID); err != nil {
		return apperrors.Database(err)
	}

	// Non-fatal side effect: a missed notification does not roll back the
	// approval.
	s.notifier.Notify(redis.DeviceChannel(device.DeviceUUID), "user_assigned", map[string]any{
		"device_uuid": device.DeviceUUID,
		"user_uuid":   userUUID,
	})

	log.Info().
		Str("deviceUuid", device.DeviceUUID).
		Str("userUuid", userUUID).
		Msg("device approved")

	return nil
}
