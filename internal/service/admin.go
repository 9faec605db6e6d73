package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/util"
)

// AdminSessionResult is the bearer credential returned by a login.
type AdminSessionResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterDeviceResult includes the signing key exactly once, at
// registration. Only its hash is stored.
type RegisterDeviceResult struct {
	Device  *model.Device `json:"device"`
	KeyHash string        `json:"key_hash"`
}

// AdminService backs the operator surface: session auth, device
// registration, pairing-code issuance, and admin account management.
type AdminService struct {
	adminRepo   repository.AdminUserRepository
	sessionRepo repository.AdminSessionRepository
	deviceRepo  repository.DeviceRepository
	codes       *PairingCodeService
}

func NewAdminService(
	adminRepo repository.AdminUserRepository,
	sessionRepo repository.AdminSessionRepository,
	deviceRepo repository.DeviceRepository,
	codes *PairingCodeService,
) *AdminService {
	return &AdminService{
		adminRepo:   adminRepo,
		sessionRepo: sessionRepo,
		deviceRepo:  deviceRepo,
		codes:       codes,
	}
}

// Bootstrap seeds the initial operator account from configuration. A no-op
// when the hash is unset or any account already exists, so a configured hash
// never overrides accounts created through the API.
func (s *AdminService) Bootstrap(ctx context.Context, passwordHash string) error {
	if passwordHash == "" {
		return nil
	}

	count, err := s.adminRepo.Count(ctx)
	if err != nil {
		return apperrors.Database(err)
	}
	if count > 0 {
		return nil
	}

	if _, err := s.adminRepo.Create(ctx, "admin", passwordHash); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("username", "admin").Msg("bootstrap admin account created")
	return nil
}

// Login verifies credentials and opens a session. Only the session token's
// hash is persisted.
func (s *AdminService) Login(ctx context.Context, username, password string) (*AdminSessionResult, error) {
	user, err := s.adminRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		log.Warn().Str("username", username).Msg("admin login rejected")
		return nil, apperrors.Unauthorized("invalid credentials")
	}

	tok, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "generate session token", err)
	}

	session, err := s.sessionRepo.Create(ctx, util.HashToken(tok), time.Now().Add(config.AdminSessionTTL))
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("username", username).Msg("admin logged in")

	return &AdminSessionResult{
		Token:     tok,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Logout invalidates the session token. Idempotent.
func (s *AdminService) Logout(ctx context.Context, rawToken string) error {
	if err := s.sessionRepo.DeleteByTokenHash(ctx, util.HashToken(rawToken)); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// RegisterDevice provisions a new device identity. The generated key hash is
// both stored and returned; the firmware holds it as its HMAC signing key.
func (s *AdminService) RegisterDevice(ctx context.Context, serialNumber string, deviceID *string) (*RegisterDeviceResult, error) {
	if serialNumber == "" {
		return nil, apperrors.Validation("serial_number is required")
	}

	secret, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "generate device key", err)
	}
	keyHash := util.SHA256Hex([]byte(secret))

	device, err := s.deviceRepo.Create(ctx, model.CreateDeviceParams{
		DeviceUUID:   uuid.NewString(),
		SerialNumber: serialNumber,
		DeviceID:     deviceID,
		KeyHash:      keyHash,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("deviceUuid", device.DeviceUUID).
		Str("serial", device.SerialNumber).
		Msg("device registered")

	return &RegisterDeviceResult{Device: device, KeyHash: keyHash}, nil
}

// RotateDeviceKey mints a fresh signing key for an existing device and
// invalidates the old one. Like registration, the key hash is returned
// exactly once.
func (s *AdminService) RotateDeviceKey(ctx context.Context, deviceUUID string) (*RegisterDeviceResult, error) {
	device, err := s.deviceRepo.FindByUUID(ctx, deviceUUID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if device == nil {
		return nil, apperrors.NotFound("device")
	}

	secret, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "generate device key", err)
	}
	keyHash := util.SHA256Hex([]byte(secret))

	if err := s.deviceRepo.RotateKeyHash(ctx, device.DeviceUUID, keyHash); err != nil {
		return nil, apperrors.Database(err)
	}
	device.KeyHash = keyHash

	log.Info().
		Str("deviceUuid", device.DeviceUUID).
		Str("serial", device.SerialNumber).
		Msg("device key rotated")

	return &RegisterDeviceResult{Device: device, KeyHash: keyHash}, nil
}

// IssuePairingCode creates a fresh code for a registered device.
func (s *AdminService) IssuePairingCode(ctx context.Context, deviceUUID string) (*model.PairingCode, error) {
	return s.codes.Generate(ctx, deviceUUID)
}

// ListDevices returns every registered device.
func (s *AdminService) ListDevices(ctx context.Context) ([]model.Device, error) {
	devices, err := s.deviceRepo.List(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return devices, nil
}

// CreateAdmin adds an operator account. The password arrives pre-hashed
// (bcrypt) from the handler.
func (s *AdminService) CreateAdmin(ctx context.Context, username, passwordHash string) (*model.AdminUser, error) {
	if username == "" {
		return nil, apperrors.Validation("username is required")
	}

	user, err := s.adminRepo.Create(ctx, username, passwordHash)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("username", username).Msg("admin account created")
	return user, nil
}

// ListAdmins returns all operator accounts.
func (s *AdminService) ListAdmins(ctx context.Context) ([]model.AdminUser, error) {
	users, err := s.adminRepo.List(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return users, nil
}

// DeleteAdmin removes an operator account, refusing to delete the last one.
func (s *AdminService) DeleteAdmin(ctx context.Context, id string) error {
	count, err := s.adminRepo.Count(ctx)
	if err != nil {
		return apperrors.Database(err)
	}
	if count <= 1 {
		return apperrors.Forbidden("cannot delete the last admin account")
	}

	if err := s.adminRepo.Delete(ctx, id); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("adminId", id).Msg("admin account deleted")
	return nil
}
