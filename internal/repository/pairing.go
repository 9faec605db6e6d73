package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/statusbeacon/bridge-server-go/internal/model"
)

type PairingCodeRepository interface {
	FindByCode(ctx context.Context, code string) (*model.PairingCode, error)
	Replace(ctx context.Context, code, deviceUUID, serialNumber string) (*model.PairingCode, error)
	Consume(ctx context.Context, code string) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type pairingCodeRepo struct {
	db *sqlx.DB
}

func NewPairingCodeRepository(db *sqlx.DB) PairingCodeRepository {
	return &pairingCodeRepo{db: db}
}

func (r *pairingCodeRepo) FindByCode(ctx context.Context, code string) (*model.PairingCode, error) {
	var pc model.PairingCode
	err := r.db.GetContext(ctx, &pc, `
		SELECT * FROM pairing_codes WHERE code = $1
	`, code)
	return HandleNotFound(&pc, err)
}

// Replace installs a fresh code for the device, dropping any live one.
// The unique constraint on device_uuid enforces at most one live code.
func (r *pairingCodeRepo) Replace(ctx context.Context, code, deviceUUID, serialNumber string) (*model.PairingCode, error) {
	var pc model.PairingCode
	err := r.db.GetContext(ctx, &pc, `
		INSERT INTO pairing_codes (code, device_uuid, serial_number)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_uuid) DO UPDATE SET
			code = EXCLUDED.code,
			created_at = NOW()
		RETURNING *
	`, code, deviceUUID, serialNumber)
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

// Consume is the single-use transition: a conditional delete whose affected
// row count decides the winner of a concurrent exchange. A read-then-write
// here would reintroduce the replay race this protocol exists to prevent.
func (r *pairingCodeRepo) Consume(ctx context.Context, code string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pairing_codes WHERE code = $1
	`, code)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *pairingCodeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pairing_codes WHERE created_at < NOW() - INTERVAL '240 seconds'
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type PairingRepository interface {
	FindByDeviceUUID(ctx context.Context, deviceUUID string) (*model.Pairing, error)
	ListByUserUUID(ctx context.Context, userUUID string) ([]model.Pairing, error)
	EnsureForDevice(ctx context.Context, deviceUUID string) (*model.Pairing, error)
	SetUserUUID(ctx context.Context, deviceUUID, userUUID string) error
	UpdateAppState(ctx context.Context, deviceUUID string, params model.UpdateStateParams, seenAt time.Time) (*model.Pairing, error)
	UpdateWebexStatus(ctx context.Context, deviceUUID string, status model.PresenceStatus) error
	StampDeviceSeen(ctx context.Context, deviceUUID string, at time.Time) error
	ListUserPollingUsers(ctx context.Context) ([]string, error)
}

type pairingRepo struct {
	db *sqlx.DB
}

func NewPairingRepository(db *sqlx.DB) PairingRepository {
	return &pairingRepo{db: db}
}

func (r *pairingRepo) FindByDeviceUUID(ctx context.Context, deviceUUID string) (*model.Pairing, error) {
	var p model.Pairing
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM pairings WHERE device_uuid = $1
	`, deviceUUID)
	return HandleNotFound(&p, err)
}

func (r *pairingRepo) ListByUserUUID(ctx context.Context, userUUID string) ([]model.Pairing, error) {
	var pairings []model.Pairing
	err := r.db.SelectContext(ctx, &pairings, `
		SELECT * FROM pairings WHERE user_uuid = $1
	`, userUUID)
	return pairings, err
}

// EnsureForDevice lazily creates the pairing row on first contact.
func (r *pairingRepo) EnsureForDevice(ctx context.Context, deviceUUID string) (*model.Pairing, error) {
	var p model.Pairing
	err := r.db.GetContext(ctx, &p, `
		INSERT INTO pairings (device_uuid)
		VALUES ($1)
		ON CONFLICT (device_uuid) DO UPDATE SET updated_at = NOW()
		RETURNING *
	`, deviceUUID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pairingRepo) SetUserUUID(ctx context.Context, deviceUUID, userUUID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pairings SET user_uuid = $2, updated_at = NOW()
		WHERE device_uuid = $1
	`, deviceUUID, userUUID)
	return err
}

// UpdateAppState applies an app-pushed presence update. COALESCE keeps
// fields the app did not send.
func (r *pairingRepo) UpdateAppState(ctx context.Context, deviceUUID string, params model.UpdateStateParams, seenAt time.Time) (*model.Pairing, error) {
	var p model.Pairing
	err := r.db.GetContext(ctx, &p, `
		UPDATE pairings SET
			webex_status = COALESCE($2, webex_status),
			camera_on    = COALESCE($3, camera_on),
			mic_muted    = COALESCE($4, mic_muted),
			in_call      = COALESCE($5, in_call),
			display_name = COALESCE($6, display_name),
			app_connected = TRUE,
			app_last_seen = $7,
			updated_at = NOW()
		WHERE device_uuid = $1
		RETURNING *
	`, deviceUUID, params.WebexStatus, params.CameraOn, params.MicMuted, params.InCall, params.DisplayName, seenAt)
	return HandleNotFound(&p, err)
}

func (r *pairingRepo) UpdateWebexStatus(ctx context.Context, deviceUUID string, status model.PresenceStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pairings SET webex_status = $2, updated_at = NOW()
		WHERE device_uuid = $1
	`, deviceUUID, status)
	return err
}

func (r *pairingRepo) StampDeviceSeen(ctx context.Context, deviceUUID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pairings SET
			device_connected = TRUE,
			device_last_seen = $2,
			updated_at = NOW()
		WHERE device_uuid = $1
	`, deviceUUID, at)
	return err
}

// ListUserPollingUsers returns the distinct users owning at least one device
// opted into user-level polling. Bounds the sweep's provider calls to one
// per user.
func (r *pairingRepo) ListUserPollingUsers(ctx context.Context) ([]string, error) {
	var users []string
	err := r.db.SelectContext(ctx, &users, `
		SELECT DISTINCT user_uuid FROM pairings
		WHERE user_polling_enabled = TRUE AND user_uuid IS NOT NULL
	`)
	return users, err
}
