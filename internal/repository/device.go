package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/statusbeacon/bridge-server-go/internal/model"
)

type DeviceRepository interface {
	FindByUUID(ctx context.Context, deviceUUID string) (*model.Device, error)
	FindBySerial(ctx context.Context, serialNumber string) (*model.Device, error)
	FindByPairingCode(ctx context.Context, code string) (*model.Device, error)
	List(ctx context.Context) ([]model.Device, error)
	Create(ctx context.Context, params model.CreateDeviceParams) (*model.Device, error)
	RotateKeyHash(ctx context.Context, deviceUUID, keyHash string) error
	StampPairingCode(ctx context.Context, deviceUUID, code string) error
	StampApproval(ctx context.Context, deviceUUID, userUUID string, at time.Time) error
}

type deviceRepo struct {
	db *sqlx.DB
}

func NewDeviceRepository(db *sqlx.DB) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) FindByUUID(ctx context.Context, deviceUUID string) (*model.Device, error) {
	var d model.Device
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM devices WHERE device_uuid = $1
	`, deviceUUID)
	return HandleNotFound(&d, err)
}

func (r *deviceRepo) FindBySerial(ctx context.Context, serialNumber string) (*model.Device, error) {
	var d model.Device
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM devices WHERE serial_number = $1
	`, serialNumber)
	return HandleNotFound(&d, err)
}

func (r *deviceRepo) FindByPairingCode(ctx context.Context, code string) (*model.Device, error) {
	var d model.Device
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM devices WHERE pairing_code = $1
	`, code)
	return HandleNotFound(&d, err)
}

func (r *deviceRepo) List(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.SelectContext(ctx, &devices, `
		SELECT * FROM devices ORDER BY created_at DESC
	`)
	return devices, err
}

// Create upserts on serial_number: a device that re-registers after a wipe
// keeps its row and rotates its key hash.
func (r *deviceRepo) Create(ctx context.Context, params model.CreateDeviceParams) (*model.Device, error) {
	var d model.Device
	err := r.db.GetContext(ctx, &d, `
		INSERT INTO devices (device_uuid, serial_number, device_id, key_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (serial_number) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			updated_at = NOW()
		RETURNING *
	`, params.DeviceUUID, params.SerialNumber, params.DeviceID, params.KeyHash)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deviceRepo) RotateKeyHash(ctx context.Context, deviceUUID, keyHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices SET key_hash = $2, updated_at = NOW()
		WHERE device_uuid = $1
	`, deviceUUID, keyHash)
	return err
}

// StampPairingCode refreshes both the retained code and its issuance time;
// the approval window is measured from the latter.
func (r *deviceRepo) StampPairingCode(ctx context.Context, deviceUUID, code string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			pairing_code = $2,
			pairing_code_issued_at = NOW(),
			updated_at = NOW()
		WHERE device_uuid = $1
	`, deviceUUID, code)
	return err
}

func (r *deviceRepo) StampApproval(ctx context.Context, deviceUUID, userUUID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			user_approved_by = $2,
			approved_at = $3,
			updated_at = NOW()
		WHERE device_uuid = $1
	`, deviceUUID, userUUID, at)
	return err
}
