package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/statusbeacon/bridge-server-go/internal/model"
)

// ErrForeignKey reports a referential-integrity failure on insert (the
// pairing record the command references is missing).
var ErrForeignKey = errors.New("foreign key violation")

type CommandRepository interface {
	FindByID(ctx context.Context, id string) (*model.Command, error)
	Create(ctx context.Context, params model.CreateCommandParams) (*model.Command, error)
	ListPending(ctx context.Context, deviceUUID string) ([]model.Command, error)
	Ack(ctx context.Context, params model.AckCommandParams) (*model.Command, error)
	MarkExpired(ctx context.Context) (int64, error)
}

type commandRepo struct {
	db *sqlx.DB
}

func NewCommandRepository(db *sqlx.DB) CommandRepository {
	return &commandRepo{db: db}
}

func (r *commandRepo) FindByID(ctx context.Context, id string) (*model.Command, error) {
	var c model.Command
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM commands WHERE id = $1
	`, id)
	return HandleNotFound(&c, err)
}

func (r *commandRepo) Create(ctx context.Context, params model.CreateCommandParams) (*model.Command, error) {
	var c model.Command
	err := r.db.GetContext(ctx, &c, `
		INSERT INTO commands (device_uuid, serial_number, command, payload, status, expires_at)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		RETURNING *
	`, params.DeviceUUID, params.SerialNumber, params.Command, params.Payload, params.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, ErrForeignKey
		}
		return nil, err
	}
	return &c, nil
}

func (r *commandRepo) ListPending(ctx context.Context, deviceUUID string) ([]model.Command, error) {
	var commands []model.Command
	err := r.db.SelectContext(ctx, &commands, `
		SELECT * FROM commands
		WHERE device_uuid = $1 AND status = 'pending' AND expires_at > NOW()
		ORDER BY created_at ASC
	`, deviceUUID)
	return commands, err
}

func (r *commandRepo) Ack(ctx context.Context, params model.AckCommandParams) (*model.Command, error) {
	var c model.Command
	err := r.db.GetContext(ctx, &c, `
		UPDATE commands SET
			status = 'acked',
			result = $2,
			error = $3,
			acked_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, params.CommandID, params.Result, params.Error, time.Now())
	return HandleNotFound(&c, err)
}

func (r *commandRepo) MarkExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE commands SET status = 'expired'
		WHERE status = 'pending' AND expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
