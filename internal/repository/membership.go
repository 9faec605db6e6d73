package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// MembershipRepository records user/device approval links. The pairing row
// is the read path for "who owns this device"; the membership table exists
// as the durable many-to-many audit record, so writes are all it needs.
type MembershipRepository interface {
	Upsert(ctx context.Context, userUUID, deviceUUID string) error
}

type membershipRepo struct {
	db *sqlx.DB
}

func NewMembershipRepository(db *sqlx.DB) MembershipRepository {
	return &membershipRepo{db: db}
}

// Upsert tolerates concurrent duplicate approval attempts; a retry is not
// an error.
func (r *membershipRepo) Upsert(ctx context.Context, userUUID, deviceUUID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_memberships (user_uuid, device_uuid)
		VALUES ($1, $2)
		ON CONFLICT (user_uuid, device_uuid) DO NOTHING
	`, userUUID, deviceUUID)
	return err
}
