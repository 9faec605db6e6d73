package vault

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/util"
)

// Vault stores secret values behind opaque reference ids. Consumers persist
// only the reference; the value itself never appears in their tables.
type Vault interface {
	Read(ctx context.Context, id string) (string, error)
	Create(ctx context.Context, secret, name string) (string, error)
	Update(ctx context.Context, id, secret string) (string, error)
}

type record struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	Ciphertext string    `db:"ciphertext"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// PostgresVault keeps secrets in a dedicated table, AES-256-GCM encrypted
// when an encryption key is configured.
type PostgresVault struct {
	db     *sqlx.DB
	hexKey string
}

func NewPostgresVault(db *sqlx.DB, hexKey string) *PostgresVault {
	return &PostgresVault{db: db, hexKey: hexKey}
}

func (v *PostgresVault) seal(secret string) (string, error) {
	if v.hexKey == "" {
		return secret, nil
	}
	return util.Encrypt(v.hexKey, secret)
}

func (v *PostgresVault) open(ciphertext string) (string, error) {
	if v.hexKey == "" {
		return ciphertext, nil
	}
	return util.Decrypt(v.hexKey, ciphertext)
}

func (v *PostgresVault) Read(ctx context.Context, id string) (string, error) {
	var rec record
	err := v.db.GetContext(ctx, &rec, `SELECT * FROM vault_secrets WHERE id = $1`, id)
	if err != nil {
		return "", apperrors.NotFound("secret").WithCause(err)
	}
	secret, err := v.open(rec.Ciphertext)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "decrypt secret", err)
	}
	return secret, nil
}

func (v *PostgresVault) Create(ctx context.Context, secret, name string) (string, error) {
	ciphertext, err := v.seal(secret)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "encrypt secret", err)
	}

	id := uuid.NewString()
	_, err = v.db.ExecContext(ctx, `
		INSERT INTO vault_secrets (id, name, ciphertext)
		VALUES ($1, $2, $3)
	`, id, name, ciphertext)
	if err != nil {
		return "", apperrors.Database(err)
	}
	return id, nil
}

func (v *PostgresVault) Update(ctx context.Context, id, secret string) (string, error) {
	ciphertext, err := v.seal(secret)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "encrypt secret", err)
	}

	result, err := v.db.ExecContext(ctx, `
		UPDATE vault_secrets SET ciphertext = $2, updated_at = NOW()
		WHERE id = $1
	`, id, ciphertext)
	if err != nil {
		return "", apperrors.Database(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return "", apperrors.Database(err)
	}
	if rows == 0 {
		return "", apperrors.NotFound("secret")
	}
	return id, nil
}
