package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/statusbeacon/bridge-server-go/internal/model"
)

type OAuthTokenRepository interface {
	FindByID(ctx context.Context, id string) (*model.OAuthToken, error)
	FindByProviderAndDevice(ctx context.Context, provider, deviceUUID string) (*model.OAuthToken, error)
	FindByProviderAndUser(ctx context.Context, provider, userUUID string) (*model.OAuthToken, error)
	ListByScope(ctx context.Context, scope model.OwnerScope) ([]model.OAuthToken, error)
	Create(ctx context.Context, params model.CreateOAuthTokenParams) (*model.OAuthToken, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
}

type oauthTokenRepo struct {
	db *sqlx.DB
}

func NewOAuthTokenRepository(db *sqlx.DB) OAuthTokenRepository {
	return &oauthTokenRepo{db: db}
}

func (r *oauthTokenRepo) FindByID(ctx context.Context, id string) (*model.OAuthToken, error) {
	var t model.OAuthToken
	err := r.db.GetContext(ctx, &t, `
		SELECT * FROM oauth_tokens WHERE id = $1
	`, id)
	return HandleNotFound(&t, err)
}

func (r *oauthTokenRepo) FindByProviderAndDevice(ctx context.Context, provider, deviceUUID string) (*model.OAuthToken, error) {
	var t model.OAuthToken
	err := r.db.GetContext(ctx, &t, `
		SELECT * FROM oauth_tokens
		WHERE provider = $1 AND device_uuid = $2 AND owner_scope = 'device'
	`, provider, deviceUUID)
	return HandleNotFound(&t, err)
}

func (r *oauthTokenRepo) FindByProviderAndUser(ctx context.Context, provider, userUUID string) (*model.OAuthToken, error) {
	var t model.OAuthToken
	err := r.db.GetContext(ctx, &t, `
		SELECT * FROM oauth_tokens
		WHERE provider = $1 AND user_uuid = $2 AND owner_scope = 'user'
	`, provider, userUUID)
	return HandleNotFound(&t, err)
}

func (r *oauthTokenRepo) ListByScope(ctx context.Context, scope model.OwnerScope) ([]model.OAuthToken, error) {
	var tokens []model.OAuthToken
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT * FROM oauth_tokens WHERE owner_scope = $1 ORDER BY created_at ASC
	`, scope)
	return tokens, err
}

func (r *oauthTokenRepo) Create(ctx context.Context, params model.CreateOAuthTokenParams) (*model.OAuthToken, error) {
	var t model.OAuthToken
	err := r.db.GetContext(ctx, &t, `
		INSERT INTO oauth_tokens (provider, owner_scope, device_uuid, user_uuid, access_token_ref, refresh_token_ref, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.Provider, params.OwnerScope, params.DeviceUUID, params.UserUUID,
		params.AccessTokenRef, params.RefreshTokenRef, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateExpiry is the only mutation a refresh needs on this table: the
// secret material itself lives in the vault and is updated in place there.
func (r *oauthTokenRepo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE oauth_tokens SET expires_at = $2, updated_at = NOW()
		WHERE id = $1
	`, id, expiresAt)
	return err
}

func (r *oauthTokenRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE id = $1`, id)
	return err
}

// OAuth Nonce Repository

type OAuthNonceRepository interface {
	Create(ctx context.Context, params model.CreateOAuthNonceParams) (*model.OAuthNonce, error)
	FindByNonce(ctx context.Context, nonce string) (*model.OAuthNonce, error)
	Consume(ctx context.Context, nonce string) (*model.OAuthNonce, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type oauthNonceRepo struct {
	db *sqlx.DB
}

func NewOAuthNonceRepository(db *sqlx.DB) OAuthNonceRepository {
	return &oauthNonceRepo{db: db}
}

func (r *oauthNonceRepo) Create(ctx context.Context, params model.CreateOAuthNonceParams) (*model.OAuthNonce, error) {
	var n model.OAuthNonce
	err := r.db.GetContext(ctx, &n, `
		INSERT INTO oauth_nonces (nonce, serial_number, device_uuid, user_uuid, token_type, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.Nonce, params.SerialNumber, params.DeviceUUID, params.UserUUID, params.TokenType, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *oauthNonceRepo) FindByNonce(ctx context.Context, nonce string) (*model.OAuthNonce, error) {
	var n model.OAuthNonce
	err := r.db.GetContext(ctx, &n, `
		SELECT * FROM oauth_nonces WHERE nonce = $1 AND expires_at > NOW()
	`, nonce)
	return HandleNotFound(&n, err)
}

// Consume atomically removes and returns the nonce. The single read-then-
// expire semantics mirror the pairing-code exchange.
func (r *oauthNonceRepo) Consume(ctx context.Context, nonce string) (*model.OAuthNonce, error) {
	var n model.OAuthNonce
	err := r.db.GetContext(ctx, &n, `
		DELETE FROM oauth_nonces
		WHERE nonce = $1 AND expires_at > NOW()
		RETURNING *
	`, nonce)
	return HandleNotFound(&n, err)
}

func (r *oauthNonceRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM oauth_nonces WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
