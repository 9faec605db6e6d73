package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/statusbeacon/bridge-server-go/internal/model"
)

type AdminUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*model.AdminUser, error)
	List(ctx context.Context) ([]model.AdminUser, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, username, passwordHash string) (*model.AdminUser, error)
	Delete(ctx context.Context, id string) error
}

type adminUserRepo struct {
	db *sqlx.DB
}

func NewAdminUserRepository(db *sqlx.DB) AdminUserRepository {
	return &adminUserRepo{db: db}
}

func (r *adminUserRepo) FindByUsername(ctx context.Context, username string) (*model.AdminUser, error) {
	var u model.AdminUser
	err := r.db.GetContext(ctx, &u, `
		SELECT * FROM admin_users WHERE username = $1
	`, username)
	return HandleNotFound(&u, err)
}

func (r *adminUserRepo) List(ctx context.Context) ([]model.AdminUser, error) {
	var users []model.AdminUser
	err := r.db.SelectContext(ctx, &users, `
		SELECT * FROM admin_users ORDER BY created_at ASC
	`)
	return users, err
}

func (r *adminUserRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM admin_users`)
	return count, err
}

func (r *adminUserRepo) Create(ctx context.Context, username, passwordHash string) (*model.AdminUser, error) {
	var u model.AdminUser
	err := r.db.GetContext(ctx, &u, `
		INSERT INTO admin_users (username, password_hash)
		VALUES ($1, $2)
		RETURNING *
	`, username, passwordHash)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *adminUserRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM admin_users WHERE id = $1`, id)
	return err
}

// Admin Session Repository

type AdminSessionRepository interface {
	Create(ctx context.Context, tokenHash string, expiresAt time.Time) (*model.AdminSession, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.AdminSession, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type adminSessionRepo struct {
	db *sqlx.DB
}

func NewAdminSessionRepository(db *sqlx.DB) AdminSessionRepository {
	return &adminSessionRepo{db: db}
}

func (r *adminSessionRepo) Create(ctx context.Context, tokenHash string, expiresAt time.Time) (*model.AdminSession, error) {
	var s model.AdminSession
	err := r.db.GetContext(ctx, &s, `
		INSERT INTO admin_sessions (token_hash, expires_at)
		VALUES ($1, $2)
		RETURNING *
	`, tokenHash, expiresAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *adminSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.AdminSession, error) {
	var s model.AdminSession
	err := r.db.GetContext(ctx, &s, `
		SELECT * FROM admin_sessions WHERE token_hash = $1 AND expires_at > NOW()
	`, tokenHash)
	return HandleNotFound(&s, err)
}

func (r *adminSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token_hash = $1`, tokenHash)
	return err
}

func (r *adminSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
