package model

import "time"

// OAuthToken holds provider credentials for one device or one user. Token
// values never land in this table; AccessTokenRef and RefreshTokenRef are
// opaque vault references.
type OAuthToken struct {
	ID              string     `db:"id" json:"id"`
	Provider        string     `db:"provider" json:"provider"`
	OwnerScope      OwnerScope `db:"owner_scope" json:"ownerScope"`
	DeviceUUID      *string    `db:"device_uuid" json:"deviceUuid,omitempty"`
	UserUUID        *string    `db:"user_uuid" json:"userUuid,omitempty"`
	AccessTokenRef  string     `db:"access_token_ref" json:"-"`
	RefreshTokenRef string     `db:"refresh_token_ref" json:"-"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expiresAt"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

type CreateOAuthTokenParams struct {
	Provider        string
	OwnerScope      OwnerScope
	DeviceUUID      *string
	UserUUID        *string
	AccessTokenRef  string
	RefreshTokenRef string
	ExpiresAt       time.Time
}

// OAuthNonce bridges a token-authenticated relay start and the later
// unauthenticated browser resolve. Read-then-expire, single use.
type OAuthNonce struct {
	Nonce        string    `db:"nonce" json:"nonce"`
	SerialNumber string    `db:"serial_number" json:"serialNumber"`
	DeviceUUID   string    `db:"device_uuid" json:"deviceUuid"`
	UserUUID     *string   `db:"user_uuid" json:"userUuid,omitempty"`
	TokenType    string    `db:"token_type" json:"tokenType"`
	ExpiresAt    time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type CreateOAuthNonceParams struct {
	Nonce        string
	SerialNumber string
	DeviceUUID   string
	UserUUID     *string
	TokenType    string
	ExpiresAt    time.Time
}
