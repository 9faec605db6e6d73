package model

import "time"

// Device is the durable identity record for a physical unit. DeviceUUID is
// the primary identifier; SerialNumber and the legacy DeviceID are kept for
// firmware backward compatibility.
type Device struct {
	DeviceUUID   string  `db:"device_uuid" json:"deviceUuid"`
	SerialNumber string  `db:"serial_number" json:"serialNumber"`
	DeviceID     *string `db:"device_id" json:"deviceId,omitempty"`

	// KeyHash is sha256(device secret); the device proves possession via
	// HMAC request signing, the secret itself never leaves the device.
	KeyHash string `db:"key_hash" json:"-"`

	// PairingCode mirrors the last issued code. Unlike the consumable
	// pairing_codes row it survives the token exchange so that user approval
	// can still resolve the device afterwards. PairingCodeIssuedAt anchors the
	// approval window; it is refreshed every time a new code is stamped.
	PairingCode         *string    `db:"pairing_code" json:"-"`
	PairingCodeIssuedAt *time.Time `db:"pairing_code_issued_at" json:"-"`

	UserApprovedBy *string    `db:"user_approved_by" json:"userApprovedBy,omitempty"`
	ApprovedAt     *time.Time `db:"approved_at" json:"approvedAt,omitempty"`

	DebugEnabled          bool    `db:"debug_enabled" json:"debugEnabled"`
	TargetFirmwareVersion *string `db:"target_firmware_version" json:"targetFirmwareVersion,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type CreateDeviceParams struct {
	DeviceUUID   string
	SerialNumber string
	DeviceID     *string
	KeyHash      string
}
