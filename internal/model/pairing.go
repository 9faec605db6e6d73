package model

import "time"

// PairingCode is the consumable single-use credential. Exchange deletes the
// row; a row that is gone must read as not-found, never merely expired.
type PairingCode struct {
	Code         string    `db:"code" json:"code"`
	DeviceUUID   string    `db:"device_uuid" json:"deviceUuid"`
	SerialNumber string    `db:"serial_number" json:"serialNumber"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Pairing is the live app/device relationship. Two writers touch this row:
// the companion app's presence push and the background provider sweep.
// It is created lazily and superseded, never deleted.
type Pairing struct {
	ID         string  `db:"id" json:"id"`
	DeviceUUID string  `db:"device_uuid" json:"deviceUuid"`
	UserUUID   *string `db:"user_uuid" json:"userUuid,omitempty"`

	AppConnected bool       `db:"app_connected" json:"appConnected"`
	AppLastSeen  *time.Time `db:"app_last_seen" json:"appLastSeen,omitempty"`

	DeviceConnected bool       `db:"device_connected" json:"deviceConnected"`
	DeviceLastSeen  *time.Time `db:"device_last_seen" json:"deviceLastSeen,omitempty"`

	WebexStatus PresenceStatus `db:"webex_status" json:"webexStatus"`
	CameraOn    bool           `db:"camera_on" json:"cameraOn"`
	MicMuted    bool           `db:"mic_muted" json:"micMuted"`
	InCall      bool           `db:"in_call" json:"inCall"`
	DisplayName *string        `db:"display_name" json:"displayName,omitempty"`

	// UserPollingEnabled opts the device into the sweep's user-scoped
	// second phase (one provider poll per user, fanned out to devices).
	UserPollingEnabled bool `db:"user_polling_enabled" json:"userPollingEnabled"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// UpdateStateParams carries an app-pushed presence update. Nil fields are
// left untouched.
type UpdateStateParams struct {
	WebexStatus *string `json:"webex_status" validate:"omitempty,oneof=active away dnd meeting offline call presenting"`
	CameraOn    *bool   `json:"camera_on"`
	MicMuted    *bool   `json:"mic_muted"`
	InCall      *bool   `json:"in_call"`
	DisplayName *string `json:"display_name"`
}
