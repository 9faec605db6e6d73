package model

import (
	"encoding/json"
	"time"
)

// Command is a device-bound instruction queued by the companion app.
// Payload is immutable once created; the device reports back via ack.
type Command struct {
	ID           string          `db:"id" json:"id"`
	DeviceUUID   string          `db:"device_uuid" json:"deviceUuid"`
	SerialNumber string          `db:"serial_number" json:"serialNumber"`
	Command      string          `db:"command" json:"command"`
	Payload      json.RawMessage `db:"payload" json:"payload,omitempty"`
	Status       CommandStatus   `db:"status" json:"status"`
	Result       json.RawMessage `db:"result" json:"result,omitempty"`
	Error        *string         `db:"error" json:"error,omitempty"`
	ExpiresAt    time.Time       `db:"expires_at" json:"expiresAt"`
	AckedAt      *time.Time      `db:"acked_at" json:"ackedAt,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

type CreateCommandParams struct {
	DeviceUUID   string
	SerialNumber string
	Command      string
	Payload      json.RawMessage
	ExpiresAt    time.Time
}

type AckCommandParams struct {
	CommandID string
	Success   bool
	Result    json.RawMessage
	Error     *string
}
