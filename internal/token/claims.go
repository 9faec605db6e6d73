package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Type discriminates app tokens (held by the companion app) from device
// tokens (held by the firmware). Commands flow app→device only, so every
// authenticated entry point pins the type it accepts.
type Type string

const (
	TypeApp    Type = "app"
	TypeDevice Type = "device"
)

func (t Type) Valid() bool {
	return t == TypeApp || t == TypeDevice
}

// Claims is the closed claim set of a signed bearer token. The shape is
// versioned by construction: required fields are non-pointer, optional ones
// are pointers, and TokenType is an enum rather than a free string.
type Claims struct {
	DeviceUUID   string  `json:"device_uuid"`
	UserUUID     *string `json:"user_uuid,omitempty"`
	PairingCode  string  `json:"pairing_code,omitempty"`
	SerialNumber string  `json:"serial_number"`
	TokenType    Type    `json:"token_type"`
	jwt.RegisteredClaims
}
