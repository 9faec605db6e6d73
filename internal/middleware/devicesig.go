package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/util"
)

const (
	headerDeviceSerial = "X-Device-Serial"
	headerTimestamp    = "X-Timestamp"
	headerSignature    = "X-Signature"
)

const SerialContextKey contextKey = "deviceSerial"

// GetVerifiedSerial returns the serial number proven by a valid request
// signature, or empty on routes without the signature middleware.
func GetVerifiedSerial(ctx context.Context) string {
	if serial, ok := ctx.Value(SerialContextKey).(string); ok {
		return serial
	}
	return ""
}

// DeviceSignatureMiddleware authenticates firmware requests by HMAC over
// serial, timestamp, and body digest. The device signs with its key hash;
// possession of the hash, not the underlying secret, is what the server can
// verify.
type DeviceSignatureMiddleware struct {
	deviceRepo repository.DeviceRepository
}

func NewDeviceSignatureMiddleware(deviceRepo repository.DeviceRepository) *DeviceSignatureMiddleware {
	return &DeviceSignatureMiddleware{deviceRepo: deviceRepo}
}

func (m *DeviceSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return m.middleware(next, true)
}

// Optional verifies the signature only when the headers are present. Routes
// shared by app and device callers use this: a device proves key possession
// and gets a verified serial, an app request without the headers passes
// through. Present-but-invalid headers are still rejected.
func (m *DeviceSignatureMiddleware) Optional(next http.Handler) http.Handler {
	return m.middleware(next, false)
}

func (m *DeviceSignatureMiddleware) middleware(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serial := r.Header.Get(headerDeviceSerial)
		timestamp := r.Header.Get(headerTimestamp)
		signature := r.Header.Get(headerSignature)

		if serial == "" && timestamp == "" && signature == "" && !required {
			next.ServeHTTP(w, r)
			return
		}
		if serial == "" || timestamp == "" || signature == "" {
			writeError(w, apperrors.Unauthorized("Missing signature headers"))
			return
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			writeError(w, apperrors.Unauthorized("Invalid signature"))
			return
		}
		skew := time.Since(time.Unix(ts, 0))
		if skew > config.DeviceSignatureSkew || skew < -config.DeviceSignatureSkew {
			log.Warn().Str("serial", serial).Dur("skew", skew).Msg("device signature: timestamp outside window")
			writeError(w, apperrors.Unauthorized("Invalid signature"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, apperrors.Format("failed to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		device, err := m.deviceRepo.FindBySerial(r.Context(), serial)
		if err != nil {
			log.Error().Err(err).Msg("device signature: database error")
			writeError(w, apperrors.Database(err))
			return
		}
		if device == nil {
			log.Warn().Str("serial", serial).Msg("device signature: unknown serial")
			writeError(w, apperrors.Unauthorized("Invalid signature"))
			return
		}

		message := serial + ":" + timestamp + ":" + util.SHA256Hex(body)
		expected := util.HmacSHA256Base64(device.KeyHash, message)

		if !util.ConstantTimeEqual(expected, signature) {
			log.Warn().Str("serial", serial).Msg("device signature: mismatch")
			writeError(w, apperrors.Unauthorized("Invalid signature"))
			return
		}

		ctx := context.WithValue(r.Context(), SerialContextKey, serial)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
