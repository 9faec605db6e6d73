package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/util"
)

// pairingCodeChars excludes visually ambiguous characters (I, O, 0, 1).
// Shared wire contract with the device display; exactly 32 symbols.
const pairingCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const pairingCodeLength = 6

// PairingCodeService owns the pairing-code lifecycle: generation,
// normalization, format validation, and the expiry cutoff.
type PairingCodeService struct {
	codeRepo   repository.PairingCodeRepository
	deviceRepo repository.DeviceRepository
}

func NewPairingCodeService(
	codeRepo repository.PairingCodeRepository,
	deviceRepo repository.DeviceRepository,
) *PairingCodeService {
	return &PairingCodeService{
		codeRepo:   codeRepo,
		deviceRepo: deviceRepo,
	}
}

// Generate issues a fresh code for the device, superseding any live one.
// A device owns at most one live code at a time.
func (s *PairingCodeService) Generate(ctx context.Context, deviceUUID string) (*model.PairingCode, error) {
	device, err := s.deviceRepo.FindByUUID(ctx, deviceUUID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if device == nil {
		return nil, apperrors.NotFound("device")
	}

	code := generateRandomCode()

	pc, err := s.codeRepo.Replace(ctx, code, device.DeviceUUID, device.SerialNumber)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	// The device row keeps a copy so approval can resolve the device after
	// the consumable row is exchanged.
	if err := s.deviceRepo.StampPairingCode(ctx, device.DeviceUUID, code); err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("code", util.MaskCode(code)).
		Str("deviceUuid", device.DeviceUUID).
		Msg("pairing code created")

	return pc, nil
}

// Validate normalizes and format-checks a raw code. Uppercases and trims
// first; rejects anything that is not exactly 6 characters from the
// 32-symbol alphabet.
func (s *PairingCodeService) Validate(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))

	if len(code) != pairingCodeLength {
		return "", apperrors.Format(fmt.Sprintf("pairing code must be exactly %d characters", pairingCodeLength))
	}

	for _, c := range code {
		if !strings.ContainsRune(pairingCodeChars, c) {
			return "", apperrors.Format(fmt.Sprintf("pairing code contains invalid character %q", c))
		}
	}

	return code, nil
}

// IsExpired reports whether a code created at the given time is past its
// window. Hard cutoff, no clock skew compensation.
func (s *PairingCodeService) IsExpired(createdAt time.Time) bool {
	return time.Since(createdAt) > config.PairingCodeTTL
}

func generateRandomCode() string {
	chars := []byte(pairingCodeChars)
	code := make([]byte, pairingCodeLength)

	for i := 0; i < pairingCodeLength; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		code[i] = chars[n.Int64()]
	}

	return string(code)
}
