package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/redis"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/realtime"
	"github.com/statusbeacon/bridge-server-go/internal/token"
	"github.com/statusbeacon/bridge-server-go/internal/util"
)

// ExchangeResult is returned to the companion app after a successful
// pairing-code exchange.
type ExchangeResult struct {
	SerialNumber string    `json:"serial_number"`
	DeviceUUID   string    `json:"device_uuid"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenIssuer exchanges a live pairing code for a signed app token. The
// code is consumed in the process; tokens are not refreshable, a new code
// must be exchanged instead.
type TokenIssuer struct {
	codes       *PairingCodeService
	codeRepo    repository.PairingCodeRepository
	pairingRepo repository.PairingRepository
	signer      token.Signer
	notifier    *realtime.Notifier
}

func NewTokenIssuer(
	codes *PairingCodeService,
	codeRepo repository.PairingCodeRepository,
	pairingRepo repository.PairingRepository,
	signer token.Signer,
	notifier *realtime.Notifier,
) *TokenIssuer {
	return &TokenIssuer{
		codes:       codes,
		codeRepo:    codeRepo,
		pairingRepo: pairingRepo,
		signer:      signer,
		notifier:    notifier,
	}
}

// Exchange validates and consumes a pairing code, returning a signed app
// token bound to the code's device. When the caller carries an
// authenticated user, the pairing record is upgraded with that user.
func (s *TokenIssuer) Exchange(ctx context.Context, rawCode string, callerUser *string) (*ExchangeResult, error) {
	code, err := s.codes.Validate(rawCode)
	if err != nil {
		return nil, err
	}

	pc, err := s.codeRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if pc == nil {
		log.Warn().Str("code", util.MaskCode(code)).Msg("pairing code not found")
		return nil, apperrors.NotFound("pairing code")
	}

	// Expired is distinct from not-found so the app can prompt the user to
	// request a fresh code instead of re-typing.
	if s.codes.IsExpired(pc.CreatedAt) {
		log.Warn().Str("code", util.MaskCode(code)).Msg("pairing code expired")
		return nil, apperrors.Expired("pairing code")
	}

	claims := token.NewClaims(token.TypeApp, pc.DeviceUUID, pc.SerialNumber, code, callerUser, config.SignedTokenTTL)
	signed, err := s.signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	// Single-use transition: the conditional delete decides the winner of a
	// raced concurrent exchange. Exactly one caller gets a token.
	consumed, err := s.codeRepo.Consume(ctx, code)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !consumed {
		log.Warn().Str("code", util.MaskCode(code)).Msg("pairing code lost exchange race")
		return nil, apperrors.NotFound("pairing code")
	}

	if _, err := s.pairingRepo.EnsureForDevice(ctx, pc.DeviceUUID); err != nil {
		return nil, apperrors.Database(err)
	}

	// First writer wins on the user assignment; a concurrent exchange by a
	// second authenticated user is not guarded.
	if callerUser != nil {
		if err := s.pairingRepo.SetUserUUID(ctx, pc.DeviceUUID, *callerUser); err != nil {
			return nil, apperrors.Database(err)
		}
	}

	s.notifier.Notify(redis.DeviceChannel(pc.DeviceUUID), "paired", map[string]any{
		"device_uuid": pc.DeviceUUID,
	})

	log.Info().
		Str("deviceUuid", pc.DeviceUUID).
		Str("serial", pc.SerialNumber).
		Msg("pairing code exchanged for app token")

	return &ExchangeResult{
		SerialNumber: pc.SerialNumber,
		DeviceUUID:   pc.DeviceUUID,
		Token:        signed,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}
