package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/realtime"
	"github.com/statusbeacon/bridge-server-go/internal/redis"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/vault"
	"github.com/statusbeacon/bridge-server-go/internal/webex"
)

// Provider is the slice of the Webex client the sweep needs.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string) (*webex.TokenResponse, error)
	FetchPresence(ctx context.Context, accessToken string) (model.PresenceStatus, error)
}

// Locker guards a token refresh against an overlapping sweep cycle.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// SweepResult reports per-item outcomes. The sweep never fails atomically:
// one revoked token or provider outage must not stop reconciliation for the
// other devices.
type SweepResult struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Sweeper is the background reconciliation pass over stored provider
// tokens. It is the only looping writer of pairing state; app pushes win
// inside the collision window.
type Sweeper struct {
	oauthRepo   repository.OAuthTokenRepository
	pairingRepo repository.PairingRepository
	vault       vault.Vault
	provider    Provider
	locker      Locker
	notifier    *realtime.Notifier
}

func NewSweeper(
	oauthRepo repository.OAuthTokenRepository,
	pairingRepo repository.PairingRepository,
	v vault.Vault,
	provider Provider,
	locker Locker,
	notifier *realtime.Notifier,
) *Sweeper {
	return &Sweeper{
		oauthRepo:   oauthRepo,
		pairingRepo: pairingRepo,
		vault:       v,
		provider:    provider,
		locker:      locker,
		notifier:    notifier,
	}
}

// Run executes one sweep: device-scoped tokens first, then one poll per
// user for devices opted into user-level polling.
func (s *Sweeper) Run(ctx context.Context) SweepResult {
	var result SweepResult

	deviceTokens, err := s.oauthRepo.ListByScope(ctx, model.ScopeDevice)
	if err != nil {
		log.Error().Err(err).Msg("sweep: list device tokens")
		result.Failed++
		return result
	}

	for i := range deviceTokens {
		s.sweepDeviceToken(ctx, &deviceTokens[i], &result)
	}

	s.sweepUserTokens(ctx, &result)

	log.Info().
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("presence sweep finished")

	return result
}

func (s *Sweeper) sweepDeviceToken(ctx context.Context, tok *model.OAuthToken, result *SweepResult) {
	if tok.DeviceUUID == nil {
		result.Skipped++
		return
	}

	pairing, err := s.pairingRepo.FindByDeviceUUID(ctx, *tok.DeviceUUID)
	if err != nil {
		s.fail(result, err, *tok.DeviceUUID, "load pairing")
		return
	}

	// Collision window: a fresh app push is authoritative, skip entirely
	// (no provider call, no write).
	if pairing != nil && pairing.AppLastSeen != nil &&
		time.Since(*pairing.AppLastSeen) <= config.SweepCollisionWindow {
		result.Skipped++
		return
	}

	status, ok := s.pollStatus(ctx, tok, result)
	if !ok {
		return
	}

	if pairing != nil && pairing.WebexStatus == status {
		result.Skipped++
		return
	}

	if err := s.pairingRepo.UpdateWebexStatus(ctx, *tok.DeviceUUID, status); err != nil {
		s.fail(result, err, *tok.DeviceUUID, "write status")
		return
	}
	s.broadcastChange(*tok.DeviceUUID, pairing, status)
	result.Updated++
}

// sweepUserTokens polls once per user and fans the status out to all of that
// user's opted-in devices, bounding provider API calls.
func (s *Sweeper) sweepUserTokens(ctx context.Context, result *SweepResult) {
	users, err := s.pairingRepo.ListUserPollingUsers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweep: list polling users")
		result.Failed++
		return
	}

	for _, userUUID := range users {
		tok, err := s.oauthRepo.FindByProviderAndUser(ctx, model.ProviderWebex, userUUID)
		if err != nil {
			s.fail(result, err, userUUID, "load user token")
			continue
		}
		if tok == nil {
			result.Skipped++
			continue
		}

		status, ok := s.pollStatus(ctx, tok, result)
		if !ok {
			continue
		}

		pairings, err := s.pairingRepo.ListByUserUUID(ctx, userUUID)
		if err != nil {
			s.fail(result, err, userUUID, "list user pairings")
			continue
		}

		for i := range pairings {
			p := &pairings[i]
			if !p.UserPollingEnabled {
				continue
			}
			if p.AppLastSeen != nil && time.Since(*p.AppLastSeen) <= config.SweepCollisionWindow {
				result.Skipped++
				continue
			}
			if p.WebexStatus == status {
				result.Skipped++
				continue
			}
			if err := s.pairingRepo.UpdateWebexStatus(ctx, p.DeviceUUID, status); err != nil {
				s.fail(result, err, p.DeviceUUID, "write status")
				continue
			}
			s.broadcastChange(p.DeviceUUID, p, status)
			result.Updated++
		}
	}
}

// pollStatus refreshes the provider token if needed and fetches presence.
// Returns false after counting the item as skipped or failed.
func (s *Sweeper) pollStatus(ctx context.Context, tok *model.OAuthToken, result *SweepResult) (model.PresenceStatus, bool) {
	if time.Until(tok.ExpiresAt) <= config.TokenRefreshHorizon {
		refreshed, err := s.refresh(ctx, tok)
		if err != nil {
			s.fail(result, err, tok.ID, "refresh token")
			return "", false
		}
		if !refreshed {
			// Another sweep cycle holds the refresh lock.
			result.Skipped++
			return "", false
		}
	}

	access, err := s.vault.Read(ctx, tok.AccessTokenRef)
	if err != nil {
		s.fail(result, err, tok.ID, "read access token")
		return "", false
	}

	status, err := s.provider.FetchPresence(ctx, access)
	if err != nil {
		s.fail(result, err, tok.ID, "fetch presence")
		return "", false
	}

	return status, true
}

// refresh proactively renews the provider access token and persists fresh
// vault references. The advisory lock keeps an overlapping sweep from
// refreshing the same token and invalidating a refresh token mid-flight.
func (s *Sweeper) refresh(ctx context.Context, tok *model.OAuthToken) (bool, error) {
	acquired, err := s.locker.AcquireLock(ctx, redis.RefreshLockKey(tok.ID), config.RefreshLockTTL)
	if err != nil {
		return false, fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !acquired {
		return false, nil
	}
	defer s.locker.ReleaseLock(ctx, redis.RefreshLockKey(tok.ID))

	refreshToken, err := s.vault.Read(ctx, tok.RefreshTokenRef)
	if err != nil {
		return false, fmt.Errorf("read refresh token: %w", err)
	}

	resp, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return false, err
	}

	if _, err := s.vault.Update(ctx, tok.AccessTokenRef, resp.AccessToken); err != nil {
		return false, fmt.Errorf("persist access token: %w", err)
	}
	if resp.RefreshToken != "" {
		if _, err := s.vault.Update(ctx, tok.RefreshTokenRef, resp.RefreshToken); err != nil {
			return false, fmt.Errorf("persist refresh token: %w", err)
		}
	}

	expiresAt := resp.ExpiresAt()
	if err := s.oauthRepo.UpdateExpiry(ctx, tok.ID, expiresAt); err != nil {
		return false, fmt.Errorf("persist token expiry: %w", err)
	}
	tok.ExpiresAt = expiresAt

	log.Debug().Str("tokenId", tok.ID).Msg("provider token refreshed")
	return true, nil
}

func (s *Sweeper) broadcastChange(deviceUUID string, pairing *model.Pairing, status model.PresenceStatus) {
	payload := map[string]any{
		"device_uuid":  deviceUUID,
		"webex_status": status,
	}
	s.notifier.Notify(redis.DeviceChannel(deviceUUID), "presence", payload)
	if pairing != nil && pairing.UserUUID != nil {
		s.notifier.Notify(redis.UserChannel(*pairing.UserUUID), "presence", payload)
	}
}

func (s *Sweeper) fail(result *SweepResult, err error, id, op string) {
	log.Error().Err(err).Str("id", id).Str("op", op).Msg("sweep item failed")
	result.Failed++
}
