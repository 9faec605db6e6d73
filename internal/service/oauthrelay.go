package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/token"
	"github.com/statusbeacon/bridge-server-go/internal/util"
	"github.com/statusbeacon/bridge-server-go/internal/vault"
	"github.com/statusbeacon/bridge-server-go/internal/webex"
)

// RelayProvider is the slice of the Webex client the relay needs.
type RelayProvider interface {
	AuthorizeURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*webex.TokenResponse, error)
}

// StartResult hands the caller a browser-openable URL embedding the nonce.
type StartResult struct {
	Nonce     string    `json:"nonce"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OAuthRelayService implements the two-phase, two-identity-context flow: a
// token-authenticated actor mints a one-time nonce, an unauthenticated
// browser later resolves it into the provider authorization URL, and the
// provider callback binds the issued tokens back to the original identity.
type OAuthRelayService struct {
	nonceRepo  repository.OAuthNonceRepository
	oauthRepo  repository.OAuthTokenRepository
	deviceRepo repository.DeviceRepository
	vault      vault.Vault
	provider   RelayProvider
	baseURL    string
}

func NewOAuthRelayService(
	nonceRepo repository.OAuthNonceRepository,
	oauthRepo repository.OAuthTokenRepository,
	deviceRepo repository.DeviceRepository,
	v vault.Vault,
	provider RelayProvider,
	baseURL string,
) *OAuthRelayService {
	return &OAuthRelayService{
		nonceRepo:  nonceRepo,
		oauthRepo:  oauthRepo,
		deviceRepo: deviceRepo,
		vault:      v,
		provider:   provider,
		baseURL:    baseURL,
	}
}

// Start creates a nonce scoped to the caller's proven identity. Device-type
// callers have already passed the request-signature check in the handler;
// here the proven serial must match the token's claim.
func (s *OAuthRelayService) Start(ctx context.Context, claims *token.Claims, provenSerial string) (*StartResult, error) {
	if claims.TokenType == token.TypeDevice {
		if provenSerial == "" || provenSerial != claims.SerialNumber {
			log.Warn().
				Str("provenSerial", provenSerial).
				Str("claimedSerial", claims.SerialNumber).
				Msg("oauth relay: device identity mismatch")
			return nil, apperrors.Unauthorized("device identity mismatch")
		}
	}

	nonce, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "generate nonce", err)
	}

	row, err := s.nonceRepo.Create(ctx, model.CreateOAuthNonceParams{
		Nonce:        nonce,
		SerialNumber: claims.SerialNumber,
		DeviceUUID:   claims.DeviceUUID,
		UserUUID:     claims.UserUUID,
		TokenType:    string(claims.TokenType),
		ExpiresAt:    time.Now().Add(config.OAuthNonceTTL),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("deviceUuid", claims.DeviceUUID).
		Str("tokenType", string(claims.TokenType)).
		Msg("oauth relay started")

	return &StartResult{
		Nonce:     row.Nonce,
		URL:       fmt.Sprintf("%s/v1/oauth/authorize?nonce=%s", s.baseURL, row.Nonce),
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// Resolve turns a live nonce into the provider authorization URL. The
// browser holds no credentials; the nonce alone carries the identity, so a
// missing or expired nonce is Unauthorized rather than NotFound.
func (s *OAuthRelayService) Resolve(ctx context.Context, nonce string) (string, error) {
	row, err := s.nonceRepo.FindByNonce(ctx, nonce)
	if err != nil {
		return "", apperrors.Database(err)
	}
	if row == nil {
		return "", apperrors.Unauthorized("invalid or expired nonce")
	}

	return s.provider.AuthorizeURL(row.Nonce)
}

// Complete finishes the flow at the provider callback: consumes the nonce
// carried in state, re-derives the original identity, exchanges the code,
// and persists the tokens as vault references only.
func (s *OAuthRelayService) Complete(ctx context.Context, code, state string) error {
	row, err := s.nonceRepo.Consume(ctx, state)
	if err != nil {
		return apperrors.Database(err)
	}
	if row == nil {
		return apperrors.Unauthorized("invalid or expired state")
	}

	// Device-scoped flows re-validate that the resolved device identity is
	// still registered before trusting it.
	if row.TokenType == string(token.TypeDevice) {
		device, err := s.deviceRepo.FindByUUID(ctx, row.DeviceUUID)
		if err != nil {
			return apperrors.Database(err)
		}
		if device == nil || device.SerialNumber != row.SerialNumber {
			return apperrors.Unauthorized("device identity mismatch")
		}
	}

	tokens, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return err
	}

	scope := model.ScopeUser
	if row.TokenType == string(token.TypeDevice) {
		scope = model.ScopeDevice
	}

	if err := s.persistTokens(ctx, scope, row, tokens); err != nil {
		return err
	}

	log.Info().
		Str("deviceUuid", row.DeviceUUID).
		Str("scope", string(scope)).
		Msg("oauth relay completed")

	return nil
}

func (s *OAuthRelayService) persistTokens(ctx context.Context, scope model.OwnerScope, row *model.OAuthNonce, tokens *webex.TokenResponse) error {
	var existing *model.OAuthToken
	var err error

	switch scope {
	case model.ScopeDevice:
		existing, err = s.oauthRepo.FindByProviderAndDevice(ctx, model.ProviderWebex, row.DeviceUUID)
	case model.ScopeUser:
		if row.UserUUID == nil {
			return apperrors.Unauthorized("no user identity bound to this flow")
		}
		existing, err = s.oauthRepo.FindByProviderAndUser(ctx, model.ProviderWebex, *row.UserUUID)
	}
	if err != nil {
		return apperrors.Database(err)
	}

	if existing != nil {
		if _, err := s.vault.Update(ctx, existing.AccessTokenRef, tokens.AccessToken); err != nil {
			return err
		}
		if tokens.RefreshToken != "" {
			if _, err := s.vault.Update(ctx, existing.RefreshTokenRef, tokens.RefreshToken); err != nil {
				return err
			}
		}
		if err := s.oauthRepo.UpdateExpiry(ctx, existing.ID, tokens.ExpiresAt()); err != nil {
			return apperrors.Database(err)
		}
		return nil
	}

	accessRef, err := s.vault.Create(ctx, tokens.AccessToken,
		fmt.Sprintf("webex-access-%s", row.DeviceUUID))
	if err != nil {
		return err
	}
	refreshRef, err := s.vault.Create(ctx, tokens.RefreshToken,
		fmt.Sprintf("webex-refresh-%s", row.DeviceUUID))
	if err != nil {
		return err
	}

	var deviceUUID *string
	if scope == model.ScopeDevice {
		deviceUUID = &row.DeviceUUID
	}

	_, err = s.oauthRepo.Create(ctx, model.CreateOAuthTokenParams{
		Provider:        model.ProviderWebex,
		OwnerScope:      scope,
		DeviceUUID:      deviceUUID,
		UserUUID:        row.UserUUID,
		AccessTokenRef:  accessRef,
		RefreshTokenRef: refreshRef,
		ExpiresAt:       tokens.ExpiresAt(),
	})
	if err != nil {
		return apperrors.Database(err)
	}
	return nil
}
