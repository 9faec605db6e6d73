package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
)

// Signer mints signed bearer tokens. The concrete strategy (symmetric or
// asymmetric) is selected once at startup from available key material; no
// request-path branching.
type Signer interface {
	Sign(claims *Claims) (string, error)
	Algorithm() string
}

type hmacSigner struct {
	secret []byte
}

func (s *hmacSigner) Sign(claims *Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "sign token", err)
	}
	return signed, nil
}

func (s *hmacSigner) Algorithm() string { return jwt.SigningMethodHS256.Alg() }

type privateKeySigner struct {
	method jwt.SigningMethod
	key    any
	kid    string
}

func (s *privateKeySigner) Sign(claims *Claims) (string, error) {
	tok := jwt.NewWithClaims(s.method, claims)
	if s.kid != "" {
		tok.Header["kid"] = s.kid
	}
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "sign token", err)
	}
	return signed, nil
}

func (s *privateKeySigner) Algorithm() string { return s.method.Alg() }

// NewSigner selects the signing strategy. An asymmetric private key, when
// present, always wins over the symmetric fallback; having neither is a
// fatal configuration error.
func NewSigner(cfg *config.Config) (Signer, error) {
	if cfg.TokenPrivateKey != "" {
		if key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.TokenPrivateKey)); err == nil {
			log.Info().Str("alg", "ES256").Str("kid", cfg.TokenKeyID).Msg("token signer initialized")
			return &privateKeySigner{method: jwt.SigningMethodES256, key: key, kid: cfg.TokenKeyID}, nil
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.TokenPrivateKey))
		if err != nil {
			return nil, apperrors.Configuration("TOKEN_PRIVATE_KEY is neither a valid EC nor RSA private key").WithCause(err)
		}
		log.Info().Str("alg", "RS256").Str("kid", cfg.TokenKeyID).Msg("token signer initialized")
		return &privateKeySigner{method: jwt.SigningMethodRS256, key: key, kid: cfg.TokenKeyID}, nil
	}

	if cfg.TokenSecret != "" {
		log.Info().Str("alg", "HS256").Msg("token signer initialized")
		return &hmacSigner{secret: []byte(cfg.TokenSecret)}, nil
	}

	return nil, apperrors.Configuration("no token signing key material configured")
}

// NewClaims builds the standard claim set for an issued token.
func NewClaims(tokenType Type, deviceUUID, serialNumber, pairingCode string, userUUID *string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		DeviceUUID:   deviceUUID,
		UserUUID:     userUUID,
		PairingCode:  pairingCode,
		SerialNumber: serialNumber,
		TokenType:    tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceUUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}
