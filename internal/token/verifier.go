package token

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
)

// Verifier is the shared signature/expiry/type check used by every
// authenticated entry point. The four failure kinds (expired, wrong type,
// malformed, missing) stay distinguishable for status mapping; callers
// collapse them to one generic message for the wire.
type Verifier struct {
	secret   []byte
	ecdsaKey *ecdsa.PublicKey
	rsaKey   *rsa.PublicKey
}

// NewVerifier derives verification key material from the same config the
// signer was built from. Asymmetric verification uses the public half of the
// configured private key.
func NewVerifier(cfg *config.Config) (*Verifier, error) {
	v := &Verifier{}

	if cfg.TokenSecret != "" {
		v.secret = []byte(cfg.TokenSecret)
	}

	if cfg.TokenPrivateKey != "" {
		if key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.TokenPrivateKey)); err == nil {
			v.ecdsaKey = &key.PublicKey
		} else if key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.TokenPrivateKey)); err == nil {
			v.rsaKey = &key.PublicKey
		} else {
			return nil, apperrors.Configuration("TOKEN_PRIVATE_KEY is neither a valid EC nor RSA private key")
		}
	}

	if v.secret == nil && v.ecdsaKey == nil && v.rsaKey == nil {
		return nil, apperrors.Configuration("no token verification key material configured")
	}

	return v, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.secret == nil {
			return nil, fmt.Errorf("symmetric tokens not accepted")
		}
		return v.secret, nil
	case *jwt.SigningMethodECDSA:
		if v.ecdsaKey == nil {
			return nil, fmt.Errorf("ECDSA tokens not accepted")
		}
		return v.ecdsaKey, nil
	case *jwt.SigningMethodRSA:
		if v.rsaKey == nil {
			return nil, fmt.Errorf("RSA tokens not accepted")
		}
		return v.rsaKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
}

// Verify parses and validates a bearer token and pins the expected type.
func (v *Verifier) Verify(tokenString string, expected Type) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithValidMethods([]string{"HS256", "ES256", "RS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.MalformedToken().WithCause(err)
	}

	if !claims.TokenType.Valid() {
		return nil, apperrors.MalformedToken()
	}
	if claims.TokenType != expected {
		return nil, apperrors.InvalidTokenType(string(expected))
	}

	return claims, nil
}

// VerifyAny accepts either token type; used by the OAuth relay where both
// actors may start a flow.
func (v *Verifier) VerifyAny(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithValidMethods([]string{"HS256", "ES256", "RS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.MalformedToken().WithCause(err)
	}

	if !claims.TokenType.Valid() {
		return nil, apperrors.MalformedToken()
	}

	return claims, nil
}
