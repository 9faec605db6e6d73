package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/token"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// GetClaims returns the verified token claims placed by the auth middleware,
// or nil on unauthenticated routes.
func GetClaims(ctx context.Context) *token.Claims {
	if claims, ok := ctx.Value(ClaimsContextKey).(*token.Claims); ok {
		return claims
	}
	return nil
}

// AuthMiddleware verifies issued bearer tokens. The wire response is one
// generic 401 regardless of which check failed; the distinction stays in the
// logs.
type AuthMiddleware struct {
	verifier *token.Verifier
}

func NewAuthMiddleware(verifier *token.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Require pins the route to one token type.
func (m *AuthMiddleware) Require(expected token.Type) func(http.Handler) http.Handler {
	return m.handler(func(raw string) (*token.Claims, error) {
		return m.verifier.Verify(raw, expected)
	})
}

// RequireAny accepts either token type.
func (m *AuthMiddleware) RequireAny() func(http.Handler) http.Handler {
	return m.handler(m.verifier.VerifyAny)
}

func (m *AuthMiddleware) handler(verify func(string) (*token.Claims, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ExtractBearerToken(r)
			if raw == "" {
				writeError(w, apperrors.Unauthorized("Missing authentication token"))
				return
			}

			claims, err := verify(raw)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("auth middleware: token rejected")
				writeError(w, apperrors.Unauthorized("Invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractBearerToken reads the Authorization header, falling back to the
// token query parameter for EventSource clients that cannot set headers.
func ExtractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
