package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/util"
)

// AdminSessionMiddleware guards the operator surface with opaque session
// tokens. Only the token hash ever touches the database.
type AdminSessionMiddleware struct {
	sessionRepo repository.AdminSessionRepository
}

func NewAdminSessionMiddleware(sessionRepo repository.AdminSessionRepository) *AdminSessionMiddleware {
	return &AdminSessionMiddleware{sessionRepo: sessionRepo}
}

func (m *AdminSessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := ExtractBearerToken(r)
		if raw == "" {
			writeError(w, apperrors.Unauthorized("Missing session token"))
			return
		}

		session, err := m.sessionRepo.FindByTokenHash(r.Context(), util.HashToken(raw))
		if err != nil {
			log.Error().Err(err).Msg("admin session middleware: database error")
			writeError(w, apperrors.Database(err))
			return
		}
		if session == nil {
			log.Warn().Msg("admin session middleware: invalid session token")
			writeError(w, apperrors.Unauthorized("Invalid session token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
