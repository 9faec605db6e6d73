package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/middleware"
	"github.com/statusbeacon/bridge-server-go/internal/service"
	"github.com/statusbeacon/bridge-server-go/internal/token"
)

// TokenHandler exposes the pairing-code exchange.
type TokenHandler struct {
	issuer   *service.TokenIssuer
	verifier *token.Verifier
}

func NewTokenHandler(issuer *service.TokenIssuer, verifier *token.Verifier) *TokenHandler {
	return &TokenHandler{issuer: issuer, verifier: verifier}
}

type exchangeRequest struct {
	PairingCode string `json:"pairing_code"`
}

// Exchange handles POST /v1/token/exchange. The route is unauthenticated by
// design: the pairing code is the credential. An optional valid bearer token
// upgrades the pairing with the caller's user identity.
func (h *TokenHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Format("invalid JSON body"))
		return
	}

	var callerUser *string
	if raw := middleware.ExtractBearerToken(r); raw != "" {
		claims, err := h.verifier.VerifyAny(raw)
		if err != nil {
			// An invalid optional token is ignored, not fatal: the exchange
			// stands on the pairing code alone.
			log.Debug().Err(err).Msg("exchange: ignoring invalid bearer token")
		} else if claims.UserUUID != nil {
			callerUser = claims.UserUUID
		}
	}

	result, err := h.issuer.Exchange(r.Context(), req.PairingCode, callerUser)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
