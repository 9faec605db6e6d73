package handler

import (
	"fmt"
	"net/http"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/middleware"
	"github.com/statusbeacon/bridge-server-go/internal/service"
)

// OAuthHandler exposes the three legs of the relayed provider flow: an
// authenticated start, an unauthenticated browser-facing authorize redirect,
// and the provider callback.
type OAuthHandler struct {
	relay *service.OAuthRelayService
}

func NewOAuthHandler(relay *service.OAuthRelayService) *OAuthHandler {
	return &OAuthHandler{relay: relay}
}

// Start handles POST /v1/oauth/start.
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	result, err := h.relay.Start(r.Context(), claims, middleware.GetVerifiedSerial(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Authorize handles GET /v1/oauth/authorize. The browser carries only the
// nonce; a valid one redirects to the provider consent page.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	nonce := r.URL.Query().Get("nonce")
	if nonce == "" {
		writeError(w, apperrors.Unauthorized("Missing nonce"))
		return
	}

	url, err := h.relay.Resolve(r.Context(), nonce)
	if err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Callback handles GET /v1/oauth/callback from the provider.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		writeError(w, apperrors.Upstream("webex", fmt.Errorf("authorization denied: %s", errParam)))
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, apperrors.Format("missing code or state"))
		return
	}

	if err := h.relay.Complete(r.Context(), code, state); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "<html><body><h1>Connected</h1><p>You can close this window.</p></body></html>")
}
