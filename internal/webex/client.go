package webex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/model"
)

const (
	authURL     = "https://webexapis.com/v1/authorize"
	tokenURL    = "https://webexapis.com/v1/access_token"
	peopleMeURL = "https://webexapis.com/v1/people/me"
)

// Client talks to the Webex OAuth and people endpoints. All calls are
// bounded-latency; a timeout on one device's token must not stall the sweep.
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string
	scope        string
	http         *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		clientID:     cfg.WebexClientID,
		clientSecret: cfg.WebexClientSecret,
		redirectURI:  cfg.WebexRedirectURI,
		scope:        cfg.WebexScope,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// AuthorizeURL builds the provider authorization URL. The nonce rides in
// state so the callback can be bound back to the originating identity
// without the browser authenticating itself.
func (c *Client) AuthorizeURL(state string) (string, error) {
	if !c.Configured() {
		return "", apperrors.Configuration("Webex OAuth client not configured")
	}

	params := url.Values{
		"client_id":     {c.clientID},
		"response_type": {"code"},
		"redirect_uri":  {c.redirectURI},
		"scope":         {c.scope},
		"state":         {state},
	}

	return authURL + "?" + params.Encode(), nil
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (t *TokenResponse) ExpiresAt() time.Time {
	return time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"redirect_uri":  {c.redirectURI},
	})
}

// Refresh trades a refresh token for a fresh access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
	})
}

func (c *Client) tokenRequest(ctx context.Context, data url.Values) (*TokenResponse, error) {
	if !c.Configured() {
		return nil, apperrors.Configuration("Webex OAuth client not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Upstream("webex", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Upstream("webex", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Msg("webex token request failed")
		return nil, apperrors.Upstream("webex", fmt.Errorf("token endpoint returned %d", resp.StatusCode))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, apperrors.Upstream("webex", err)
	}

	return &tokenResp, nil
}

// FetchPresence reads the token owner's presence and maps it onto the wire
// enum.
func (c *Client) FetchPresence(ctx context.Context, accessToken string) (model.PresenceStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peopleMeURL, nil)
	if err != nil {
		return "", fmt.Errorf("create presence request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.Upstream("webex", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.Upstream("webex", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Msg("webex people/me failed")
		return "", apperrors.Upstream("webex", fmt.Errorf("people/me returned %d", resp.StatusCode))
	}

	var person struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &person); err != nil {
		return "", apperrors.Upstream("webex", err)
	}

	return MapStatus(person.Status), nil
}

// MapStatus converts a Webex person status onto the presence enum.
func MapStatus(status string) model.PresenceStatus {
	switch status {
	case "active":
		return model.PresenceActive
	case "call":
		return model.PresenceCall
	case "DoNotDisturb":
		return model.PresenceDND
	case "meeting":
		return model.PresenceMeeting
	case "presenting":
		return model.PresencePresenting
	case "inactive":
		return model.PresenceAway
	default:
		return model.PresenceOffline
	}
}
