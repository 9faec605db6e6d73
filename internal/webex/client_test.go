package webex

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/model"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		webex string
		want  model.PresenceStatus
	}{
		{"active", model.PresenceActive},
		{"call", model.PresenceCall},
		{"DoNotDisturb", model.PresenceDND},
		{"meeting", model.PresenceMeeting},
		{"presenting", model.PresencePresenting},
		{"inactive", model.PresenceAway},
		{"OutOfOffice", model.PresenceOffline},
		{"pending", model.PresenceOffline},
		{"", model.PresenceOffline},
	}
	for _, tc := range cases {
		t.Run(tc.webex, func(t *testing.T) {
			assert.Equal(t, tc.want, MapStatus(tc.webex))
		})
	}
}

func TestConfigured(t *testing.T) {
	assert.False(t, NewClient(&config.Config{}).Configured())
	assert.False(t, NewClient(&config.Config{WebexClientID: "id"}).Configured())
	assert.True(t, NewClient(&config.Config{WebexClientID: "id", WebexClientSecret: "secret"}).Configured())
}

func TestAuthorizeURL(t *testing.T) {
	t.Run("embeds client, redirect, scope and state", func(t *testing.T) {
		c := NewClient(&config.Config{
			WebexClientID:     "client-1",
			WebexClientSecret: "secret",
			WebexRedirectURI:  "https://bridge.example.com/v1/oauth/callback",
			WebexScope:        "spark:people_read",
		})

		raw, err := c.AuthorizeURL("nonce-abc")
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "webexapis.com", u.Host)
		q := u.Query()
		assert.Equal(t, "client-1", q.Get("client_id"))
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "https://bridge.example.com/v1/oauth/callback", q.Get("redirect_uri"))
		assert.Equal(t, "spark:people_read", q.Get("scope"))
		assert.Equal(t, "nonce-abc", q.Get("state"))
	})

	t.Run("unconfigured client is a configuration error", func(t *testing.T) {
		_, err := NewClient(&config.Config{}).AuthorizeURL("nonce")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeConfiguration, apperrors.GetCode(err))
	})
}

func TestTokenResponseExpiresAt(t *testing.T) {
	resp := &TokenResponse{ExpiresIn: 3600}
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt(), 2*time.Second)
}
