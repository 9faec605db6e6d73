package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/token"
)

type mockDeviceRepo struct {
	devices map[string]*model.Device // by serial
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{devices: make(map[string]*model.Device)}
}

func (m *mockDeviceRepo) FindByUUID(_ context.Context, deviceUUID string) (*model.Device, error) {
	for _, d := range m.devices {
		if d.DeviceUUID == deviceUUID {
			return d, nil
		}
	}
	return nil, nil
}

func (m *mockDeviceRepo) FindBySerial(_ context.Context, serialNumber string) (*model.Device, error) {
	return m.devices[serialNumber], nil
}

func (m *mockDeviceRepo) FindByPairingCode(_ context.Context, code string) (*model.Device, error) {
	for _, d := range m.devices {
		if d.PairingCode != nil && *d.PairingCode == code {
			return d, nil
		}
	}
	return nil, nil
}

func (m *mockDeviceRepo) List(_ context.Context) ([]model.Device, error) {
	return nil, nil
}

func (m *mockDeviceRepo) Create(_ context.Context, params model.CreateDeviceParams) (*model.Device, error) {
	d := &model.Device{
		DeviceUUID:   params.DeviceUUID,
		SerialNumber: params.SerialNumber,
		KeyHash:      params.KeyHash,
	}
	m.devices[params.SerialNumber] = d
	return d, nil
}

func (m *mockDeviceRepo) RotateKeyHash(_ context.Context, _, _ string) error { return nil }

func (m *mockDeviceRepo) StampPairingCode(_ context.Context, _, _ string) error { return nil }

func (m *mockDeviceRepo) StampApproval(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func newTestTokenPair(t *testing.T) (token.Signer, *token.Verifier) {
	t.Helper()
	cfg := &config.Config{TokenSecret: "test-secret-0123456789abcdef0123456789"}
	signer, err := token.NewSigner(cfg)
	require.NoError(t, err)
	verifier, err := token.NewVerifier(cfg)
	require.NoError(t, err)
	return signer, verifier
}

func echoClaims(t *testing.T, captured **token.Claims) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = GetClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	signer, verifier := newTestTokenPair(t)
	m := NewAuthMiddleware(verifier)

	signToken := func(typ token.Type) string {
		raw, err := signer.Sign(token.NewClaims(typ, "dev-1", "SN-1", "", nil, time.Hour))
		require.NoError(t, err)
		return raw
	}

	t.Run("missing token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
		rec := httptest.NewRecorder()

		var claims *token.Claims
		m.Require(token.TypeApp)(echoClaims(t, &claims)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, claims)
	})

	t.Run("garbage token is rejected with a generic message", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()

		var claims *token.Claims
		m.Require(token.TypeApp)(echoClaims(t, &claims)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid token")
	})

	t.Run("wrong token type is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(token.TypeDevice))
		rec := httptest.NewRecorder()

		var claims *token.Claims
		m.Require(token.TypeApp)(echoClaims(t, &claims)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token passes claims to the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(token.TypeApp))
		rec := httptest.NewRecorder()

		var claims *token.Claims
		m.Require(token.TypeApp)(echoClaims(t, &claims)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, claims)
		assert.Equal(t, "dev-1", claims.DeviceUUID)
	})

	t.Run("RequireAny accepts both token types", func(t *testing.T) {
		for _, typ := range []token.Type{token.TypeApp, token.TypeDevice} {
			req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(typ))
			rec := httptest.NewRecorder()

			var claims *token.Claims
			m.RequireAny()(echoClaims(t, &claims)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			require.NotNil(t, claims)
			assert.Equal(t, typ, claims.TokenType)
		}
	})

	t.Run("token query parameter works for EventSource clients", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/events?token="+signToken(token.TypeApp), nil)
		rec := httptest.NewRecorder()

		var claims *token.Claims
		m.RequireAny()(echoClaims(t, &claims)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, claims)
	})
}

func TestExtractBearerToken(t *testing.T) {
	t.Run("header wins over query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?token=from-query", nil)
		req.Header.Set("Authorization", "Bearer from-header")
		assert.Equal(t, "from-header", ExtractBearerToken(req))
	})

	t.Run("non-bearer header falls through to query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?token=from-query", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		assert.Equal(t, "from-query", ExtractBearerToken(req))
	})

	t.Run("empty when neither present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		assert.Equal(t, "", ExtractBearerToken(req))
	})
}
