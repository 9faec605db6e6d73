package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	"github.com/statusbeacon/bridge-server-go/internal/middleware"
	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/service"
	"github.com/statusbeacon/bridge-server-go/internal/token"
	"github.com/statusbeacon/bridge-server-go/internal/util"
)

type mockOAuthNonceRepo struct {
	mock.Mock
}

func (m *mockOAuthNonceRepo) Create(ctx context.Context, params model.CreateOAuthNonceParams) (*model.OAuthNonce, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthNonce), args.Error(1)
}

func (m *mockOAuthNonceRepo) FindByNonce(ctx context.Context, nonce string) (*model.OAuthNonce, error) {
	args := m.Called(ctx, nonce)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthNonce), args.Error(1)
}

func (m *mockOAuthNonceRepo) Consume(ctx context.Context, nonce string) (*model.OAuthNonce, error) {
	args := m.Called(ctx, nonce)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthNonce), args.Error(1)
}

func (m *mockOAuthNonceRepo) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockDeviceRepo struct {
	mock.Mock
}

func (m *mockDeviceRepo) FindByUUID(ctx context.Context, deviceUUID string) (*model.Device, error) {
	args := m.Called(ctx, deviceUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) FindBySerial(ctx context.Context, serialNumber string) (*model.Device, error) {
	args := m.Called(ctx, serialNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) FindByPairingCode(ctx context.Context, code string) (*model.Device, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) List(ctx context.Context) ([]model.Device, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Device), args.Error(1)
}

func (m *mockDeviceRepo) Create(ctx context.Context, params model.CreateDeviceParams) (*model.Device, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) RotateKeyHash(ctx context.Context, deviceUUID, keyHash string) error {
	args := m.Called(ctx, deviceUUID, keyHash)
	return args.Error(0)
}

func (m *mockDeviceRepo) StampPairingCode(ctx context.Context, deviceUUID, code string) error {
	args := m.Called(ctx, deviceUUID, code)
	return args.Error(0)
}

func (m *mockDeviceRepo) StampApproval(ctx context.Context, deviceUUID, userUUID string, at time.Time) error {
	args := m.Called(ctx, deviceUUID, userUUID, at)
	return args.Error(0)
}

const oauthTestKeyHash = "1f54bd0005a55b535dfb8c2577d2fc336ab6e3ba2f5b3c4d5e6f708192a3b4c5"

// oauthStartStack replicates the production route chain for POST
// /v1/oauth/start: bearer auth accepting both token types, then the optional
// device-signature check, then the handler.
func oauthStartStack(t *testing.T, nonceRepo *mockOAuthNonceRepo, deviceRepo *mockDeviceRepo) (http.Handler, token.Signer) {
	t.Helper()
	cfg := &config.Config{TokenSecret: "test-secret-0123456789abcdef0123456789"}
	signer, err := token.NewSigner(cfg)
	require.NoError(t, err)
	verifier, err := token.NewVerifier(cfg)
	require.NoError(t, err)

	relay := service.NewOAuthRelayService(nonceRepo, nil, nil, nil, nil, "http://localhost:8080")
	h := NewOAuthHandler(relay)

	authMW := middleware.NewAuthMiddleware(verifier)
	sigMW := middleware.NewDeviceSignatureMiddleware(deviceRepo)
	return authMW.RequireAny()(sigMW.Optional(http.HandlerFunc(h.Start))), signer
}

func signStartRequest(req *http.Request, serial, keyHash string, body []byte) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	message := fmt.Sprintf("%s:%s:%s", serial, timestamp, util.SHA256Hex(body))
	req.Header.Set("X-Device-Serial", serial)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", util.HmacSHA256Base64(keyHash, message))
}

func TestOAuthStartRoute(t *testing.T) {
	t.Run("signed device request mints a nonce", func(t *testing.T) {
		nonceRepo := &mockOAuthNonceRepo{}
		deviceRepo := &mockDeviceRepo{}
		stack, signer := oauthStartStack(t, nonceRepo, deviceRepo)

		deviceRepo.On("FindBySerial", mock.Anything, "SN-1").Return(&model.Device{
			DeviceUUID:   "dev-1",
			SerialNumber: "SN-1",
			KeyHash:      oauthTestKeyHash,
		}, nil)
		nonceRepo.On("Create", mock.Anything, mock.Anything).Return(&model.OAuthNonce{
			Nonce:        "nonce-1",
			SerialNumber: "SN-1",
			DeviceUUID:   "dev-1",
			TokenType:    string(token.TypeDevice),
			ExpiresAt:    time.Now().Add(10 * time.Minute),
		}, nil)

		raw, err := signer.Sign(token.NewClaims(token.TypeDevice, "dev-1", "SN-1", "", nil, time.Hour))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/v1/oauth/start", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		signStartRequest(req, "SN-1", oauthTestKeyHash, nil)
		rec := httptest.NewRecorder()
		stack.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp service.StartResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "nonce-1", resp.Nonce)
		assert.Contains(t, resp.URL, "/v1/oauth/authorize?nonce=nonce-1")
		nonceRepo.AssertExpectations(t)
	})

	t.Run("device token without a request signature is rejected", func(t *testing.T) {
		nonceRepo := &mockOAuthNonceRepo{}
		deviceRepo := &mockDeviceRepo{}
		stack, signer := oauthStartStack(t, nonceRepo, deviceRepo)

		raw, err := signer.Sign(token.NewClaims(token.TypeDevice, "dev-1", "SN-1", "", nil, time.Hour))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/v1/oauth/start", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		stack.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		nonceRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("app token needs no signature", func(t *testing.T) {
		nonceRepo := &mockOAuthNonceRepo{}
		deviceRepo := &mockDeviceRepo{}
		stack, signer := oauthStartStack(t, nonceRepo, deviceRepo)

		nonceRepo.On("Create", mock.Anything, mock.Anything).Return(&model.OAuthNonce{
			Nonce:     "nonce-2",
			TokenType: string(token.TypeApp),
			ExpiresAt: time.Now().Add(10 * time.Minute),
		}, nil)

		raw, err := signer.Sign(token.NewClaims(token.TypeApp, "dev-1", "SN-1", "", strptrOAuth("user-7"), time.Hour))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/v1/oauth/start", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		stack.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})
}

func strptrOAuth(s string) *string { return &s }
