package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("formats code and message", func(t *testing.T) {
		err := New(ErrCodeNotFound, "device not found")
		assert.Equal(t, "NOT_FOUND: device not found", err.Error())
	})

	t.Run("includes the cause in the message", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(ErrCodeDatabase, "query devices", cause)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("unwraps to the cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := New(ErrCodeInternal, "wrapper").WithCause(cause)
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("carries details", func(t *testing.T) {
		err := Validation("bad command").WithDetails(map[string]any{"valid_commands": []string{"reboot"}})
		require.NotNil(t, err.Details)
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts a direct AppError", func(t *testing.T) {
		appErr, ok := AsAppError(NotFound("pairing"))
		require.True(t, ok)
		assert.Equal(t, ErrCodeNotFound, appErr.Code)
	})

	t.Run("extracts through fmt wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("handler: %w", Unauthorized("nope"))
		appErr, ok := AsAppError(wrapped)
		require.True(t, ok)
		assert.Equal(t, ErrCodeUnauthorized, appErr.Code)
	})

	t.Run("plain errors are not AppErrors", func(t *testing.T) {
		_, ok := AsAppError(errors.New("plain"))
		assert.False(t, ok)
	})
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeExpired, GetCode(Expired("pairing code")))
	assert.Equal(t, ErrCodeTokenExpired, GetCode(TokenExpired()))
	assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err  *AppError
		code ErrorCode
	}{
		{Format("bad json"), ErrCodeFormat},
		{Validation("missing field"), ErrCodeValidation},
		{NotFound("device"), ErrCodeNotFound},
		{Expired("code"), ErrCodeExpired},
		{Conflict("already approved"), ErrCodeConflict},
		{Unauthorized("no"), ErrCodeUnauthorized},
		{MalformedToken(), ErrCodeMalformedToken},
		{TokenExpired(), ErrCodeTokenExpired},
		{InvalidTokenType("app"), ErrCodeInvalidTokenType},
		{Forbidden("no"), ErrCodeForbidden},
		{RateLimitExceeded(), ErrCodeRateLimitExceeded},
		{Upstream("webex", errors.New("502")), ErrCodeUpstream},
		{Configuration("missing secret"), ErrCodeConfiguration},
		{Internal("oops"), ErrCodeInternal},
		{Database(errors.New("down")), ErrCodeDatabase},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code)
	}
}
