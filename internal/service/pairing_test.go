package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/model"
)

func TestGenerateRandomCode(t *testing.T) {
	t.Run("generates 6 character codes", func(t *testing.T) {
		code := generateRandomCode()
		assert.Len(t, code, 6)
	})

	t.Run("uses only allowed characters", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			code := generateRandomCode()
			for _, c := range code {
				assert.True(t, strings.ContainsRune(pairingCodeChars, c),
					"character '%c' should be in allowed set", c)
			}
		}
	})

	t.Run("excludes ambiguous characters", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			code := generateRandomCode()
			assert.NotContains(t, code, "O")
			assert.NotContains(t, code, "I")
			assert.NotContains(t, code, "0")
			assert.NotContains(t, code, "1")
		}
	})

	t.Run("generates unique codes", func(t *testing.T) {
		codes := make(map[string]bool)
		for i := 0; i < 100; i++ {
			code := generateRandomCode()
			assert.False(t, codes[code], "duplicate code generated: %s", code)
			codes[code] = true
		}
	})
}

func TestPairingCodeChars(t *testing.T) {
	t.Run("contains exactly 32 symbols", func(t *testing.T) {
		assert.Len(t, pairingCodeChars, 32)
	})

	t.Run("contains no ambiguous characters", func(t *testing.T) {
		assert.NotContains(t, pairingCodeChars, "O")
		assert.NotContains(t, pairingCodeChars, "I")
		assert.NotContains(t, pairingCodeChars, "0")
		assert.NotContains(t, pairingCodeChars, "1")
	})
}

func TestPairingCodeValidate(t *testing.T) {
	svc := NewPairingCodeService(newFakePairingCodeRepo(), newFakeDeviceRepo())

	t.Run("normalizes case and whitespace", func(t *testing.T) {
		code, err := svc.Validate("  ab2c3d ")
		require.NoError(t, err)
		assert.Equal(t, "AB2C3D", code)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := svc.Validate("ABC23")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeFormat, apperrors.GetCode(err))

		_, err = svc.Validate("ABC2345")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeFormat, apperrors.GetCode(err))
	})

	t.Run("rejects characters outside the alphabet", func(t *testing.T) {
		for _, bad := range []string{"ABC12O", "ABC10X", "ABCDI2", "ABC-23"} {
			_, err := svc.Validate(bad)
			require.Error(t, err, "code %q should be rejected", bad)
			assert.Equal(t, apperrors.ErrCodeFormat, apperrors.GetCode(err))
		}
	})
}

func TestPairingCodeIsExpired(t *testing.T) {
	svc := NewPairingCodeService(newFakePairingCodeRepo(), newFakeDeviceRepo())

	t.Run("just inside the window is live", func(t *testing.T) {
		assert.False(t, svc.IsExpired(time.Now().Add(-239*time.Second)))
	})

	t.Run("just past the window is expired", func(t *testing.T) {
		assert.True(t, svc.IsExpired(time.Now().Add(-241*time.Second)))
	})
}

func TestPairingCodeGenerate(t *testing.T) {
	t.Run("supersedes the previous code for the device", func(t *testing.T) {
		deviceRepo := newFakeDeviceRepo()
		codeRepo := newFakePairingCodeRepo()
		deviceRepo.put(&model.Device{DeviceUUID: "dev-1", SerialNumber: "SN-1"})
		svc := NewPairingCodeService(codeRepo, deviceRepo)

		first, err := svc.Generate(context.Background(), "dev-1")
		require.NoError(t, err)
		second, err := svc.Generate(context.Background(), "dev-1")
		require.NoError(t, err)

		stale, err := codeRepo.FindByCode(context.Background(), first.Code)
		require.NoError(t, err)
		if first.Code != second.Code {
			assert.Nil(t, stale, "first code should have been replaced")
		}

		live, err := codeRepo.FindByCode(context.Background(), second.Code)
		require.NoError(t, err)
		require.NotNil(t, live)
		assert.Equal(t, "dev-1", live.DeviceUUID)
		assert.Equal(t, "SN-1", live.SerialNumber)
	})

	t.Run("stamps the code onto the device row", func(t *testing.T) {
		deviceRepo := newFakeDeviceRepo()
		deviceRepo.put(&model.Device{DeviceUUID: "dev-1", SerialNumber: "SN-1"})
		svc := NewPairingCodeService(newFakePairingCodeRepo(), deviceRepo)

		pc, err := svc.Generate(context.Background(), "dev-1")
		require.NoError(t, err)

		device, err := deviceRepo.FindByUUID(context.Background(), "dev-1")
		require.NoError(t, err)
		require.NotNil(t, device.PairingCode)
		assert.Equal(t, pc.Code, *device.PairingCode)
	})

	t.Run("unknown device is not found", func(t *testing.T) {
		svc := NewPairingCodeService(newFakePairingCodeRepo(), newFakeDeviceRepo())

		_, err := svc.Generate(context.Background(), "missing")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}
