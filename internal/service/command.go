package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/config"
	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/redis"
	"github.com/statusbeacon/bridge-server-go/internal/realtime"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
	"github.com/statusbeacon/bridge-server-go/internal/token"
	"github.com/statusbeacon/bridge-server-go/internal/util"
)

// EnqueueParams carries an app-issued command request.
type EnqueueParams struct {
	DeviceUUID *string         `json:"device_uuid"`
	Command    string          `json:"command"`
	Payload    json.RawMessage `json:"payload"`
}

// CommandService validates, enqueues, and hands out device-bound commands.
// Commands flow app→device only; the queue entry carries a hard TTL and an
// immutable payload.
type CommandService struct {
	commandRepo repository.CommandRepository
	deviceRepo  repository.DeviceRepository
	pairingRepo repository.PairingRepository
	notifier    *realtime.Notifier
}

func NewCommandService(
	commandRepo repository.CommandRepository,
	deviceRepo repository.DeviceRepository,
	pairingRepo repository.PairingRepository,
	notifier *realtime.Notifier,
) *CommandService {
	return &CommandService{
		commandRepo: commandRepo,
		deviceRepo:  deviceRepo,
		pairingRepo: pairingRepo,
		notifier:    notifier,
	}
}

// Enqueue validates and queues a command for the device resolved from the
// request body, the token claims, or the token's pairing code, in that
// order.
func (s *CommandService) Enqueue(ctx context.Context, claims *token.Claims, params EnqueueParams) (*model.Command, error) {
	if !model.IsWhitelistedCommand(params.Command) {
		return nil, apperrors.Validation(
			fmt.Sprintf("unknown command %q", params.Command),
		).WithDetails(map[string]any{"valid_commands": model.CommandWhitelist})
	}

	if len(params.Payload) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(params.Payload, &obj); err != nil {
			return nil, apperrors.Validation("payload must be a JSON object")
		}
	}

	device, err := s.resolveDevice(ctx, claims, params.DeviceUUID)
	if err != nil {
		return nil, err
	}

	cmd, err := s.commandRepo.Create(ctx, model.CreateCommandParams{
		DeviceUUID:   device.DeviceUUID,
		SerialNumber: device.SerialNumber,
		Command:      params.Command,
		Payload:      params.Payload,
		ExpiresAt:    time.Now().Add(config.CommandTTL),
	})
	if err != nil {
		if errors.Is(err, repository.ErrForeignKey) {
			return nil, apperrors.NotFound("pairing record")
		}
		return nil, apperrors.Database(err)
	}

	// Best-effort: the device also picks commands up by polling.
	s.notifier.Notify(redis.DeviceChannel(device.DeviceUUID), "command", cmd)
	if pairing, err := s.pairingRepo.FindByDeviceUUID(ctx, device.DeviceUUID); err == nil && pairing != nil && pairing.UserUUID != nil {
		s.notifier.Notify(redis.UserChannel(*pairing.UserUUID), "command", cmd)
	}

	log.Info().
		Str("commandId", cmd.ID).
		Str("deviceUuid", device.DeviceUUID).
		Str("command", cmd.Command).
		Msg("command enqueued")

	return cmd, nil
}

func (s *CommandService) resolveDevice(ctx context.Context, claims *token.Claims, explicit *string) (*model.Device, error) {
	if explicit != nil && *explicit != "" {
		if !util.IsValidUUID(*explicit) {
			return nil, apperrors.Validation("device_uuid must be a UUID")
		}
		device, err := s.deviceRepo.FindByUUID(ctx, *explicit)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if device != nil {
			return device, nil
		}
	}

	if claims.DeviceUUID != "" {
		device, err := s.deviceRepo.FindByUUID(ctx, claims.DeviceUUID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if device != nil {
			return device, nil
		}
	}

	if claims.PairingCode != "" {
		device, err := s.deviceRepo.FindByPairingCode(ctx, claims.PairingCode)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if device != nil {
			return device, nil
		}
	}

	return nil, apperrors.NotFound("device").WithDetails("device not registered")
}

// PollPending returns the device's deliverable commands and stamps the
// device heartbeat.
func (s *CommandService) PollPending(ctx context.Context, deviceUUID string) ([]model.Command, error) {
	commands, err := s.commandRepo.ListPending(ctx, deviceUUID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if _, err := s.pairingRepo.EnsureForDevice(ctx, deviceUUID); err != nil {
		return nil, apperrors.Database(err)
	}
	if err := s.pairingRepo.StampDeviceSeen(ctx, deviceUUID, time.Now()); err != nil {
		return nil, apperrors.Database(err)
	}

	return commands, nil
}

// Ack records the device's execution result and relays it to the owning
// user. Only pending commands can be acked; an expired or repeated ack is
// not-found.
func (s *CommandService) Ack(ctx context.Context, deviceUUID string, params model.AckCommandParams) (*model.Command, error) {
	existing, err := s.commandRepo.FindByID(ctx, params.CommandID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing == nil || existing.DeviceUUID != deviceUUID {
		return nil, apperrors.NotFound("command")
	}

	cmd, err := s.commandRepo.Ack(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if cmd == nil {
		return nil, apperrors.NotFound("command")
	}

	if pairing, err := s.pairingRepo.FindByDeviceUUID(ctx, deviceUUID); err == nil && pairing != nil && pairing.UserUUID != nil {
		s.notifier.Notify(redis.UserChannel(*pairing.UserUUID), "command_ack", cmd)
	}

	log.Info().
		Str("commandId", cmd.ID).
		Str("deviceUuid", deviceUUID).
		Bool("success", params.Success).
		Msg("command acked")

	return cmd, nil
}
