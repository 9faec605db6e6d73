package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/statusbeacon/bridge-server-go/internal/errors"
	"github.com/statusbeacon/bridge-server-go/internal/middleware"
	"github.com/statusbeacon/bridge-server-go/internal/realtime"
	redisclient "github.com/statusbeacon/bridge-server-go/internal/redis"
	"github.com/statusbeacon/bridge-server-go/internal/token"
)

// EventsHandler streams pairing and command events over SSE. App tokens with
// a user identity subscribe to the user channel; everything else subscribes
// to the token's device channel.
type EventsHandler struct {
	broker *realtime.Broker
}

func NewEventsHandler(broker *realtime.Broker) *EventsHandler {
	return &EventsHandler{broker: broker}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	var channel string
	if claims.TokenType == token.TypeApp && claims.UserUUID != nil {
		channel = redisclient.UserChannel(*claims.UserUUID)
	} else if claims.DeviceUUID != "" {
		channel = redisclient.DeviceChannel(claims.DeviceUUID)
	} else {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(channel)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("channel", channel).
		Str("tokenType", string(claims.TokenType)).
		Msg("event stream established")

	h.sendEvent(w, flusher, "connected", map[string]any{
		"channel":     channel,
		"device_uuid": claims.DeviceUUID,
	})

	heartbeat := time.NewTicker(realtime.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("channel", channel).Msg("event stream closed by client")
			return

		case <-client.Done:
			log.Info().Str("channel", channel).Msg("event stream closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("channel", channel).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, realtime.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event realtime.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
