package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const notifyTimeout = 5 * time.Second

// Broadcaster is the surface Notifier needs; satisfied by *Broker and by
// test fakes.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel, eventType string, payload any) error
}

// Notifier wraps a Broadcaster for best-effort side-effect notifications.
// Failures are logged and swallowed: a missed notification never fails the
// primary state mutation, the data stays retrievable by polling.
type Notifier struct {
	broker Broadcaster
}

func NewNotifier(broker Broadcaster) *Notifier {
	return &Notifier{broker: broker}
}

func (n *Notifier) Notify(channel, eventType string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := n.broker.Broadcast(ctx, channel, eventType, payload); err != nil {
		log.Warn().
			Err(err).
			Str("channel", channel).
			Str("event", eventType).
			Msg("notification dropped")
	}
}
