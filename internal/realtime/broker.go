package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/statusbeacon/bridge-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	Channel string
	Events  chan Event
	Done    chan struct{}
}

// Broker is the realtime fan-out primitive. Broadcast publishes through
// redis so every server instance sees the event; in-process subscribers
// (the app event stream) receive it from the pubsub loop.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // channel -> set of clients
	stops   map[string]chan struct{}    // channel -> pubsub loop stop signal
	loops   atomic.Int32
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		stops:   make(map[string]chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(channel string) *Client {
	client := &Client{
		Channel: channel,
		Events:  make(chan Event, 100),
		Done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[channel] == nil {
		b.clients[channel] = make(map[*Client]bool)
		stop := make(chan struct{})
		b.stops[channel] = stop
		go b.subscribeToRedis(channel, stop)
	}
	b.clients[channel][client] = true
	clientCount := len(b.clients[channel])
	b.mu.Unlock()

	log.Info().
		Str("channel", channel).
		Int("clientCount", clientCount).
		Msg("realtime client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.Channel]; ok {
		delete(clients, client)
		close(client.Done)

		// The last subscriber takes the redis pubsub loop down with it; a
		// later Subscribe starts a fresh one.
		if len(clients) == 0 {
			delete(b.clients, client.Channel)
			if stop, ok := b.stops[client.Channel]; ok {
				close(stop)
				delete(b.stops, client.Channel)
			}
		}

		log.Info().
			Str("channel", client.Channel).
			Int("clientCount", len(clients)).
			Msg("realtime client unsubscribed")
	}
}

// Broadcast publishes an event to a channel.
func (b *Broker) Broadcast(ctx context.Context, channel, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return err
	}

	return b.redis.Publish(ctx, channel, raw).Err()
}

func (b *Broker) subscribeToRedis(channel string, stop <-chan struct{}) {
	b.loops.Add(1)
	defer b.loops.Add(-1)

	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("channel", channel).
		Int32("activeLoops", b.loops.Load()).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case <-stop:
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.fanout(channel, event)
		}
	}
}

func (b *Broker) fanout(channel string, event Event) {
	b.mu.RLock()
	clients := b.clients[channel]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("channel", channel).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)

	for _, stop := range b.stops {
		close(stop)
	}
	b.stops = make(map[string]chan struct{})
}

func (b *Broker) ClientCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[channel])
}
