package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/internal/hub"
	"github.com/ezchat-cam/coordinator/pkg/log"
)

// DefaultChannel is the Redis Pub/Sub channel carrying coordination events
// between instances.
const DefaultChannel = "coord:events"

// reconnectDelay is the backoff between failed subscription attempts.
const reconnectDelay = 2 * time.Second

// Subscriber bridges the cross-instance event channel into the local hub.
// Events published by this instance carry its origin id and are skipped; the
// publisher already delivered them locally.
type Subscriber struct {
	client     *redis.Client
	channel    string
	hub        *hub.Hub
	instanceID string
	doneCh     chan struct{}
}

// NewSubscriber creates a subscriber on the given channel.
func NewSubscriber(client *redis.Client, channel string, h *hub.Hub, instanceID string) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{
		client:     client,
		channel:    channel,
		hub:        h,
		instanceID: instanceID,
		doneCh:     make(chan struct{}),
	}
}

// Done returns a channel closed when Run exits.
func (s *Subscriber) Done() <-chan struct{} { return s.doneCh }

// Run consumes the channel until ctx is done, reconnecting on receive errors.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.doneCh)
	l := log.L()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := s.runSubscription(ctx); err != nil && ctx.Err() == nil {
				l.Warn().Err(err).Str("channel", s.channel).Msg("event subscription error, reconnecting")
				select {
				case <-ctx.Done():
					return
				case <-time.After(reconnectDelay):
					continue
				}
			}
			return
		}
	}
}

func (s *Subscriber) runSubscription(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Confirm the subscription is active before consuming.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleMessage(msg.Payload)
		}
	}
}

func (s *Subscriber) handleMessage(payload string) {
	l := log.L()

	var env domain.EventEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		l.Warn().Err(err).Msg("event subscription: invalid payload")
		return
	}
	if env.Room == "" || env.Name == "" {
		return
	}
	if env.OriginInstanceID == s.instanceID {
		return
	}

	s.hub.Publish(env.Room, env.Event)
}
