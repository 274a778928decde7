package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "switchboard:events"

// Sink implements ports.EventSink by publishing JSON events on a Redis channel.
type Sink struct {
	client  *backend.Client
	channel string
}

// NewSink creates a sink publishing on channel (DefaultChannel when empty).
func NewSink(client *backend.Client, channel string) *Sink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Sink{client: client, channel: channel}
}

// Publish sends the event to every current subscriber of the channel.
func (s *Sink) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Subscriber reads events published by a Sink.
type Subscriber struct {
	client  *backend.Client
	channel string
	logger  *slog.Logger
}

// NewSubscriber creates a subscriber for channel (DefaultChannel when empty).
func NewSubscriber(client *backend.Client, channel string, logger *slog.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Subscriber{client: client, channel: channel, logger: logger}
}

// Subscribe streams events until ctx ends. Undecodable payloads are logged and skipped.
// The subscription is confirmed before Subscribe returns.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	out := make(chan domain.Event)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn("Skipping undecodable event", "channel", s.channel, "err", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
