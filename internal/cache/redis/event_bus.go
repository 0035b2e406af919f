package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	// eventChannel is the Pub/Sub channel live subscribers listen on.
	eventChannel = "updown:events"

	// eventStream is the durable stream that keeps recent event history
	// for late joiners, trimmed with XADD MAXLEN ~.
	eventStream = "updown:events:stream"

	streamMaxLen int64 = 10000
)

// EventBus broadcasts session events over Redis. Each published event is
// sent to a Pub/Sub channel for live consumers and appended to a capped
// stream so dashboards can replay recent history after connecting.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish marshals the event to JSON and fans it out to the live channel
// and the history stream.
func (b *EventBus) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.Type, err)
	}

	if err := b.rdb.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", eventChannel, err)
	}

	args := &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", eventStream, err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription on the event channel and returns a
// read-only channel of decoded events. The subscription closes when the
// context is cancelled; the returned channel is closed at that point as
// well. Events that fail to decode are skipped.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := b.rdb.Subscribe(ctx, eventChannel)

	// Verify the subscription is established before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", eventChannel, err)
	}

	out := make(chan domain.Event, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// History reads up to count events from the history stream starting after
// lastID. Use "0" as lastID to read from the beginning. It returns an empty
// slice (not an error) when no events are available.
func (b *EventBus) History(ctx context.Context, lastID string, count int) ([]domain.Event, error) {
	args := &redis.XReadArgs{
		Streams: []string{eventStream, lastID},
		Count:   int64(count),
		Block:   -1,
	}

	results, err := b.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", eventStream, err)
	}

	var events []domain.Event
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"].(string)
			if !ok {
				continue
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				continue
			}
			events = append(events, ev)
		}
	}

	return events, nil
}
