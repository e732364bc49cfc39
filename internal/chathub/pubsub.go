package chathub

import (
	"context"
	"encoding/json"

	"travelquest/backend/internal/logger"
	"travelquest/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventsChannel is the Redis Pub/Sub channel shared by all instances.
const EventsChannel = "meetup:events"

// RedisBroker publishes events over Redis Pub/Sub so that live views on
// every instance see changes made by any other instance.
type RedisBroker struct {
	Redis *redis.Client
	log   *logger.Logger
}

func NewRedisBroker(rdb *redis.Client, log *logger.Logger) *RedisBroker {
	return &RedisBroker{Redis: rdb, log: log}
}

// Publish sends the event as JSON to EventsChannel.
func (b *RedisBroker) Publish(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.Redis.Publish(ctx, EventsChannel, string(payload)).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan models.Event, error) {
	pubsub := b.Redis.Subscribe(ctx, EventsChannel)
	// Wait for the subscription to be confirmed so no event is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan models.Event, 64)
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
				var ev models.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("dropping malformed event", zap.Error(err))
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
