package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// RelayChannel carries events from processes without sockets (workers) to
// the API instances that hold them.
var RelayChannel = redis.BuildKey("realtime", "events")

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// RedisEmitter publishes events for every API instance's Hub to deliver.
type RedisEmitter struct {
	client publisher
}

func NewRedisEmitter(client publisher) *RedisEmitter {
	return &RedisEmitter{client: client}
}

func (e *RedisEmitter) Emit(ctx context.Context, room, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	msg, err := json.Marshal(Envelope{Room: room, Event: event, Data: data})
	if err != nil {
		return err
	}
	return e.client.Publish(ctx, RelayChannel, msg).Err()
}

// Relay feeds relayed events into the local hub until ctx is cancelled.
func (h *Hub) Relay(ctx context.Context, client *goredis.Client, logg *logger.Logger) error {
	sub := client.Subscribe(ctx, RelayChannel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", RelayChannel, err)
	}
	logg.Info(ctx, "realtime relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.handleRelayed(ctx, []byte(msg.Payload), logg)
		}
	}
}

func (h *Hub) handleRelayed(ctx context.Context, raw []byte, logg *logger.Logger) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Room == "" {
		logg.Warn(ctx, "dropping malformed realtime relay message")
		return
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.deliver(env.Room, frame)
}
