package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBroker carries broadcasts between instances over one pub/sub channel.
type RedisBroker struct {
	rdb     *redis.Client
	channel string
	log     *slog.Logger
}

func NewRedisBroker(rdb *redis.Client, channel string, log *slog.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, channel: channel, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, bc Broadcast) error {
	payload, err := json.Marshal(bc)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Run subscribes and hands every broadcast to deliver until ctx is done.
func (b *RedisBroker) Run(ctx context.Context, deliver func(Broadcast)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	b.log.Info("realtime.subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var bc Broadcast
			if err := json.Unmarshal([]byte(msg.Payload), &bc); err != nil {
				b.log.Warn("realtime.bad_payload", "err", err)
				continue
			}
			deliver(bc)
		}
	}
}
