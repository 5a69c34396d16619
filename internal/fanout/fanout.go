package fanout

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "room:"

// Sink receives every payload fanned out on a channel, on every instance.
type Sink interface {
	DeliverLocal(channel string, payload []byte)
}

// Fanout is the cross-instance pub/sub backbone over Redis. Each logical
// channel (personal user rooms, direct rooms, groups, global) maps to one
// Redis channel; per-channel ordering is whatever Redis provides, which is
// best-effort across horizontally scaled instances.
type Fanout struct {
	rdb *redis.Client
	log *slog.Logger
}

func New(rdb *redis.Client, log *slog.Logger) *Fanout {
	return &Fanout{rdb: rdb, log: log}
}

func (f *Fanout) Publish(ctx context.Context, channel string, payload []byte) error {
	return f.rdb.Publish(ctx, channelPrefix+channel, payload).Err()
}

// Run subscribes to every fanout channel and forwards payloads to the sink
// until the context is cancelled.
func (f *Fanout) Run(ctx context.Context, sink Sink) error {
	pubsub := f.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	// Wait for subscription confirmation before reporting ready.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	f.log.Info("fanout subscription confirmed", "pattern", channelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			channel := strings.TrimPrefix(msg.Channel, channelPrefix)
			sink.DeliverLocal(channel, []byte(msg.Payload))
		}
	}
}
