package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// ChannelAdministrators carries invalidations of the administrator cache.
const ChannelAdministrators = "authority:administrators:invalidate"

// Invalidator broadcasts cache invalidations between processes sharing one
// database, e.g. the worker telling servers that a migration rewrote rights.
type Invalidator struct {
	client *redis.Client
	logger *slog.Logger
}

// NewInvalidator wraps client.
func NewInvalidator(client *redis.Client, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{client: client, logger: logger}
}

// Publish announces that the cache behind channel is stale.
func (i *Invalidator) Publish(ctx context.Context, channel, reason string) error {
	if err := i.client.Publish(ctx, channel, reason).Err(); err != nil {
		return fmt.Errorf("platform/cache: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe calls fn for every message on channel until ctx ends. It
// returns once the subscription is confirmed.
func (i *Invalidator) Subscribe(ctx context.Context, channel string, fn func(reason string)) error {
	sub := i.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("platform/cache: subscribe %s: %w", channel, err)
	}
	go func() {
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				i.logger.Debug("cache invalidated", slog.String("channel", channel), slog.String("reason", msg.Payload))
				fn(msg.Payload)
			}
		}
	}()
	return nil
}
