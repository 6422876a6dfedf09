package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// PubSubMessage is one message received from a subscribed channel
type PubSubMessage struct {
	Channel string
	Payload string
}

// Publish sends a payload to a pub/sub channel. Delivery is fire-and-forget:
// subscribers that are not listening at publish time never see the message.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to channel %s", channel)
		return err
	}
	return nil
}

// PSubscribe subscribes to all channels matching the pattern and invokes
// handler for each message until ctx is cancelled. Returns when the
// subscription closes; the error is nil on clean shutdown.
func (c *Client) PSubscribe(ctx context.Context, pattern string, handler func(msg PubSubMessage)) error {
	ps := c.rdb.PSubscribe(ctx, pattern)
	defer func() { _ = ps.Close() }()

	// Force the subscription to be established before we report readiness
	if _, err := ps.Receive(ctx); err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to subscribe to pattern %s", pattern)
		return err
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler(PubSubMessage{Channel: msg.Channel, Payload: msg.Payload})
		}
	}
}

// Nil re-exports the go-redis sentinel for missing keys
var Nil = redis.Nil
