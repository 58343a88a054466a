package bridge

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// pubsubChannel is the broadcast leg: every endpoint subscribed to the
// shared topic receives every published frame, including the publisher
// itself (filtered out by the frame origin).
type pubsubChannel struct {
	b      *Bridge
	client *redis.Client
	topic  string
	sub    *redis.PubSub
}

func newPubSubChannel(b *Bridge, client *redis.Client) *pubsubChannel {
	c := &pubsubChannel{
		b:      b,
		client: client,
		topic:  b.opts.ChannelName + ":events",
	}
	c.sub = client.Subscribe(context.Background(), c.topic)

	go func() {
		for msg := range c.sub.Channel() {
			b.handleFrame([]byte(msg.Payload))
		}
	}()

	return c
}

func (c *pubsubChannel) name() string { return "pubsub" }

func (c *pubsubChannel) send(ctx context.Context, envelope []byte) error {
	framed, err := c.b.wrapFrame(envelope)
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, c.topic, framed).Err(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func (c *pubsubChannel) close() error {
	return c.sub.Close()
}
