package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// mailboxChannel is the key-value signal leg: a send pushes the frame onto
// the peer's well-known mailbox key, and each endpoint drains (clears) its
// own mailbox on a short poll. Unlike pub/sub this leg survives a peer that
// is briefly down, since frames wait in the key until popped.
type mailboxChannel struct {
	b       *Bridge
	client  *redis.Client
	ownKey  string
	peerKey string
	done    chan struct{}
}

func newMailboxChannel(b *Bridge, client *redis.Client) *mailboxChannel {
	c := &mailboxChannel{
		b:       b,
		client:  client,
		ownKey:  fmt.Sprintf("%s:mailbox:%s", b.opts.ChannelName, b.opts.Role),
		peerKey: fmt.Sprintf("%s:mailbox:%s", b.opts.ChannelName, b.opts.Role.peer()),
		done:    make(chan struct{}),
	}

	go c.poll()
	return c
}

func (c *mailboxChannel) name() string { return "mailbox" }

func (c *mailboxChannel) send(ctx context.Context, envelope []byte) error {
	framed, err := c.b.wrapFrame(envelope)
	if err != nil {
		return err
	}
	if err := c.client.LPush(ctx, c.peerKey, framed).Err(); err != nil {
		return fmt.Errorf("mailbox write failed: %w", err)
	}
	return nil
}

func (c *mailboxChannel) poll() {
	ticker := time.NewTicker(c.b.opts.MailboxPoll)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.drain()
		}
	}
}

// drain pops everything waiting in the own mailbox, oldest first.
func (c *mailboxChannel) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		raw, err := c.client.RPop(ctx, c.ownKey).Result()
		if errors.Is(err, redis.Nil) {
			return
		}
		if err != nil {
			c.b.log.Warn("mailbox drain failed", "error", err)
			return
		}
		c.b.handleFrame([]byte(raw))
	}
}

func (c *mailboxChannel) close() error {
	close(c.done)
	return nil
}
