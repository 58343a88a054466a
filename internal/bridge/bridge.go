// Package bridge delivers message envelopes between the control surface and
// the execution agent over every configured transport channel at once, and
// fans inbound envelopes into a single handler.
//
// Delivery is best-effort: the same logical envelope can arrive once per
// active channel, ordering across channels is not guaranteed, and an
// envelope is lost only if every channel write fails. Consumers are expected
// to de-duplicate by envelope id (see SeenCache).
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DevSkits916/postdeck/internal/logger"
	"github.com/DevSkits916/postdeck/internal/schema"
)

// Role names one of the two communication contexts
type Role string

const (
	RoleControl Role = "control"
	RoleAgent   Role = "agent"
)

func (r Role) peer() Role {
	if r == RoleControl {
		return RoleAgent
	}
	return RoleControl
}

// Handler receives every valid inbound envelope
type Handler func(*schema.Message)

// Options configures a bridge endpoint
type Options struct {
	// ChannelName scopes all transports; both peers must use the same name.
	ChannelName string
	// Role identifies this endpoint and is used for loop prevention and
	// mailbox addressing.
	Role Role
	// Debug enables tracing of every bridge action to the logger. Tracing
	// never blocks or fails the send/receive path.
	Debug bool

	// Redis enables the pub/sub and mailbox channels when set. The client
	// is owned by the caller.
	Redis *redis.Client
	// MailboxPoll is how often the mailbox key is drained (default 500ms).
	MailboxPoll time.Duration

	// ListenAddr enables the direct channel listener when set.
	ListenAddr string
	// PeerURL enables the direct channel dialer when set, e.g.
	// "ws://127.0.0.1:7411/bridge".
	PeerURL string
	// Origin is announced when dialing a direct peer.
	Origin string
	// AllowedOrigin filters inbound direct connections; empty or "*"
	// accepts any origin.
	AllowedOrigin string

	// OnMessage receives every valid inbound envelope.
	OnMessage Handler
	Logger    logger.Logger
}

// channel is one redundant transport leg. send receives the marshaled
// envelope; each leg applies its own wire framing.
type channel interface {
	name() string
	send(ctx context.Context, envelope []byte) error
	close() error
}

// frame wraps an envelope on the Redis legs. Redis pub/sub delivers
// published messages back to the publisher's own subscription, so the
// origin role lets an endpoint discard its own traffic.
type frame struct {
	Origin  string          `json:"origin"`
	Message json.RawMessage `json:"message"`
}

// Bridge is one endpoint of the cross-context transport
type Bridge struct {
	opts     Options
	log      logger.Logger
	channels []channel
	direct   *directChannel

	mu     sync.Mutex
	closed bool
}

// New creates a bridge endpoint and starts its inbound listeners.
func New(opts Options) (*Bridge, error) {
	if opts.ChannelName == "" {
		return nil, fmt.Errorf("channel name cannot be empty")
	}
	if opts.Role != RoleControl && opts.Role != RoleAgent {
		return nil, fmt.Errorf("invalid bridge role: %q", opts.Role)
	}
	if opts.OnMessage == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}
	if opts.MailboxPoll <= 0 {
		opts.MailboxPoll = 500 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.WithComponent(logger.ComponentBridge)

	b := &Bridge{opts: opts, log: log}

	if opts.Redis != nil {
		b.channels = append(b.channels, newPubSubChannel(b, opts.Redis))
		b.channels = append(b.channels, newMailboxChannel(b, opts.Redis))
	}
	if opts.ListenAddr != "" || opts.PeerURL != "" {
		direct, err := newDirectChannel(b)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.direct = direct
		b.channels = append(b.channels, direct)
	}
	if len(b.channels) == 0 {
		return nil, fmt.Errorf("no transport channels configured")
	}

	b.trace("bridge up", "role", string(opts.Role), "channels", len(b.channels))
	return b, nil
}

// Send writes the envelope to every configured channel. It returns an error
// only when every channel write failed; single-channel failures are logged
// and the remaining channels are still attempted.
func (b *Bridge) Send(ctx context.Context, m *schema.Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	var errs []error
	delivered := 0
	for _, ch := range b.channels {
		if err := ch.send(ctx, raw); err != nil {
			b.log.Warn("channel send failed", "channel", ch.name(), "type", string(m.Type), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.name(), err))
			continue
		}
		delivered++
	}

	b.trace("sent", "type", string(m.Type), "id", m.ID, "delivered", delivered)
	if delivered == 0 {
		return fmt.Errorf("envelope lost, all channels failed: %w", errors.Join(errs...))
	}
	return nil
}

// DirectAddr returns the bound address of the direct channel listener, or
// "" when no listener is configured. Useful when listening on port 0.
func (b *Bridge) DirectAddr() string {
	if b.direct == nil {
		return ""
	}
	return b.direct.addr()
}

// Close releases all listeners and channels. Safe to call once; calling it
// twice is not supported.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	for _, ch := range b.channels {
		if err := ch.close(); err != nil {
			b.log.Warn("channel close failed", "channel", ch.name(), "error", err)
		}
	}
	b.trace("bridge down", "role", string(b.opts.Role))
}

// handleFrame unwraps a Redis frame, applying loop prevention.
func (b *Bridge) handleFrame(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		b.trace("dropped unparsable frame")
		return
	}
	if f.Origin == string(b.opts.Role) {
		return // own traffic echoed back
	}
	b.dispatch(f.Message)
}

// dispatch validates an inbound envelope and hands it to the consumer.
// Anything that is not a message we understand is silently dropped; this is
// a deliberate permissive-ingest policy for cross-context protocol skew.
func (b *Bridge) dispatch(raw []byte) {
	m, ok := schema.ParseMessage(raw)
	if !ok {
		b.trace("dropped invalid envelope")
		return
	}
	b.trace("received", "type", string(m.Type), "id", m.ID)
	b.opts.OnMessage(m)
}

func (b *Bridge) trace(msg string, args ...any) {
	if !b.opts.Debug {
		return
	}
	b.log.Debug(msg, args...)
}

func (b *Bridge) wrapFrame(envelope []byte) ([]byte, error) {
	return json.Marshal(frame{Origin: string(b.opts.Role), Message: envelope})
}
