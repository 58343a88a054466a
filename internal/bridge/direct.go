package bridge

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// directChannel is the point-to-point leg: a WebSocket link between the two
// endpoints, used when a peer address is configured. Inbound connections
// pass the origin filter before any envelope is read; a non-wildcard
// AllowedOrigin rejects every other origin at the handshake.
type directChannel struct {
	b        *Bridge
	listener net.Listener
	server   *http.Server
	dialer   *websocket.Dialer

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	dialed *websocket.Conn
	closed bool
}

func newDirectChannel(b *Bridge) (*directChannel, error) {
	c := &directChannel{
		b:     b,
		conns: make(map[*websocket.Conn]struct{}),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
	}

	if b.opts.ListenAddr != "" {
		listener, err := net.Listen("tcp", b.opts.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("direct channel listen failed: %w", err)
		}
		c.listener = listener

		mux := http.NewServeMux()
		mux.HandleFunc("/bridge", c.serveWS)
		c.server = &http.Server{Handler: mux}

		go func() {
			if err := c.server.Serve(listener); err != nil && err != http.ErrServerClosed {
				b.log.Warn("direct channel server stopped", "error", err)
			}
		}()
	}

	return c, nil
}

func (c *directChannel) name() string { return "direct" }

func (c *directChannel) addr() string {
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

func (c *directChannel) checkOrigin(r *http.Request) bool {
	allowed := c.b.opts.AllowedOrigin
	if allowed == "" || allowed == "*" {
		return true
	}
	return r.Header.Get("Origin") == allowed
}

func (c *directChannel) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: c.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.b.trace("direct upgrade rejected", "error", err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conns[conn] = struct{}{}
	c.mu.Unlock()

	go c.readLoop(conn)
}

func (c *directChannel) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		delete(c.conns, conn)
		if c.dialed == conn {
			c.dialed = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.b.dispatch(raw)
	}
}

// dial connects to the configured peer. Callers hold c.mu.
func (c *directChannel) dialLocked(ctx context.Context) error {
	if c.dialed != nil {
		return nil
	}

	header := http.Header{}
	if c.b.opts.Origin != "" {
		header.Set("Origin", c.b.opts.Origin)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.b.opts.PeerURL, header)
	if err != nil {
		return fmt.Errorf("direct dial failed: %w", err)
	}

	c.dialed = conn
	c.conns[conn] = struct{}{}
	go c.readLoop(conn)
	return nil
}

func (c *directChannel) send(ctx context.Context, envelope []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("direct channel closed")
	}

	if c.b.opts.PeerURL != "" && c.dialed == nil {
		if err := c.dialLocked(ctx); err != nil && len(c.conns) == 0 {
			return err
		}
	}
	if len(c.conns) == 0 {
		return fmt.Errorf("no direct peer connected")
	}

	delivered := 0
	for conn := range c.conns {
		if err := conn.WriteMessage(websocket.TextMessage, envelope); err != nil {
			delete(c.conns, conn)
			if c.dialed == conn {
				c.dialed = nil
			}
			conn.Close()
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("all direct peers unreachable")
	}
	return nil
}

func (c *directChannel) close() error {
	c.mu.Lock()
	c.closed = true
	conns := make([]*websocket.Conn, 0, len(c.conns))
	for conn := range c.conns {
		conns = append(conns, conn)
	}
	c.conns = make(map[*websocket.Conn]struct{})
	c.dialed = nil
	c.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	if c.server != nil {
		return c.server.Close()
	}
	return nil
}
