// Package signaling is the client side of the room relay: it joins
// room-scoped topics, hands decoded signaling messages to a handler, and
// publishes messages to a room. It never interprets message content.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/dns"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// DefaultReceiptTimeout bounds how long subscribe and unsubscribe wait
	// for the relay to acknowledge.
	DefaultReceiptTimeout = 5 * time.Second
)

// Handler receives every message published to a subscribed room, in relay
// delivery order, including the subscriber's own publishes. It runs on the
// connection's read goroutine and must not block.
type Handler func(protocol.Message)

// Options configures a Channel.
type Options struct {
	// URL is the relay WebSocket endpoint, e.g. wss://example.org/ws.
	URL string

	// Dialer overrides the default dialer, which resolves hosts with
	// public-DNS fallback.
	Dialer *websocket.Dialer

	ReceiptTimeout time.Duration
	Logger         *slog.Logger
}

// Channel is a SignalingChannel over the relay's WebSocket frame protocol.
// One Channel may carry subscriptions for several rooms.
type Channel struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	conn     *wsConn
	handlers map[string]Handler // keyed by room id
}

// NewChannel returns an unconnected Channel.
func NewChannel(opts Options) *Channel {
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = DefaultReceiptTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = fallbackDialer()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		opts:     opts,
		log:      logger.With("component", "signaling"),
		handlers: make(map[string]Handler),
	}
}

// fallbackDialer returns a websocket dialer that resolves hosts through
// dns.Lookup.
func fallbackDialer() *websocket.Dialer {
	d := *websocket.DefaultDialer
	d.ReadBufferSize = protocol.MaxFrameSize
	d.WriteBufferSize = protocol.MaxFrameSize
	d.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ip, err := dns.Lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		var nd net.Dialer
		return nd.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}
	return &d
}

// Connect opens the relay connection. It returns nil without reconnecting
// when already connected, and an error wrapping ErrUnreachable when the
// relay cannot be reached. It never retries.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.isClosed() {
		return nil
	}

	ws, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return opError("connect", "", fmt.Errorf("%w: %w", ErrUnreachable, err))
	}

	conn := newWSConn(ws)
	c.conn = conn
	go conn.writePump()
	go c.readPump(conn)

	c.log.Info("Connected to relay", "url", c.opts.URL)
	return nil
}

// Subscribe registers handler for roomID. A second Subscribe for the same
// room replaces the previous handler. It returns once the relay has
// acknowledged the subscription, so every later publish will be delivered.
func (c *Channel) Subscribe(ctx context.Context, roomID string, handler Handler) error {
	if handler == nil {
		return opError("subscribe", roomID, errors.New("nil handler"))
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil || conn.isClosed() {
		c.mu.Unlock()
		return opError("subscribe", roomID, ErrNotConnected)
	}
	_, existing := c.handlers[roomID]
	c.handlers[roomID] = handler
	c.mu.Unlock()

	if existing {
		c.log.Debug("Replaced room handler", "room", roomID)
		return nil
	}

	err := c.request(ctx, conn, &protocol.Frame{
		Type:        protocol.FrameSubscribe,
		Destination: protocol.Topic(roomID),
	})
	if err != nil {
		c.mu.Lock()
		delete(c.handlers, roomID)
		c.mu.Unlock()
		return opError("subscribe", roomID, err)
	}

	c.log.Info("Subscribed to room", "room", roomID)
	return nil
}

// Publish sends msg to roomID. A nil error means the frame was written to
// the relay connection, not that any subscriber received it. Publish does
// not buffer or retry.
func (c *Channel) Publish(ctx context.Context, roomID string, msg protocol.Message) error {
	body, err := protocol.Encode(msg)
	if err != nil {
		return opError("publish", roomID, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.isClosed() {
		return opError("publish", roomID, ErrNotConnected)
	}

	err = conn.send(ctx, &protocol.Frame{
		Type:        protocol.FramePublish,
		Destination: protocol.Destination(roomID),
		Body:        body,
	})
	if err != nil {
		return opError("publish", roomID, err)
	}
	return nil
}

// Unsubscribe removes the handler for roomID and tells the relay. It is a
// no-op when no handler is registered.
func (c *Channel) Unsubscribe(ctx context.Context, roomID string) error {
	c.mu.Lock()
	_, ok := c.handlers[roomID]
	delete(c.handlers, roomID)
	conn := c.conn
	c.mu.Unlock()

	if !ok || conn == nil || conn.isClosed() {
		return nil
	}

	err := c.request(ctx, conn, &protocol.Frame{
		Type:        protocol.FrameUnsubscribe,
		Destination: protocol.Topic(roomID),
	})
	if err != nil {
		return opError("unsubscribe", roomID, err)
	}
	c.log.Info("Unsubscribed from room", "room", roomID)
	return nil
}

// Subscriptions reports how many rooms currently have a handler.
func (c *Channel) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// Disconnect closes the relay connection and drops every subscription.
// It is safe to call more than once.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	clear(c.handlers)
	c.mu.Unlock()

	if conn != nil && !conn.isClosed() {
		conn.close()
		c.log.Info("Disconnected from relay")
	}
}

// request writes a frame that expects a receipt and waits for it.
func (c *Channel) request(ctx context.Context, conn *wsConn, f *protocol.Frame) error {
	f.Receipt = uuid.NewString()
	wait := conn.expect(f.Receipt)
	defer conn.forget(f.Receipt)

	if err := conn.send(ctx, f); err != nil {
		return err
	}

	timer := time.NewTimer(c.opts.ReceiptTimeout)
	defer timer.Stop()

	select {
	case reply := <-wait:
		if reply.Type == protocol.FrameError {
			return fmt.Errorf("%w: %s", ErrSubscribeRejected, reply.Error)
		}
		return nil
	case <-timer.C:
		return ErrReceiptTimeout
	case <-conn.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump dispatches relay frames until the connection fails. Losing the
// connection drops every handler, since the relay forgets the subscriptions.
func (c *Channel) readPump(conn *wsConn) {
	defer func() {
		conn.close()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			clear(c.handlers)
		}
		c.mu.Unlock()
	}()

	conn.ws.SetReadLimit(protocol.MaxFrameSize)
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f protocol.Frame
		if err := conn.ws.ReadJSON(&f); err != nil {
			if !conn.isClosed() {
				c.log.Warn("Relay connection lost", "error", err)
			}
			return
		}

		switch f.Type {
		case protocol.FrameMessage:
			c.dispatch(&f)
		case protocol.FrameReceipt, protocol.FrameError:
			if !conn.resolve(&f) && f.Type == protocol.FrameError {
				c.log.Warn("Relay error", "destination", f.Destination, "error", f.Error)
			}
		default:
			c.log.Debug("Ignoring relay frame", "type", f.Type)
		}
	}
}

func (c *Channel) dispatch(f *protocol.Frame) {
	room, ok := protocol.RoomFromTopic(f.Destination)
	if !ok {
		c.log.Warn("Message on unexpected destination", "destination", f.Destination)
		return
	}

	c.mu.Lock()
	handler := c.handlers[room]
	c.mu.Unlock()
	if handler == nil {
		return
	}

	msg, err := protocol.Decode(f.Body)
	if err != nil {
		c.log.Warn("Dropping undecodable signaling message", "room", room, "error", err)
		return
	}
	handler(msg)
}

// wsConn is one live relay connection and its write pump.
type wsConn struct {
	ws  *websocket.Conn
	out chan outbound

	quit      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]chan *protocol.Frame
}

type outbound struct {
	frame  *protocol.Frame
	result chan error
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:      ws,
		out:     make(chan outbound),
		quit:    make(chan struct{}),
		pending: make(map[string]chan *protocol.Frame),
	}
}

func (w *wsConn) isClosed() bool {
	select {
	case <-w.quit:
		return true
	default:
		return false
	}
}

// close stops the write pump, which sends a close frame and closes the
// socket.
func (w *wsConn) close() {
	w.closeOnce.Do(func() { close(w.quit) })
}

// send hands f to the write pump and waits for the write result.
func (w *wsConn) send(ctx context.Context, f *protocol.Frame) error {
	ob := outbound{frame: f, result: make(chan error, 1)}
	select {
	case w.out <- ob:
	case <-w.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ob.result:
		return err
	case <-w.quit:
		return ErrClosed
	}
}

func (w *wsConn) expect(receipt string) <-chan *protocol.Frame {
	ch := make(chan *protocol.Frame, 1)
	w.mu.Lock()
	w.pending[receipt] = ch
	w.mu.Unlock()
	return ch
}

func (w *wsConn) forget(receipt string) {
	w.mu.Lock()
	delete(w.pending, receipt)
	w.mu.Unlock()
}

// resolve routes a receipt or error frame to its waiter.
func (w *wsConn) resolve(f *protocol.Frame) bool {
	if f.Receipt == "" {
		return false
	}
	w.mu.Lock()
	ch, ok := w.pending[f.Receipt]
	w.mu.Unlock()
	if ok {
		select {
		case ch <- f:
		default:
		}
	}
	return ok
}

func (w *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.close()
		w.ws.Close()
	}()

	for {
		select {
		case ob := <-w.out:
			w.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := w.ws.WriteJSON(ob.frame)
			ob.result <- err
			if err != nil {
				return
			}

		case <-ticker.C:
			w.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-w.quit:
			w.ws.SetWriteDeadline(time.Now().Add(writeWait))
			w.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
