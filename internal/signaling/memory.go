package signaling

import (
	"context"
	"errors"
	"sync"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
)

// MemoryRelay is an in-process relay with the same delivery rules as the
// relay server: a publish reaches every channel subscribed to the room at
// that moment, the sender included, asynchronously and in publish order
// per subscriber. Messages pass through the wire codec.
type MemoryRelay struct {
	mu          sync.Mutex
	rooms       map[string]map[*MemoryChannel]struct{}
	unreachable bool
	publishErr  error
}

func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{rooms: make(map[string]map[*MemoryChannel]struct{})}
}

// SetUnreachable makes later Connect calls fail with ErrUnreachable.
func (r *MemoryRelay) SetUnreachable(down bool) {
	r.mu.Lock()
	r.unreachable = down
	r.mu.Unlock()
}

// FailPublishes makes every later Publish return err. A nil err restores
// normal delivery.
func (r *MemoryRelay) FailPublishes(err error) {
	r.mu.Lock()
	r.publishErr = err
	r.mu.Unlock()
}

// Subscribers reports how many channels are subscribed to roomID.
func (r *MemoryRelay) Subscribers(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}

// NewChannel returns an unconnected channel attached to r.
func (r *MemoryRelay) NewChannel() *MemoryChannel {
	return &MemoryChannel{relay: r, handlers: make(map[string]Handler)}
}

type delivery struct {
	room string
	body []byte
}

// MemoryChannel is one participant's connection to a MemoryRelay. It
// satisfies the same contract as Channel.
type MemoryChannel struct {
	relay *MemoryRelay

	mu        sync.Mutex
	connected bool
	handlers  map[string]Handler
	queue     []delivery
	wake      chan struct{}
	stop      chan struct{}
	stopped   chan struct{}
}

func (c *MemoryChannel) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return opError("connect", "", err)
	}

	c.relay.mu.Lock()
	down := c.relay.unreachable
	c.relay.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if down {
		return opError("connect", "", ErrUnreachable)
	}

	c.connected = true
	c.queue = nil
	c.wake = make(chan struct{}, 1)
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})
	go c.deliverLoop(c.wake, c.stop, c.stopped)
	return nil
}

func (c *MemoryChannel) Subscribe(ctx context.Context, roomID string, handler Handler) error {
	if handler == nil {
		return opError("subscribe", roomID, errors.New("nil handler"))
	}
	if err := ctx.Err(); err != nil {
		return opError("subscribe", roomID, err)
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return opError("subscribe", roomID, ErrNotConnected)
	}
	c.handlers[roomID] = handler
	c.mu.Unlock()

	c.relay.mu.Lock()
	subs, ok := c.relay.rooms[roomID]
	if !ok {
		subs = make(map[*MemoryChannel]struct{})
		c.relay.rooms[roomID] = subs
	}
	subs[c] = struct{}{}
	c.relay.mu.Unlock()
	return nil
}

func (c *MemoryChannel) Publish(ctx context.Context, roomID string, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return opError("publish", roomID, err)
	}
	body, err := protocol.Encode(msg)
	if err != nil {
		return opError("publish", roomID, err)
	}

	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return opError("publish", roomID, ErrNotConnected)
	}

	c.relay.mu.Lock()
	defer c.relay.mu.Unlock()
	if c.relay.publishErr != nil {
		return opError("publish", roomID, c.relay.publishErr)
	}
	for sub := range c.relay.rooms[roomID] {
		sub.enqueue(delivery{room: roomID, body: body})
	}
	return nil
}

func (c *MemoryChannel) Unsubscribe(ctx context.Context, roomID string) error {
	c.mu.Lock()
	_, ok := c.handlers[roomID]
	delete(c.handlers, roomID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.relay.leave(c, roomID)
	return nil
}

func (c *MemoryChannel) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// Disconnect waits for the delivery goroutine to exit, so it must not be
// called from a Handler.
func (c *MemoryChannel) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	rooms := make([]string, 0, len(c.handlers))
	for room := range c.handlers {
		rooms = append(rooms, room)
	}
	clear(c.handlers)
	stop, stopped := c.stop, c.stopped
	c.mu.Unlock()

	for _, room := range rooms {
		c.relay.leave(c, room)
	}
	close(stop)
	<-stopped
}

// Connected reports whether Connect has succeeded and Disconnect has not
// been called since.
func (c *MemoryChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (r *MemoryRelay) leave(c *MemoryChannel, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs, ok := r.rooms[roomID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

func (c *MemoryChannel) enqueue(d delivery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.queue = append(c.queue, d)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *MemoryChannel) deliverLoop(wake, stop, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-stop:
			return
		case <-wake:
		}

		for {
			c.mu.Lock()
			if len(c.queue) == 0 || !c.connected {
				c.mu.Unlock()
				break
			}
			d := c.queue[0]
			c.queue = c.queue[1:]
			handler := c.handlers[d.room]
			c.mu.Unlock()

			if handler == nil {
				continue
			}
			msg, err := protocol.Decode(d.body)
			if err != nil {
				continue
			}
			handler(msg)
		}
	}
}
