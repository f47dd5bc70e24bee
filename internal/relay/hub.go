package relay

import (
	"context"
	"log/slog"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
)

// Inbound is a frame read from a client, tagged with its sender.
type Inbound struct {
	Client *Client
	Frame  *protocol.Frame
}

// Hub is the relay's single owner of topic state. Every subscription change
// and every fan-out happens on the Run goroutine, so frames published by one
// client reach each subscriber in the order they were read.
type Hub struct {
	// topics maps a broadcast topic to its current subscribers.
	topics map[string]map[*Client]struct{}

	// clients holds every registered client whose Send channel is still open.
	clients map[*Client]struct{}

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan *Inbound

	done chan struct{}
	log  *slog.Logger
}

// NewHub creates a Hub. Call Run before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topics:     make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Inbound, 256),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run processes registrations and frames until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.clients[client] = struct{}{}
			h.log.Info("Relay client registered", "client", client.ID, "remote", client.RemoteAddr())

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.log.Info("Relay client unregistered", "client", client.ID)
				h.drop(client)
			}

		case in := <-h.Inbound:
			if _, ok := h.clients[in.Client]; !ok {
				continue
			}
			h.handle(in.Client, in.Frame)
		}
	}
}

func (h *Hub) handle(client *Client, f *protocol.Frame) {
	switch f.Type {
	case protocol.FrameSubscribe:
		room, ok := protocol.RoomFromTopic(f.Destination)
		if !ok {
			h.reject(client, f, "subscribe requires a /topic/room/{id} destination")
			return
		}
		subs, ok := h.topics[f.Destination]
		if !ok {
			subs = make(map[*Client]struct{})
			h.topics[f.Destination] = subs
		}
		subs[client] = struct{}{}
		client.topics[f.Destination] = struct{}{}

		h.log.Info("Client subscribed", "client", client.ID, "room", room, "subscribers", len(subs))
		if len(subs) > 2 {
			h.log.Warn("Room has more than two subscribers", "room", room, "subscribers", len(subs))
		}
		h.ack(client, f)

	case protocol.FrameUnsubscribe:
		h.unsubscribe(client, f.Destination)
		h.ack(client, f)

	case protocol.FramePublish:
		room, ok := protocol.RoomFromDestination(f.Destination)
		if !ok {
			h.reject(client, f, "publish requires an /app/room/{id} destination")
			return
		}
		topic := protocol.Topic(room)
		out := &protocol.Frame{
			Type:        protocol.FrameMessage,
			Destination: topic,
			Body:        f.Body,
		}

		h.log.Debug("Relaying publish", "client", client.ID, "room", room, "subscribers", len(h.topics[topic]))
		for sub := range h.topics[topic] {
			h.deliver(sub, out)
		}

	default:
		h.log.Warn("Unknown frame type", "client", client.ID, "type", f.Type)
		h.reject(client, f, "unknown frame type")
	}
}

func (h *Hub) unsubscribe(client *Client, topic string) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, client)
	delete(client.topics, topic)
	if len(subs) == 0 {
		delete(h.topics, topic)
		h.log.Info("Topic closed", "topic", topic)
	}
}

func (h *Hub) ack(client *Client, f *protocol.Frame) {
	if f.Receipt == "" {
		return
	}
	h.deliver(client, &protocol.Frame{
		Type:        protocol.FrameReceipt,
		Destination: f.Destination,
		Receipt:     f.Receipt,
	})
}

func (h *Hub) reject(client *Client, f *protocol.Frame, reason string) {
	h.deliver(client, &protocol.Frame{
		Type:        protocol.FrameError,
		Destination: f.Destination,
		Receipt:     f.Receipt,
		Error:       reason,
	})
}

// deliver queues f for client, dropping the client if it cannot keep up.
func (h *Hub) deliver(client *Client, f *protocol.Frame) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.Send <- f:
	default:
		h.log.Warn("Dropping slow relay client", "client", client.ID)
		h.drop(client)
	}
}

// drop removes client from every topic and closes its Send channel, which
// stops its write pump.
func (h *Hub) drop(client *Client) {
	for topic := range client.topics {
		h.unsubscribe(client, topic)
	}
	delete(h.clients, client)
	close(client.Send)
}
