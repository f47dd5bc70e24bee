package signaling

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/relay"
)

func startRelay(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(nil)
	go hub.Run(ctx)

	ts := httptest.NewServer(relay.NewServer(hub, nil).Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-hub.Done()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func newTestChannel(t *testing.T, url string) *Channel {
	t.Helper()
	c := NewChannel(Options{URL: url, Dialer: websocket.DefaultDialer, ReceiptTimeout: 2 * time.Second})
	t.Cleanup(c.Disconnect)
	return c
}

func collect() (Handler, <-chan protocol.Message) {
	ch := make(chan protocol.Message, 32)
	return func(m protocol.Message) { ch <- m }, ch
}

func next(t *testing.T, ch <-chan protocol.Message) protocol.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func candidate(from, c string) *protocol.ICECandidate {
	return &protocol.ICECandidate{From: from, Candidate: webrtc.ICECandidateInit{Candidate: c}}
}

func TestChannelPublishReachesEverySubscriberInOrder(t *testing.T) {
	url := startRelay(t)
	ctx := context.Background()

	a := newTestChannel(t, url)
	b := newTestChannel(t, url)
	for _, c := range []*Channel{a, b} {
		if err := c.Connect(ctx); err != nil {
			t.Fatalf("connect: %v", err)
		}
	}

	ha, inA := collect()
	hb, inB := collect()
	if err := a.Subscribe(ctx, "r1", ha); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if err := b.Subscribe(ctx, "r1", hb); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	sent := []string{"candidate:1", "candidate:2", "candidate:3"}
	for _, s := range sent {
		if err := a.Publish(ctx, "r1", candidate("alice", s)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	for name, in := range map[string]<-chan protocol.Message{"sender": inA, "peer": inB} {
		for _, want := range sent {
			m, ok := next(t, in).(*protocol.ICECandidate)
			if !ok {
				t.Fatalf("%s: expected ICE candidate", name)
			}
			if m.Candidate.Candidate != want || m.From != "alice" {
				t.Fatalf("%s: got %q from %q, want %q", name, m.Candidate.Candidate, m.From, want)
			}
		}
	}
}

func TestChannelConnectIsIdempotent(t *testing.T) {
	url := startRelay(t)
	ctx := context.Background()

	c := newTestChannel(t, url)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.mu.Lock()
	first := c.conn
	c.mu.Unlock()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	c.mu.Lock()
	second := c.conn
	c.mu.Unlock()
	if first != second {
		t.Fatal("second Connect opened a new connection")
	}
}

func TestChannelConnectUnreachable(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ts.Close()

	c := newTestChannel(t, url)
	err := c.Connect(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	var opErr *Error
	if !errors.As(err, &opErr) || opErr.Op != "connect" {
		t.Fatalf("expected *Error for connect, got %T", err)
	}
}

func TestChannelRequiresConnection(t *testing.T) {
	c := newTestChannel(t, "ws://127.0.0.1:1/ws")
	ctx := context.Background()
	h, _ := collect()

	if err := c.Subscribe(ctx, "r1", h); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("subscribe: expected ErrNotConnected, got %v", err)
	}
	if err := c.Publish(ctx, "r1", candidate("a", "c")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("publish: expected ErrNotConnected, got %v", err)
	}
	if err := c.Unsubscribe(ctx, "r1"); err != nil {
		t.Fatalf("unsubscribe without subscription: %v", err)
	}
}

func TestChannelSubscribeReplacesHandler(t *testing.T) {
	url := startRelay(t)
	ctx := context.Background()

	c := newTestChannel(t, url)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	first, inFirst := collect()
	second, inSecond := collect()
	if err := c.Subscribe(ctx, "r1", first); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.Subscribe(ctx, "r1", second); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if n := c.Subscriptions(); n != 1 {
		t.Fatalf("Subscriptions()=%d, want 1", n)
	}

	if err := c.Publish(ctx, "r1", candidate("a", "c1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	next(t, inSecond)

	select {
	case m := <-inFirst:
		t.Fatalf("replaced handler still received %v", m)
	default:
	}
}

func TestChannelSubscribeRejected(t *testing.T) {
	url := startRelay(t)
	ctx := context.Background()

	c := newTestChannel(t, url)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	h, _ := collect()
	err := c.Subscribe(ctx, "bad/room", h)
	if !errors.Is(err, ErrSubscribeRejected) {
		t.Fatalf("expected ErrSubscribeRejected, got %v", err)
	}
	if n := c.Subscriptions(); n != 0 {
		t.Fatalf("rejected subscription left %d handlers", n)
	}
}

func TestChannelUnsubscribeAndDisconnect(t *testing.T) {
	url := startRelay(t)
	ctx := context.Background()

	c := newTestChannel(t, url)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h, _ := collect()
	for _, room := range []string{"r1", "r2"} {
		if err := c.Subscribe(ctx, room, h); err != nil {
			t.Fatalf("subscribe %s: %v", room, err)
		}
	}

	if err := c.Unsubscribe(ctx, "r1"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if n := c.Subscriptions(); n != 1 {
		t.Fatalf("Subscriptions()=%d after unsubscribe, want 1", n)
	}
	if err := c.Unsubscribe(ctx, "r1"); err != nil {
		t.Fatalf("second unsubscribe: %v", err)
	}

	c.Disconnect()
	c.Disconnect()
	if n := c.Subscriptions(); n != 0 {
		t.Fatalf("Subscriptions()=%d after disconnect", n)
	}
	if err := c.Publish(ctx, "r2", candidate("a", "c")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("publish after disconnect: %v", err)
	}

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
}
