package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
)

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)

	ts := httptest.NewServer(NewServer(hub, nil).Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-hub.Done()
	})
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, f protocol.Frame) {
	t.Helper()
	if err := c.WriteJSON(f); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, c *websocket.Conn) protocol.Frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f protocol.Frame
	if err := c.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func subscribe(t *testing.T, c *websocket.Conn, room string) {
	t.Helper()
	send(t, c, protocol.Frame{Type: protocol.FrameSubscribe, Destination: protocol.Topic(room), Receipt: "sub-" + room})
	if f := recv(t, c); f.Type != protocol.FrameReceipt || f.Receipt != "sub-"+room {
		t.Fatalf("expected receipt, got %+v", f)
	}
}

func TestPublishFansOutToTopicIncludingSender(t *testing.T) {
	ts := startRelay(t)
	a := dial(t, ts)
	b := dial(t, ts)

	subscribe(t, a, "r1")
	subscribe(t, b, "r1")

	for i := 0; i < 3; i++ {
		body := json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i))
		send(t, a, protocol.Frame{Type: protocol.FramePublish, Destination: protocol.Destination("r1"), Body: body})
	}

	for _, c := range []*websocket.Conn{a, b} {
		for i := 0; i < 3; i++ {
			f := recv(t, c)
			if f.Type != protocol.FrameMessage || f.Destination != "/topic/room/r1" {
				t.Fatalf("unexpected frame %+v", f)
			}
			if want := fmt.Sprintf(`{"seq":%d}`, i); string(f.Body) != want {
				t.Fatalf("body=%s, want %s (out of order)", f.Body, want)
			}
		}
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	ts := startRelay(t)
	a := dial(t, ts)
	b := dial(t, ts)

	subscribe(t, a, "r1")
	subscribe(t, b, "r2")

	send(t, a, protocol.Frame{Type: protocol.FramePublish, Destination: protocol.Destination("r2"), Body: json.RawMessage(`{"x":1}`)})
	send(t, a, protocol.Frame{Type: protocol.FramePublish, Destination: protocol.Destination("r1"), Body: json.RawMessage(`{"x":2}`)})

	if f := recv(t, a); string(f.Body) != `{"x":2}` {
		t.Fatalf("r1 subscriber received %s", f.Body)
	}
	if f := recv(t, b); string(f.Body) != `{"x":1}` {
		t.Fatalf("r2 subscriber received %s", f.Body)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ts := startRelay(t)
	a := dial(t, ts)
	b := dial(t, ts)

	subscribe(t, a, "r1")
	subscribe(t, b, "r1")

	send(t, b, protocol.Frame{Type: protocol.FrameUnsubscribe, Destination: protocol.Topic("r1"), Receipt: "unsub"})
	if f := recv(t, b); f.Type != protocol.FrameReceipt || f.Receipt != "unsub" {
		t.Fatalf("expected unsubscribe receipt, got %+v", f)
	}

	send(t, a, protocol.Frame{Type: protocol.FramePublish, Destination: protocol.Destination("r1"), Body: json.RawMessage(`{"after":true}`)})
	if f := recv(t, a); string(f.Body) != `{"after":true}` {
		t.Fatalf("sender echo=%s", f.Body)
	}

	// b must see nothing further; a receipt for a fresh subscription on another
	// room proves the queue is empty.
	subscribe(t, b, "r9")
}

func TestThirdSubscriberStillReceives(t *testing.T) {
	ts := startRelay(t)
	conns := []*websocket.Conn{dial(t, ts), dial(t, ts), dial(t, ts)}
	for _, c := range conns {
		subscribe(t, c, "r1")
	}

	send(t, conns[2], protocol.Frame{Type: protocol.FramePublish, Destination: protocol.Destination("r1"), Body: json.RawMessage(`{"third":true}`)})
	for i, c := range conns {
		if f := recv(t, c); string(f.Body) != `{"third":true}` {
			t.Fatalf("conn %d received %s", i, f.Body)
		}
	}
}

func TestBadDestinationsAreRejected(t *testing.T) {
	ts := startRelay(t)
	a := dial(t, ts)

	send(t, a, protocol.Frame{Type: protocol.FrameSubscribe, Destination: "/app/room/r1", Receipt: "bad-sub"})
	if f := recv(t, a); f.Type != protocol.FrameError || f.Receipt != "bad-sub" {
		t.Fatalf("expected error for subscribe to ingress path, got %+v", f)
	}

	send(t, a, protocol.Frame{Type: protocol.FramePublish, Destination: "/topic/room/r1"})
	if f := recv(t, a); f.Type != protocol.FrameError {
		t.Fatalf("expected error for publish to topic path, got %+v", f)
	}

	send(t, a, protocol.Frame{Type: "connect"})
	if f := recv(t, a); f.Type != protocol.FrameError {
		t.Fatalf("expected error for unknown frame, got %+v", f)
	}
}

func TestHealth(t *testing.T) {
	ts := startRelay(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
}
