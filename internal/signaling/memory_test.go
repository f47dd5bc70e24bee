package signaling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
)

func candidateOf(t *testing.T, m protocol.Message) string {
	t.Helper()
	c, ok := m.(*protocol.ICECandidate)
	if !ok {
		t.Fatalf("expected ICE candidate, got %T", m)
	}
	return c.Candidate.Candidate
}

func TestMemoryRelayDeliversInOrderWithEcho(t *testing.T) {
	r := NewMemoryRelay()
	ctx := context.Background()

	a, b := r.NewChannel(), r.NewChannel()
	t.Cleanup(a.Disconnect)
	t.Cleanup(b.Disconnect)

	ha, inA := collect()
	hb, inB := collect()
	for _, c := range []struct {
		ch *MemoryChannel
		h  Handler
	}{{a, ha}, {b, hb}} {
		if err := c.ch.Connect(ctx); err != nil {
			t.Fatalf("connect: %v", err)
		}
		if err := c.ch.Subscribe(ctx, "r1", c.h); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	if n := r.Subscribers("r1"); n != 2 {
		t.Fatalf("Subscribers=%d, want 2", n)
	}

	for _, s := range []string{"c1", "c2", "c3"} {
		if err := b.Publish(ctx, "r1", candidate("bob", s)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	for _, in := range []<-chan protocol.Message{inA, inB} {
		for _, want := range []string{"c1", "c2", "c3"} {
			m := next(t, in)
			if got := candidateOf(t, m); got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		}
	}
}

func TestMemoryRelayLateSubscriberMissesEarlierPublish(t *testing.T) {
	r := NewMemoryRelay()
	ctx := context.Background()

	a, b := r.NewChannel(), r.NewChannel()
	t.Cleanup(a.Disconnect)
	t.Cleanup(b.Disconnect)

	ha, inA := collect()
	if err := a.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Subscribe(ctx, "r1", ha); err != nil {
		t.Fatal(err)
	}
	if err := a.Publish(ctx, "r1", candidate("alice", "early")); err != nil {
		t.Fatal(err)
	}
	next(t, inA)

	hb, inB := collect()
	if err := b.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe(ctx, "r1", hb); err != nil {
		t.Fatal(err)
	}
	if err := a.Publish(ctx, "r1", candidate("alice", "late")); err != nil {
		t.Fatal(err)
	}

	if got := candidateOf(t, next(t, inB)); got != "late" {
		t.Fatalf("late subscriber first saw %q", got)
	}
}

func TestMemoryRelayFaults(t *testing.T) {
	r := NewMemoryRelay()
	ctx := context.Background()
	c := r.NewChannel()
	t.Cleanup(c.Disconnect)

	r.SetUnreachable(true)
	if err := c.Connect(ctx); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	r.SetUnreachable(false)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	boom := errors.New("boom")
	r.FailPublishes(boom)
	if err := c.Publish(ctx, "r1", candidate("a", "x")); !errors.Is(err, boom) {
		t.Fatalf("expected injected publish error, got %v", err)
	}
	r.FailPublishes(nil)
	if err := c.Publish(ctx, "r1", candidate("a", "x")); err != nil {
		t.Fatalf("publish after restore: %v", err)
	}
}

func TestMemoryChannelDisconnectReleasesRooms(t *testing.T) {
	r := NewMemoryRelay()
	ctx := context.Background()
	c := r.NewChannel()

	h, in := collect()
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Subscribe(ctx, "r1", h); err != nil {
		t.Fatal(err)
	}
	if err := c.Subscribe(ctx, "r2", h); err != nil {
		t.Fatal(err)
	}
	if err := c.Unsubscribe(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if r.Subscribers("r1") != 0 || r.Subscribers("r2") != 1 {
		t.Fatalf("unsubscribe disturbed another room: r1=%d r2=%d", r.Subscribers("r1"), r.Subscribers("r2"))
	}

	c.Disconnect()
	c.Disconnect()
	if r.Subscribers("r2") != 0 || c.Subscriptions() != 0 || c.Connected() {
		t.Fatal("disconnect left state behind")
	}

	select {
	case m := <-in:
		t.Fatalf("unexpected delivery %v", m)
	case <-time.After(20 * time.Millisecond):
	}
}
