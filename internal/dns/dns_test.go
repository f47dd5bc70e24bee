package dns

import (
	"context"
	"testing"
)

func TestLookupPassesIPLiteralsThrough(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "::1", "10.1.2.3"} {
		got, err := Lookup(context.Background(), ip)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", ip, err)
		}
		if got != ip {
			t.Fatalf("Lookup(%q)=%q", ip, got)
		}
	}
}

func TestLookupHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Lookup(ctx, "relay.invalid"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestTrimBrackets(t *testing.T) {
	cases := map[string]string{
		"[2606:4700:4700::1111]": "2606:4700:4700::1111",
		"1.1.1.1":                "1.1.1.1",
		"[":                      "[",
	}
	for in, want := range cases {
		if got := trimBrackets(in); got != want {
			t.Fatalf("trimBrackets(%q)=%q, want %q", in, got, want)
		}
	}
}
