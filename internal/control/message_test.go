package control

import (
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestMediaStateOverTheWire(t *testing.T) {
	m, err := MediaState(false, true)
	if err != nil {
		t.Fatalf("MediaState: %v", err)
	}
	data, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Type != TypeMediaState {
		t.Fatalf("type=%q", got.Type)
	}
	var p MediaStatePayload
	if err := got.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.AudioEnabled || !p.VideoEnabled {
		t.Fatalf("payload=%+v", p)
	}
}

func TestHangupHasNoPayload(t *testing.T) {
	data, err := Marshal(Hangup())
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeHangup || len(got.Payload) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestUnmarshalRejectsUnknownAndGarbage(t *testing.T) {
	unknown, err := msgpack.Marshal(Message{Type: "file_chunk"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(unknown); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if _, err := Unmarshal([]byte{0xc1}); err == nil {
		t.Fatal("expected error for invalid msgpack")
	}
}
