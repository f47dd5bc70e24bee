// Package control defines the in-call messages the two participants
// exchange over the peer data channel once the transport is up. They
// describe the call, never its negotiation.
package control

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ChannelLabel is the data channel the initiator opens for control messages.
const ChannelLabel = "call-control"

const (
	TypeDeviceInfo = "device_info"
	TypeMediaState = "media_state"
	TypeHangup     = "hangup"
)

var ErrUnknownType = errors.New("unknown control message type")

// Message is one control data channel message.
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// DeviceInfoPayload is sent by each side when the control channel opens.
type DeviceInfoPayload struct {
	DeviceName    string `msgpack:"deviceName"`
	DeviceVersion string `msgpack:"deviceVersion"`
}

// MediaStatePayload is sent after every local mute or camera toggle.
type MediaStatePayload struct {
	AudioEnabled bool `msgpack:"audioEnabled"`
	VideoEnabled bool `msgpack:"videoEnabled"`
}

// DecodePayload decodes the message payload into v.
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a Message with the given type and payload. A nil
// payload leaves Payload empty.
func NewMessage(t string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: b}, nil
}

func DeviceInfo(name, version string) (Message, error) {
	return NewMessage(TypeDeviceInfo, DeviceInfoPayload{DeviceName: name, DeviceVersion: version})
}

func MediaState(audio, video bool) (Message, error) {
	return NewMessage(TypeMediaState, MediaStatePayload{AudioEnabled: audio, VideoEnabled: video})
}

func Hangup() Message {
	return Message{Type: TypeHangup}
}

// Marshal encodes m for the data channel.
func Marshal(m Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

// Unmarshal decodes one data channel frame, rejecting unknown types.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	switch m.Type {
	case TypeDeviceInfo, TypeMediaState, TypeHangup:
		return m, nil
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}
