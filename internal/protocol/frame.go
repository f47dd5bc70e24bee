package protocol

import "encoding/json"

// Frame is the relay-level envelope exchanged between a relay client and
// the relay server. Signaling messages travel opaquely in Body.
type Frame struct {
	Type        string          `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
	Receipt     string          `json:"receipt,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Frame types. Clients send subscribe, unsubscribe and publish; the relay
// sends message, receipt and error.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePublish     = "publish"
	FrameMessage     = "message"
	FrameReceipt     = "receipt"
	FrameError       = "error"
)

// MaxFrameSize bounds a single relay frame; large enough for SDP.
const MaxFrameSize = 64 * 1024
