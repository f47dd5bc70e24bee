package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Message type constants as they appear in the "type" field.
const (
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

var (
	ErrUnknownType = errors.New("unknown signaling message type")
	ErrMalformed   = errors.New("malformed signaling message")
)

// Message is one signaling message published to a room topic. The concrete
// type is always one of *Offer, *Answer or *ICECandidate.
type Message interface {
	// Type returns the wire type tag.
	Type() string
	// Sender returns the participant id of the publisher.
	Sender() string

	isMessage()
}

// Offer carries the initiator's session description.
type Offer struct {
	SDP         webrtc.SessionDescription
	From        string
	DisplayName string
	Role        Role
}

// Answer carries the responder's session description.
type Answer struct {
	SDP         webrtc.SessionDescription
	From        string
	DisplayName string
	Role        Role
}

// ICECandidate carries one trickled network candidate.
type ICECandidate struct {
	Candidate webrtc.ICECandidateInit
	From      string
}

func (*Offer) Type() string        { return TypeOffer }
func (*Answer) Type() string       { return TypeAnswer }
func (*ICECandidate) Type() string { return TypeICECandidate }

func (m *Offer) Sender() string        { return m.From }
func (m *Answer) Sender() string       { return m.From }
func (m *ICECandidate) Sender() string { return m.From }

func (*Offer) isMessage()        {}
func (*Answer) isMessage()       {}
func (*ICECandidate) isMessage() {}

// Participant returns the sender described by the offer.
func (m *Offer) Participant() Participant {
	return Participant{ID: m.From, DisplayName: m.DisplayName, Role: m.Role}
}

// Participant returns the sender described by the answer.
func (m *Answer) Participant() Participant {
	return Participant{ID: m.From, DisplayName: m.DisplayName, Role: m.Role}
}

// envelope is the JSON object published to the relay, one per message.
type envelope struct {
	Type      string                     `json:"type"`
	From      string                     `json:"from"`
	UserName  string                     `json:"userName,omitempty"`
	Role      Role                       `json:"role,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// Encode marshals m into its wire form.
func Encode(m Message) ([]byte, error) {
	var env envelope
	switch m := m.(type) {
	case *Offer:
		env = envelope{Type: TypeOffer, From: m.From, UserName: m.DisplayName, Role: m.Role, SDP: &m.SDP}
	case *Answer:
		env = envelope{Type: TypeAnswer, From: m.From, UserName: m.DisplayName, Role: m.Role, SDP: &m.SDP}
	case *ICECandidate:
		env = envelope{Type: TypeICECandidate, From: m.From, Candidate: &m.Candidate}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	return json.Marshal(env)
}

// Decode parses one wire message. Unrecognised types yield ErrUnknownType;
// missing or inconsistent fields yield ErrMalformed.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.From == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrMalformed)
	}

	switch env.Type {
	case TypeOffer:
		if err := checkSDP(env.SDP, webrtc.SDPTypeOffer); err != nil {
			return nil, err
		}
		return &Offer{SDP: *env.SDP, From: env.From, DisplayName: env.UserName, Role: env.Role}, nil

	case TypeAnswer:
		if err := checkSDP(env.SDP, webrtc.SDPTypeAnswer); err != nil {
			return nil, err
		}
		return &Answer{SDP: *env.SDP, From: env.From, DisplayName: env.UserName, Role: env.Role}, nil

	case TypeICECandidate:
		if env.Candidate == nil {
			return nil, fmt.Errorf("%w: ice-candidate without candidate", ErrMalformed)
		}
		return &ICECandidate{Candidate: *env.Candidate, From: env.From}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func checkSDP(sdp *webrtc.SessionDescription, want webrtc.SDPType) error {
	if sdp == nil {
		return fmt.Errorf("%w: %s without sdp", ErrMalformed, want)
	}
	if sdp.Type != want {
		return fmt.Errorf("%w: %s carries sdp of type %s", ErrMalformed, want, sdp.Type)
	}
	return nil
}
