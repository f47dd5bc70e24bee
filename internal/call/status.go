package call

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/control"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
)

// Status is a point-in-time view of a session.
type Status struct {
	State State
	Cause Cause
	Err   error

	// Connection is the last state the transport reported.
	Connection webrtc.PeerConnectionState

	LocalMediaAcquired        bool
	PeerConnectionEstablished bool
	RemoteDescriptionSet      bool
	AudioEnabled              bool
	VideoEnabled              bool

	// Remote is set once the other participant's offer or answer has been
	// acted on.
	Remote       *protocol.Participant
	RemoteMedia  *control.MediaStatePayload
	RemoteDevice string
	RemoteHungUp bool
	RemoteTracks int

	Attempt     int
	StartedAt   time.Time
	ConnectedAt time.Time
	EndedAt     time.Time
}

// Waiting reports whether the session is negotiating without having heard
// from the other participant yet.
func (st Status) Waiting() bool {
	return st.State == StateNegotiating && st.Remote == nil
}

// Duration is the time spent connected, up to now or the end of the call.
func (st Status) Duration() time.Duration {
	if st.ConnectedAt.IsZero() {
		return 0
	}
	if !st.EndedAt.IsZero() {
		return st.EndedAt.Sub(st.ConnectedAt)
	}
	return time.Since(st.ConnectedAt)
}

func (s *Session) snapshot() Status {
	st := Status{
		State:                     s.state,
		Cause:                     s.cause,
		Err:                       s.err,
		Connection:                s.connState,
		LocalMediaAcquired:        s.stream != nil,
		PeerConnectionEstablished: s.peer != nil,
		RemoteDescriptionSet:      s.remoteDescSet,
		AudioEnabled:              s.audioEnabled,
		VideoEnabled:              s.videoEnabled,
		RemoteDevice:              s.remoteDevice,
		RemoteHungUp:              s.remoteHungUp,
		RemoteTracks:              s.remoteTracks,
		Attempt:                   s.attempt,
		StartedAt:                 s.startedAt,
		ConnectedAt:               s.connectedAt,
		EndedAt:                   s.endedAt,
	}
	if s.remote != nil {
		r := *s.remote
		st.Remote = &r
	}
	if s.remoteMedia != nil {
		m := *s.remoteMedia
		st.RemoteMedia = &m
	}
	return st
}

// publishStatus stores a fresh snapshot and offers it on Updates, replacing
// any snapshot the reader has not taken yet.
func (s *Session) publishStatus() {
	st := s.snapshot()

	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()

	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- st:
	default:
	}
}
