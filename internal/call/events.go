package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/control"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/media"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/transport"
)

// eventKind enumerates everything that can change a session.
type eventKind int

const (
	evStart eventKind = iota
	evMediaResult
	evJoinResult
	evSignal
	evPublishFailed
	evLocalCandidate
	evConnectionState
	evRemoteTrack
	evControlOpen
	evControl
	evToggleAudio
	evToggleVideo
	evRetry
	evEnd
)

func (k eventKind) String() string {
	switch k {
	case evStart:
		return "start"
	case evMediaResult:
		return "media-result"
	case evJoinResult:
		return "join-result"
	case evSignal:
		return "signal"
	case evPublishFailed:
		return "publish-failed"
	case evLocalCandidate:
		return "local-candidate"
	case evConnectionState:
		return "connection-state"
	case evRemoteTrack:
		return "remote-track"
	case evControlOpen:
		return "control-open"
	case evControl:
		return "control"
	case evToggleAudio:
		return "toggle-audio"
	case evToggleVideo:
		return "toggle-video"
	case evRetry:
		return "retry"
	case evEnd:
		return "end"
	default:
		return "unknown"
	}
}

// event is one input to step. attempt tags results of media and relay work
// with the attempt that started it; peer tags transport callbacks with the
// peer that raised them. Stale events are dropped.
type event struct {
	kind    eventKind
	attempt int
	peer    int

	stream    *media.Stream
	err       error
	msg       protocol.Message
	candidate webrtc.ICECandidateInit
	state     webrtc.PeerConnectionState
	track     transport.RemoteTrack
	ctrl      control.Message
	reply     chan error
}

// discard releases anything an undelivered event owns.
func (e event) discard() {
	if e.stream != nil {
		e.stream.Stop()
	}
	if e.reply != nil {
		e.reply <- ErrEnded
	}
}
