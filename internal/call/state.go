package call

import (
	"errors"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/media"
)

// State is the session's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateJoiningRoom
	StateNegotiating
	StateConnected
	StateFailed
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring-media"
	case StateJoiningRoom:
		return "joining-room"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateEnded }

var (
	ErrMissingParameter = errors.New("missing required parameter")
	ErrNotRetriable     = errors.New("session is not in a retriable state")
	ErrEnded            = errors.New("session ended")
)

// Cause says why a session is in StateFailed.
type Cause string

const (
	CauseNone             Cause = ""
	CausePermissionDenied Cause = Cause(media.CausePermissionDenied)
	CauseDeviceNotFound   Cause = Cause(media.CauseDeviceNotFound)
	CauseDeviceBusy       Cause = Cause(media.CauseDeviceBusy)
	CauseInsecureContext  Cause = Cause(media.CauseInsecureContext)
	CauseMedia            Cause = Cause(media.CauseUnknown)
	CauseRelay            Cause = "relay"
	CauseTransport        Cause = "transport"
)

func causeFromMedia(err error) Cause {
	return Cause(media.Classify(err))
}

// Retriable reports whether Retry may be used after a failure with this cause.
func (c Cause) Retriable() bool {
	return c != CauseNone
}

// Message is the user-facing text for the cause.
func (c Cause) Message() string {
	switch c {
	case CausePermissionDenied:
		return "Please allow camera and microphone access and press r to retry."
	case CauseDeviceNotFound:
		return "No camera or microphone found. Please connect a device and press r to retry."
	case CauseDeviceBusy:
		return "Your camera or microphone is already in use by another application. Please close other applications and press r to retry."
	case CauseInsecureContext:
		return "Video calls require a secure connection. Please use a wss:// relay."
	case CauseMedia:
		return "Failed to access media devices."
	case CauseRelay:
		return "Failed to initialize call."
	case CauseTransport:
		return "Connection failed. Please press r to retry."
	default:
		return ""
	}
}
