package media

import "errors"

var (
	ErrPermissionDenied = errors.New("camera and microphone permission denied")
	ErrDeviceNotFound   = errors.New("no camera or microphone found")
	ErrDeviceBusy       = errors.New("camera or microphone already in use")
	ErrInsecureContext  = errors.New("media capture requires a secure context")
)

// Cause classifies why acquisition failed.
type Cause string

const (
	CauseNone             Cause = ""
	CausePermissionDenied Cause = "permission-denied"
	CauseDeviceNotFound   Cause = "device-not-found"
	CauseDeviceBusy       Cause = "device-busy"
	CauseInsecureContext  Cause = "insecure-context"
	CauseUnknown          Cause = "media-error"
)

// Classify maps an acquisition error to its Cause. A nil error is CauseNone.
func Classify(err error) Cause {
	switch {
	case err == nil:
		return CauseNone
	case errors.Is(err, ErrPermissionDenied):
		return CausePermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		return CauseDeviceNotFound
	case errors.Is(err, ErrDeviceBusy):
		return CauseDeviceBusy
	case errors.Is(err, ErrInsecureContext):
		return CauseInsecureContext
	default:
		return CauseUnknown
	}
}
