package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Kind is the media kind of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one local capture track. A disabled track stays attached to the
// peer connection but drops every sample, so the remote side sees silence
// or a frozen frame.
type Track struct {
	kind  Kind
	local *webrtc.TrackLocalStaticSample

	enabled atomic.Bool
	stopped atomic.Bool
}

func newTrack(kind Kind, streamID string) (*Track, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == KindVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}

	local, err := webrtc.NewTrackLocalStaticSample(codec, string(kind), streamID)
	if err != nil {
		return nil, err
	}
	t := &Track{kind: kind, local: local}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) Kind() Kind { return t.kind }

// Enabled reports whether samples are being forwarded.
func (t *Track) Enabled() bool { return t.enabled.Load() }

func (t *Track) SetEnabled(on bool) { t.enabled.Store(on) }

// Stop ends the track permanently.
func (t *Track) Stop() { t.stopped.Store(true) }

func (t *Track) Stopped() bool { return t.stopped.Load() }

// Local returns the track to add to a peer connection.
func (t *Track) Local() webrtc.TrackLocal { return t.local }

// WriteSample forwards s to the peer connection. Samples written to a
// disabled or stopped track are discarded.
func (t *Track) WriteSample(s pionmedia.Sample) error {
	if !t.enabled.Load() || t.stopped.Load() {
		return nil
	}
	return t.local.WriteSample(s)
}

// Stream is the result of one successful acquisition. It holds the capture
// device until Stop is called.
type Stream struct {
	ID     string
	tracks []*Track

	stopOnce sync.Once
	release  func()
}

// Tracks returns every track in the stream, audio first.
func (s *Stream) Tracks() []*Track {
	return s.tracks
}

func (s *Stream) AudioTracks() []*Track { return s.ofKind(KindAudio) }

func (s *Stream) VideoTracks() []*Track { return s.ofKind(KindVideo) }

func (s *Stream) ofKind(k Kind) []*Track {
	var out []*Track
	for _, t := range s.tracks {
		if t.kind == k {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track and releases the device. Safe to call repeatedly.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		for _, t := range s.tracks {
			t.Stop()
		}
		if s.release != nil {
			s.release()
		}
	})
}

// Stopped reports whether Stop has run.
func (s *Stream) Stopped() bool {
	for _, t := range s.tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}
