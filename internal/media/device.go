// Package media models the local capture device: an exclusively held
// source of toggle-able audio and video tracks.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Constraints describes what a caller asks the device for.
type Constraints struct {
	Audio bool
	Video bool

	// Width and Height are the ideal capture resolution.
	Width  int
	Height int

	// SecureContext must be true; capture is refused otherwise.
	SecureContext bool
}

// DefaultConstraints requests audio and 1280x720 video.
func DefaultConstraints(secure bool) Constraints {
	return Constraints{Audio: true, Video: true, Width: 1280, Height: 720, SecureContext: secure}
}

// ConsentFunc asks the user whether capture may start. Returning false
// denies permission.
type ConsentFunc func(ctx context.Context, c Constraints) (bool, error)

// AllowAll grants every request.
func AllowAll(context.Context, Constraints) (bool, error) { return true, nil }

// DeviceOptions describes the capture hardware.
type DeviceOptions struct {
	Name string

	HasMicrophone bool
	HasCamera     bool

	// VideoFile (IVF/VP8) and AudioFile (Ogg/Opus) are looped into the
	// tracks when set.
	VideoFile string
	AudioFile string

	// Consent defaults to AllowAll.
	Consent ConsentFunc
	Logger  *slog.Logger
}

// Device is a capture device that only one Stream may hold at a time.
type Device struct {
	opts DeviceOptions
	log  *slog.Logger

	mu   sync.Mutex
	held bool
}

func NewDevice(opts DeviceOptions) *Device {
	if opts.Consent == nil {
		opts.Consent = AllowAll
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{opts: opts, log: logger.With("component", "media", "device", opts.Name)}
}

// Held reports whether a Stream currently holds the device.
func (d *Device) Held() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held
}

// Acquire asks for consent and returns a Stream holding the device. The
// errors it returns classify with Classify.
func (d *Device) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if !c.SecureContext {
		return nil, ErrInsecureContext
	}
	if (c.Audio && !d.opts.HasMicrophone) || (c.Video && !d.opts.HasCamera) {
		return nil, ErrDeviceNotFound
	}
	if err := d.checkFiles(c); err != nil {
		return nil, err
	}

	ok, err := d.opts.Consent(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("consent: %w", err)
	}
	if !ok {
		return nil, ErrPermissionDenied
	}

	d.mu.Lock()
	if d.held {
		d.mu.Unlock()
		return nil, ErrDeviceBusy
	}
	d.held = true
	d.mu.Unlock()

	stream, err := d.open(c)
	if err != nil {
		d.releaseDevice()
		return nil, err
	}
	d.log.Info("Media acquired", "stream", stream.ID, "tracks", len(stream.tracks), "width", c.Width, "height", c.Height)
	return stream, nil
}

func (d *Device) checkFiles(c Constraints) error {
	if c.Video && d.opts.VideoFile != "" {
		if err := validatePlaybackFile(d.opts.VideoFile, ".ivf"); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
	}
	if c.Audio && d.opts.AudioFile != "" {
		if err := validatePlaybackFile(d.opts.AudioFile, ".ogg"); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
	}
	return nil
}

func (d *Device) open(c Constraints) (*Stream, error) {
	s := &Stream{ID: uuid.NewString()}

	if c.Audio {
		t, err := newTrack(KindAudio, s.ID)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	if c.Video {
		t, err := newTrack(KindVideo, s.ID)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var pumps sync.WaitGroup
	for _, t := range s.tracks {
		path := d.opts.AudioFile
		play := playOgg
		if t.kind == KindVideo {
			path = d.opts.VideoFile
			play = playIVF
		}
		if path == "" {
			continue
		}
		pumps.Add(1)
		go func(t *Track, path string, play func(context.Context, string, *Track) error) {
			defer pumps.Done()
			if err := play(ctx, path, t); err != nil {
				d.log.Warn("Media playback stopped", "kind", t.kind, "file", path, "error", err)
			}
		}(t, path, play)
	}

	s.release = func() {
		cancel()
		pumps.Wait()
		d.releaseDevice()
		d.log.Info("Media released", "stream", s.ID)
	}
	return s, nil
}

func (d *Device) releaseDevice() {
	d.mu.Lock()
	d.held = false
	d.mu.Unlock()
}
