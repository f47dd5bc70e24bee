package media

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

func fullDevice(opts DeviceOptions) *Device {
	opts.HasCamera = true
	opts.HasMicrophone = true
	return NewDevice(opts)
}

func TestAcquireFailureCauses(t *testing.T) {
	deny := func(context.Context, Constraints) (bool, error) { return false, nil }

	cases := []struct {
		name   string
		device *Device
		secure bool
		want   Cause
	}{
		{"insecure", fullDevice(DeviceOptions{}), false, CauseInsecureContext},
		{"no camera", NewDevice(DeviceOptions{HasMicrophone: true}), true, CauseDeviceNotFound},
		{"no microphone", NewDevice(DeviceOptions{HasCamera: true}), true, CauseDeviceNotFound},
		{"denied", fullDevice(DeviceOptions{Consent: deny}), true, CausePermissionDenied},
		{"missing playback file", fullDevice(DeviceOptions{VideoFile: "does-not-exist.ivf"}), true, CauseDeviceNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := tc.device.Acquire(context.Background(), DefaultConstraints(tc.secure))
			if err == nil {
				s.Stop()
				t.Fatal("expected acquisition to fail")
			}
			if got := Classify(err); got != tc.want {
				t.Fatalf("Classify(%v)=%q, want %q", err, got, tc.want)
			}
			if tc.device.Held() {
				t.Fatal("failed acquisition left the device held")
			}
		})
	}
}

func TestDeviceIsExclusive(t *testing.T) {
	d := fullDevice(DeviceOptions{})
	ctx := context.Background()

	first, err := d.Acquire(ctx, DefaultConstraints(true))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := d.Acquire(ctx, DefaultConstraints(true)); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("second acquire: expected ErrDeviceBusy, got %v", err)
	}

	first.Stop()
	first.Stop()
	if d.Held() {
		t.Fatal("device still held after Stop")
	}

	second, err := d.Acquire(ctx, DefaultConstraints(true))
	if err != nil {
		t.Fatalf("re-acquire after stop: %v", err)
	}
	second.Stop()
}

func TestStreamTracks(t *testing.T) {
	d := fullDevice(DeviceOptions{})
	s, err := d.Acquire(context.Background(), DefaultConstraints(true))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer s.Stop()

	if len(s.AudioTracks()) != 1 || len(s.VideoTracks()) != 1 || len(s.Tracks()) != 2 {
		t.Fatalf("unexpected tracks: audio=%d video=%d", len(s.AudioTracks()), len(s.VideoTracks()))
	}

	audio := s.AudioTracks()[0]
	if !audio.Enabled() {
		t.Fatal("tracks start enabled")
	}
	if audio.Local().Kind().String() != "audio" || s.VideoTracks()[0].Local().Kind().String() != "video" {
		t.Fatal("local track kinds do not match")
	}

	audio.SetEnabled(false)
	if audio.Enabled() {
		t.Fatal("SetEnabled(false) did not disable")
	}
	if err := audio.WriteSample(pionmedia.Sample{Data: []byte{1}, Duration: time.Millisecond}); err != nil {
		t.Fatalf("write to disabled track: %v", err)
	}

	s.Stop()
	if !s.Stopped() {
		t.Fatal("stream not stopped")
	}
}

func TestClassifyWrapped(t *testing.T) {
	err := fmt.Errorf("acquire: %w", ErrDeviceBusy)
	if got := Classify(err); got != CauseDeviceBusy {
		t.Fatalf("Classify=%q", got)
	}
	if got := Classify(errors.New("driver crashed")); got != CauseUnknown {
		t.Fatalf("Classify(unknown)=%q", got)
	}
	if got := Classify(nil); got != CauseNone {
		t.Fatalf("Classify(nil)=%q", got)
	}
}

func TestValidatePlaybackFile(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.ivf")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	wrongExt := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(wrongExt, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.ivf"), empty, wrongExt, dir} {
		if err := validatePlaybackFile(path, ".ivf"); err == nil {
			t.Fatalf("validatePlaybackFile(%q) accepted an invalid file", path)
		}
	}
}

// writeIVF writes a minimal IVF file with n tiny frames at 1ms per frame.
func writeIVF(t *testing.T, n int) string {
	t.Helper()

	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:12], "VP80")
	binary.LittleEndian.PutUint16(header[12:], 64)
	binary.LittleEndian.PutUint16(header[14:], 48)
	binary.LittleEndian.PutUint32(header[16:], 1000)
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(n))

	data := header
	for i := 0; i < n; i++ {
		frame := make([]byte, 12+4)
		binary.LittleEndian.PutUint32(frame[0:], 4)
		binary.LittleEndian.PutUint64(frame[4:], uint64(i))
		copy(frame[12:], []byte{0x10, 0x02, 0x00, 0x9d})
		data = append(data, frame...)
	}

	path := filepath.Join(t.TempDir(), "clip.ivf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVideoPlaybackStopsWithStream(t *testing.T) {
	d := fullDevice(DeviceOptions{VideoFile: writeIVF(t, 5)})
	s, err := d.Acquire(context.Background(), DefaultConstraints(true))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not wait out the playback pump")
	}
	if d.Held() {
		t.Fatal("device held after Stop")
	}
}
