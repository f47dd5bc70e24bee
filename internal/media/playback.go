package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const oggPageDuration = 20 * time.Millisecond

// validatePlaybackFile checks that path is a readable, non-empty regular
// file with the expected extension.
func validatePlaybackFile(path, ext string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: file does not exist", path)
		}
		return fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return fmt.Errorf("%s: is a directory", path)
	}
	if stat.Size() == 0 {
		return fmt.Errorf("%s: file is empty", path)
	}
	if !strings.EqualFold(filepath.Ext(abs), ext) {
		return fmt.Errorf("%s: expected a %s file", path, ext)
	}

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	return f.Close()
}

// playIVF loops the VP8 frames of an IVF file into t until ctx is done.
func playIVF(ctx context.Context, path string, t *Track) error {
	for {
		n, err := playIVFOnce(ctx, path, t)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s: no media to play", path)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func playIVFOnce(ctx context.Context, path string, t *Track) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		return 0, err
	}
	if header.TimebaseDenominator == 0 {
		return 0, fmt.Errorf("%s: zero timebase", path)
	}
	frameDuration := time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	n := 0
	for {
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		if err := t.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return n, err
		}

		n++
		select {
		case <-ctx.Done():
			return n, nil
		case <-ticker.C:
		}
	}
}

// playOgg loops the Opus pages of an Ogg file into t until ctx is done.
func playOgg(ctx context.Context, path string, t *Track) error {
	for {
		n, err := playOggOnce(ctx, path, t)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s: no media to play", path)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func playOggOnce(ctx context.Context, path string, t *Track) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return 0, err
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	n := 0
	for {
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples)/48000*1000) * time.Millisecond

		if err := t.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			return n, err
		}

		n++
		select {
		case <-ctx.Done():
			return n, nil
		case <-ticker.C:
		}
	}
}
