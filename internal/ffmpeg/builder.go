package ffmpeg

import (
	"fmt"
	"strconv"
	"time"

	"github.com/backmassage/voicediary/internal/config"
)

// Spec is the immutable encode configuration shared by every video job.
type Spec struct {
	BackgroundImage string
	Bitrate         int // AAC kbps, 64-128
	Timeout         time.Duration
	Verbose         bool // ffmpeg loglevel info instead of error
}

// NewSpec derives a Spec from cfg and validates it.
func NewSpec(cfg *config.Config) (Spec, error) {
	s := Spec{
		BackgroundImage: cfg.BackgroundImage,
		Bitrate:         cfg.AudioBitrate,
		Timeout:         cfg.ProcessingTimeout,
		Verbose:         cfg.Verbose,
	}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// Validate checks the bitrate range, the timeout and the background path.
func (s Spec) Validate() error {
	if err := config.ValidateBitrate(s.Bitrate); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidInput)
	}
	if s.BackgroundImage == "" {
		return fmt.Errorf("%w: background image not set", ErrInvalidInput)
	}
	return nil
}

// Build constructs the ffmpeg argument list (without the binary name):
// a looped still image as video, the voice message as audio, H.264
// tuned for still images at yuv420p, mono AAC at the configured bitrate, cut to
// the shorter stream, with the moov atom moved up for immediate playback.
// -y makes re-runs overwrite the deterministic output path.
func Build(spec Spec, sourcePath, outputPath string) []string {
	loglevel := "error"
	if spec.Verbose {
		loglevel = "info"
	}
	return []string{
		"-hide_banner", "-nostdin",
		"-loglevel", loglevel,
		"-y",
		"-loop", "1",
		"-i", spec.BackgroundImage,
		"-i", sourcePath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-profile:v", "baseline",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", strconv.Itoa(spec.Bitrate) + "k",
		"-ac", "1",
		"-shortest",
		"-movflags", "+faststart",
		"-max_muxing_queue_size", "1024",
		outputPath,
	}
}
