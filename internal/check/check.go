// Package check provides system diagnostics (the check command) and the
// startup dependency validation (CheckDeps) for ffmpeg, ffprobe, libx264,
// AAC, the background image and the transcription endpoint.
package check

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/backmassage/voicediary/internal/config"
	"github.com/backmassage/voicediary/internal/ffmpeg"
	"github.com/backmassage/voicediary/internal/storage"
)

// Sentinel errors returned by CheckDeps when a required tool or encoder is missing.
var (
	ErrFfmpegNotFound     = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound    = errors.New("ffprobe not found on PATH")
	ErrH264EncodeFailed   = errors.New("libx264 test encode failed")
	ErrAACEncodeFailed    = errors.New("AAC test encode failed")
	ErrBackgroundMissing  = errors.New("background image not found")
	ErrWhisperUnreachable = errors.New("transcription endpoint unreachable")
)

// Logger is the minimal logging interface needed by RunCheck.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

// Counter reports how many jobs the ledger holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Checker runs the probes. Runner and Fs are required; the rest are
// optional and skipped when nil.
type Checker struct {
	Runner    ffmpeg.Runner
	Fs        afero.Fs
	HTTP      *http.Client
	Allocator *storage.Allocator
	Ledger    Counter
	LookPath  func(string) (string, error)
}

// New returns a Checker using go-execute for processes and exec.LookPath.
func New(fsys afero.Fs) *Checker {
	return &Checker{
		Runner:   ffmpeg.ExecRunner{},
		Fs:       fsys,
		HTTP:     &http.Client{Timeout: 5 * time.Second},
		LookPath: exec.LookPath,
	}
}

// RunCheck prints the availability of every dependency and returns how
// many checks failed. It never stops early.
func (c *Checker) RunCheck(ctx context.Context, cfg *config.Config, log Logger) int {
	log.Info("=== System Check ===")

	failures := 0
	fail := func(err error) {
		if err != nil {
			log.Error("%v", err)
			failures++
		}
	}

	fail(c.checkFfmpeg(ctx, log))
	fail(c.checkFfprobe(log))
	fail(c.reportTest(ctx, log, "libx264", h264TestArgs(), ErrH264EncodeFailed))
	fail(c.reportTest(ctx, log, "AAC", aacTestArgs(cfg.AudioBitrate), ErrAACEncodeFailed))
	fail(c.checkBackground(cfg, log))
	fail(c.checkWhisper(ctx, cfg, log))
	c.reportStorage(ctx, log)
	return failures
}

// CheckDeps is the startup validation. In video mode ffmpeg must be on
// PATH and able to encode H.264 and AAC; ffprobe is required only when
// input probing is enabled. Transcription mode needs no local tools.
func (c *Checker) CheckDeps(ctx context.Context, cfg *config.Config) error {
	if cfg.Mode != config.ModeVideo {
		return nil
	}
	if _, err := c.LookPath("ffmpeg"); err != nil {
		return ErrFfmpegNotFound
	}
	if cfg.ProbeInputs {
		if _, err := c.LookPath("ffprobe"); err != nil {
			return ErrFfprobeNotFound
		}
	}
	if !c.runOK(ctx, h264TestArgs()) {
		return ErrH264EncodeFailed
	}
	if !c.runOK(ctx, aacTestArgs(cfg.AudioBitrate)) {
		return ErrAACEncodeFailed
	}
	return nil
}

// checkFfmpeg verifies ffmpeg is on PATH and logs its version string.
func (c *Checker) checkFfmpeg(ctx context.Context, log Logger) error {
	if _, err := c.LookPath("ffmpeg"); err != nil {
		return ErrFfmpegNotFound
	}
	res, err := c.Runner.Run(ctx, "ffmpeg", []string{"-version"})
	if err != nil || res.ExitCode != 0 {
		log.Warn("ffmpeg found but -version failed")
		return nil
	}
	firstLine := strings.TrimSpace(res.Stdout)
	if idx := strings.Index(firstLine, "\n"); idx > 0 {
		firstLine = firstLine[:idx]
	}
	log.Success("ffmpeg: %s", firstLine)
	return nil
}

func (c *Checker) checkFfprobe(log Logger) error {
	path, err := c.LookPath("ffprobe")
	if err != nil {
		return ErrFfprobeNotFound
	}
	log.Success("ffprobe: %s", path)
	return nil
}

func (c *Checker) reportTest(ctx context.Context, log Logger, label string, args []string, failErr error) error {
	log.Info("Testing %s encoder...", label)
	if !c.runOK(ctx, args) {
		return failErr
	}
	log.Success("%s encoder works", label)
	return nil
}

func (c *Checker) checkBackground(cfg *config.Config, log Logger) error {
	fi, err := c.Fs.Stat(cfg.BackgroundImage)
	if err != nil || fi.Size() == 0 {
		if cfg.Mode != config.ModeVideo {
			log.Warn("Background image %s missing (only needed in video mode)", cfg.BackgroundImage)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrBackgroundMissing, cfg.BackgroundImage)
	}
	log.Success("Background image: %s (%s)", cfg.BackgroundImage, humanize.IBytes(uint64(fi.Size())))
	return nil
}

// checkWhisper treats any HTTP response as reachable; only transport
// errors count as failures.
func (c *Checker) checkWhisper(ctx context.Context, cfg *config.Config, log Logger) error {
	if cfg.WhisperURL == "" {
		log.Info("Transcription endpoint not configured")
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.WhisperURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWhisperUnreachable, err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if cfg.Mode == config.ModeTranscription {
			return fmt.Errorf("%w: %v", ErrWhisperUnreachable, err)
		}
		log.Warn("Transcription endpoint %s unreachable: %v", cfg.WhisperURL, err)
		return nil
	}
	resp.Body.Close()
	log.Success("Transcription endpoint %s answered %d", cfg.WhisperURL, resp.StatusCode)
	return nil
}

func (c *Checker) reportStorage(ctx context.Context, log Logger) {
	if c.Allocator != nil {
		usage := c.Allocator.Usage()
		names := make([]string, 0, len(usage))
		for name := range usage {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + "=" + humanize.IBytes(uint64(usage[name]))
		}
		log.Info("Storage: %s", strings.Join(parts, " "))

		files, err := c.Allocator.InboxFiles()
		if err != nil {
			log.Warn("Inbox unreadable: %v", err)
		} else {
			log.Info("Inbox: %d voice message(s) waiting, accepted %s",
				len(files), strings.Join(storage.AudioExtensions(), " "))
		}
	}
	if c.Ledger != nil {
		n, err := c.Ledger.Count(ctx)
		if err != nil {
			log.Warn("Ledger unreadable: %v", err)
			return
		}
		log.Info("Ledger: %d processed job(s)", n)
	}
}

// --- internal helpers ---

// h264TestArgs encodes a tenth of a second of a still frame the way the
// converter does.
func h264TestArgs() []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=black:s=256x256:d=0.1",
		"-c:v", "libx264", "-tune", "stillimage", "-pix_fmt", "yuv420p",
		"-f", "null", "-",
	}
}

func aacTestArgs(kbps int) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "sine=frequency=1000:duration=0.1",
		"-c:a", "aac", "-b:a", strconv.Itoa(kbps) + "k", "-ac", "1",
		"-f", "null", "-",
	}
}

// runOK runs ffmpeg and reports whether it exited with status 0.
func (c *Checker) runOK(ctx context.Context, args []string) bool {
	res, err := c.Runner.Run(ctx, "ffmpeg", args)
	return err == nil && res.ExitCode == 0
}
