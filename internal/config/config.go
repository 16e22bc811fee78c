// Package config holds runtime configuration: defaults, environment and flag
// loading, and validation. Defaults match the original bot's .env settings.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// --- Enum types for validated string fields ---

// Mode selects what a received voice message becomes.
type Mode string

const (
	ModeVideo         Mode = "video"         // Static-image MP4 (default).
	ModeTranscription Mode = "transcription" // Entry in the daily Markdown journal.
)

// RetentionPolicy decides whether the downloaded inbox file is removed once
// a job finishes.
type RetentionPolicy string

const (
	CleanupAlways    RetentionPolicy = "always"     // Delete the inbox file after every job (default).
	CleanupNever     RetentionPolicy = "never"      // Keep every inbox file.
	CleanupOnSuccess RetentionPolicy = "on-success" // Delete only after success; failed inputs stay for re-runs.
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Bitrate bounds in kbps, inclusive.
const (
	MinAudioBitrate = 64
	MaxAudioBitrate = 128
)

// Config holds all runtime settings. It is populated by [DefaultConfig],
// then overlaid by [Load], and passed by pointer to packages that need it.
type Config struct {
	// Storage layout.
	WorkDir         string // Default: "/work". Inbox, out and assets live below it.
	BackgroundImage string // Default: "<work>/assets/bg.jpg".
	TranscriptsDir  string // Default: "<work>/transcripts".

	// Processing.
	Mode              Mode
	AudioBitrate      int           // kbps, 64–128. Default: 96.
	ProcessingTimeout time.Duration // Default: 300s.
	MaxFileSize       int64         // Bytes. Default: 25 MiB.
	Retention         RetentionPolicy
	ProbeInputs       bool // Default: true. Verify an audio stream with ffprobe before encoding.

	// Transcription service.
	WhisperURL           string
	WhisperModel         string // Default: "whisper-1".
	WhisperLanguage      string // Optional language hint passed through.
	TranscriptionTimeout time.Duration
	TranscriptionRetries int           // Total attempts for retryable failures. Default: 3.
	RetryDelay           time.Duration // Initial backoff between attempts. Default: 2s.
	JournalTags          []string      // Default: ["diary"].

	// Optional collaborators.
	LedgerPath string // Empty disables the processed-job ledger.
	Archive    ArchiveConfig

	// Intake listener.
	ListenAddr string // Default: ":8080".

	// Display and logging.
	Verbose   bool
	ColorMode ColorMode
	LogFile   string
}

// ArchiveConfig describes the optional S3-compatible bucket that finished
// artifacts are copied to. An empty Endpoint disables archiving.
type ArchiveConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Enabled reports whether an archive endpoint is configured.
func (a ArchiveConfig) Enabled() bool { return a.Endpoint != "" }

// DefaultConfig returns a Config with the original bot's defaults.
func DefaultConfig() Config {
	const workDir = "/work"
	return Config{
		WorkDir:              workDir,
		BackgroundImage:      filepath.Join(workDir, "assets", "bg.jpg"),
		TranscriptsDir:       filepath.Join(workDir, "transcripts"),
		Mode:                 ModeVideo,
		AudioBitrate:         96,
		ProcessingTimeout:    300 * time.Second,
		MaxFileSize:          25 * 1024 * 1024,
		Retention:            CleanupAlways,
		ProbeInputs:          true,
		WhisperModel:         "whisper-1",
		TranscriptionTimeout: 600 * time.Second,
		TranscriptionRetries: 3,
		RetryDelay:           2 * time.Second,
		JournalTags:          []string{"diary"},
		ListenAddr:           ":8080",
		ColorMode:            ColorAuto,
	}
}

// InboxDir is where downloaded attachments wait for processing.
func (c *Config) InboxDir() string { return filepath.Join(c.WorkDir, "inbox") }

// VideoDir is where finished MP4 files are written.
func (c *Config) VideoDir() string { return filepath.Join(c.WorkDir, "out") }

// AssetsDir holds the background image and other static inputs.
func (c *Config) AssetsDir() string { return filepath.Join(c.WorkDir, "assets") }

// Validate checks enum fields and numeric ranges. It runs before any job is
// accepted, so a bad bitrate never reaches the encoder.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeVideo, ModeTranscription:
		// valid
	default:
		return fmt.Errorf("invalid mode %q (use 'video' or 'transcription')", c.Mode)
	}

	switch c.Retention {
	case CleanupAlways, CleanupNever, CleanupOnSuccess:
		// valid
	default:
		return fmt.Errorf("invalid retention policy %q (use 'always', 'never' or 'on-success')", c.Retention)
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return fmt.Errorf("invalid color mode %q (use 'auto', 'always' or 'never')", c.ColorMode)
	}

	if err := ValidateBitrate(c.AudioBitrate); err != nil {
		return err
	}
	if c.ProcessingTimeout <= 0 {
		return errors.New("processing timeout must be positive")
	}
	if c.MaxFileSize <= 0 {
		return errors.New("max file size must be positive")
	}
	if strings.TrimSpace(c.WorkDir) == "" {
		return errors.New("work directory must not be empty")
	}

	if c.TranscriptionTimeout <= 0 {
		return errors.New("transcription timeout must be positive")
	}
	if c.TranscriptionRetries < 1 || c.TranscriptionRetries > 10 {
		return fmt.Errorf("transcription retries must be between 1 and 10, got %d", c.TranscriptionRetries)
	}
	if c.RetryDelay < 0 {
		return errors.New("retry delay must not be negative")
	}
	if c.Mode == ModeTranscription && strings.TrimSpace(c.WhisperURL) == "" {
		return errors.New("transcription mode needs WHISPER_API_URL")
	}

	if c.Archive.Enabled() && c.Archive.Bucket == "" {
		return errors.New("archive endpoint set but ARCHIVE_BUCKET is empty")
	}
	return nil
}

// ValidateBitrate rejects audio bitrates outside 64–128 kbps.
func ValidateBitrate(kbps int) error {
	if kbps < MinAudioBitrate || kbps > MaxAudioBitrate {
		return fmt.Errorf("audio bitrate must be between %d and %d kbps, got %d",
			MinAudioBitrate, MaxAudioBitrate, kbps)
	}
	return nil
}

// ParseMode converts user input into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video", "":
		return ModeVideo, nil
	case "transcription", "transcribe":
		return ModeTranscription, nil
	default:
		return "", fmt.Errorf("invalid mode %q (use 'video' or 'transcription')", s)
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}
