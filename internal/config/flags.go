package config

// This file registers the CLI flags shared by every subcommand and binds them
// into viper, so a flag set on the command line wins over .env, environment
// and config-file values while an unset flag falls through to them.

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBinding ties one CLI flag to its viper key.
type flagBinding struct {
	name string
	key  string
}

var flagBindings = []flagBinding{
	{"work-dir", KeyWorkDir},
	{"background", KeyBackgroundImage},
	{"transcripts-dir", KeyTranscriptsDir},
	{"mode", KeyMode},
	{"bitrate", KeyAudioBitrate},
	{"timeout", KeyProcessingTimeout},
	{"max-size", KeyMaxFileSize},
	{"retention", KeyRetention},
	{"probe", KeyProbeInputs},
	{"whisper-url", KeyWhisperURL},
	{"whisper-model", KeyWhisperModel},
	{"language", KeyWhisperLanguage},
	{"transcription-timeout", KeyTranscriptionTimeout},
	{"retries", KeyTranscriptionRetries},
	{"ledger", KeyLedgerPath},
	{"listen", KeyListenAddr},
	{"verbose", KeyVerbose},
	{"color", KeyColor},
	{"log", KeyLogFile},
}

// BindFlags registers the shared flags on fs and binds each to its viper key.
// Flag defaults are zero values on purpose: the effective defaults live in
// [NewViper] so that an unset flag never shadows an environment variable.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	// Storage
	fs.String("work-dir", "", "Work directory holding inbox/, out/ and assets/ (default /work)")
	fs.String("background", "", "Background image for video mode (default <work>/assets/bg.jpg)")
	fs.String("transcripts-dir", "", "Directory for daily Markdown journals (default <work>/transcripts)")

	// Processing
	fs.StringP("mode", "m", "", "Processing mode: video | transcription")
	fs.Int("bitrate", 0, "AAC audio bitrate in kbps (64-128, default 96)")
	fs.Int("timeout", 0, "Encode timeout in seconds (default 300)")
	fs.String("max-size", "", "Largest accepted audio file, e.g. 25MiB")
	fs.String("retention", "", "Inbox retention: always | never | on-success")
	fs.Bool("probe", true, "Verify the input has an audio stream with ffprobe")

	// Transcription
	fs.String("whisper-url", "", "Base URL of the speech-to-text service")
	fs.String("whisper-model", "", "Model name sent to the speech-to-text service")
	fs.String("language", "", "Language hint for transcription (e.g. en, ja)")
	fs.Int("transcription-timeout", 0, "Transcription request timeout in seconds (default 600)")
	fs.Int("retries", 0, "Attempts for transient transcription failures (default 3)")

	// Collaborators
	fs.String("ledger", "", "SQLite file recording processed job ids (disabled when empty)")
	fs.String("listen", "", "Intake listener address (default :8080)")

	// Display
	fs.BoolP("verbose", "v", false, "Verbose output")
	fs.String("color", "", "Color output: auto | always | never")
	fs.StringP("log", "l", "", "Append logs to file")

	for _, b := range flagBindings {
		f := fs.Lookup(b.name)
		if f == nil {
			return fmt.Errorf("flag --%s is not defined", b.name)
		}
		if err := v.BindPFlag(b.key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", b.name, err)
		}
	}
	return nil
}
