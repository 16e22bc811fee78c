package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Keys shared by the environment (upper-cased), the YAML config file and the
// CLI flag bindings.
const (
	KeyWorkDir              = "work_dir"
	KeyBackgroundImage      = "background_image"
	KeyTranscriptsDir       = "transcription_output_dir"
	KeyMode                 = "bot_mode"
	KeyAudioBitrate         = "audio_bitrate"
	KeyProcessingTimeout    = "processing_timeout"
	KeyMaxFileSize          = "max_file_size"
	KeyRetention            = "retention_policy"
	KeyProbeInputs          = "probe_inputs"
	KeyWhisperURL           = "whisper_api_url"
	KeyWhisperModel         = "whisper_model"
	KeyWhisperLanguage      = "whisper_language"
	KeyTranscriptionTimeout = "transcription_timeout"
	KeyTranscriptionRetries = "transcription_retries"
	KeyRetryDelay           = "transcription_retry_delay"
	KeyJournalTags          = "journal_tags"
	KeyLedgerPath           = "ledger_path"
	KeyArchiveEndpoint      = "archive_endpoint"
	KeyArchiveBucket        = "archive_bucket"
	KeyArchiveAccessKey     = "archive_access_key"
	KeyArchiveSecretKey     = "archive_secret_key"
	KeyArchiveUseSSL        = "archive_use_ssl"
	KeyListenAddr           = "listen_addr"
	KeyVerbose              = "verbose"
	KeyColor                = "color"
	KeyLogFile              = "log_file"
)

// NewViper returns a viper instance seeded with [DefaultConfig] values and
// reading matching environment variables (WORK_DIR, AUDIO_BITRATE, ...).
func NewViper() *viper.Viper {
	d := DefaultConfig()
	v := viper.New()

	v.SetDefault(KeyWorkDir, d.WorkDir)
	v.SetDefault(KeyMode, string(d.Mode))
	v.SetDefault(KeyAudioBitrate, d.AudioBitrate)
	v.SetDefault(KeyProcessingTimeout, int(d.ProcessingTimeout/time.Second))
	v.SetDefault(KeyMaxFileSize, fmt.Sprint(d.MaxFileSize))
	v.SetDefault(KeyRetention, string(d.Retention))
	v.SetDefault(KeyProbeInputs, d.ProbeInputs)
	v.SetDefault(KeyWhisperModel, d.WhisperModel)
	v.SetDefault(KeyTranscriptionTimeout, int(d.TranscriptionTimeout/time.Second))
	v.SetDefault(KeyTranscriptionRetries, d.TranscriptionRetries)
	v.SetDefault(KeyRetryDelay, int(d.RetryDelay/time.Second))
	v.SetDefault(KeyJournalTags, strings.Join(d.JournalTags, ","))
	v.SetDefault(KeyListenAddr, d.ListenAddr)
	v.SetDefault(KeyColor, string(d.ColorMode))

	v.AutomaticEnv()
	return v
}

// Load overlays a .env file, an optional YAML config file and the process
// environment onto the defaults and returns the resulting Config. Flags
// bound with [BindFlags] take precedence over everything else. A missing
// envFile is not an error; a missing configFile is.
func Load(v *viper.Viper, envFile, configFile string) (Config, error) {
	if envFile != "" {
		// godotenv never overrides variables already present in the environment.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	return fromViper(v)
}

// fromViper converts resolved viper values into a Config. Paths that default
// relative to WORK_DIR are derived after WORK_DIR itself is known.
func fromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	cfg.WorkDir = NormalizeDirArg(v.GetString(KeyWorkDir))
	cfg.BackgroundImage = v.GetString(KeyBackgroundImage)
	if cfg.BackgroundImage == "" {
		cfg.BackgroundImage = filepath.Join(cfg.AssetsDir(), "bg.jpg")
	}
	cfg.TranscriptsDir = NormalizeDirArg(v.GetString(KeyTranscriptsDir))
	if cfg.TranscriptsDir == "" {
		cfg.TranscriptsDir = filepath.Join(cfg.WorkDir, "transcripts")
	}

	mode, err := ParseMode(v.GetString(KeyMode))
	if err != nil {
		return Config{}, err
	}
	cfg.Mode = mode

	cfg.AudioBitrate = v.GetInt(KeyAudioBitrate)
	cfg.ProcessingTimeout = time.Duration(v.GetInt(KeyProcessingTimeout)) * time.Second

	size, err := ParseSize(v.GetString(KeyMaxFileSize))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxFileSize = size

	cfg.Retention = RetentionPolicy(strings.ToLower(strings.TrimSpace(v.GetString(KeyRetention))))
	cfg.ProbeInputs = v.GetBool(KeyProbeInputs)

	cfg.WhisperURL = strings.TrimRight(v.GetString(KeyWhisperURL), "/")
	cfg.WhisperModel = v.GetString(KeyWhisperModel)
	cfg.WhisperLanguage = v.GetString(KeyWhisperLanguage)
	cfg.TranscriptionTimeout = time.Duration(v.GetInt(KeyTranscriptionTimeout)) * time.Second
	cfg.TranscriptionRetries = v.GetInt(KeyTranscriptionRetries)
	cfg.RetryDelay = time.Duration(v.GetInt(KeyRetryDelay)) * time.Second
	cfg.JournalTags = splitList(v.GetString(KeyJournalTags))

	cfg.LedgerPath = v.GetString(KeyLedgerPath)
	cfg.Archive = ArchiveConfig{
		Endpoint:  v.GetString(KeyArchiveEndpoint),
		Bucket:    v.GetString(KeyArchiveBucket),
		AccessKey: v.GetString(KeyArchiveAccessKey),
		SecretKey: v.GetString(KeyArchiveSecretKey),
		UseSSL:    v.GetBool(KeyArchiveUseSSL),
	}

	cfg.ListenAddr = v.GetString(KeyListenAddr)
	cfg.Verbose = v.GetBool(KeyVerbose)
	cfg.ColorMode = ColorMode(strings.ToLower(v.GetString(KeyColor)))
	cfg.LogFile = v.GetString(KeyLogFile)
	return cfg, nil
}

// ParseSize accepts plain byte counts ("26214400") and human sizes
// ("25MiB", "25 MB").
func ParseSize(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("max file size must not be empty")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid max file size %q: %w", raw, err)
	}
	return int64(n), nil
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
