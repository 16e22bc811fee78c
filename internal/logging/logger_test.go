package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/voicediary/internal/config"
)

func TestNew_NoFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	l, err := New(&cfg)
	require.NoError(t, err)
	defer l.Close()
	l.Info("test message")
}

func TestNew_WithFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	cfg.LogFile = filepath.Join(dir, "logs", "voicediary.log")

	l, err := New(&cfg)
	require.NoError(t, err)
	l.Success("wrote %s", "clip.mp4")
	require.NoError(t, l.Close())

	b, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "SUCCESS")
	assert.Contains(t, string(b), "wrote clip.mp4")
	assert.NotContains(t, string(b), "\x1b[", "file sink must be uncolored")
}

func TestNewWriter_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, false)

	l.Info("info %d", 1)
	l.Warn("warn")
	l.Error("error")
	l.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "info 1")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "ERROR")
	assert.NotContains(t, out, "hidden")
}

func TestNewWriter_VerboseShowsDebug(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, true).Debug("ffmpeg args: %v", []string{"-y"})
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "ffmpeg args: [-y]")
}

func TestClose_Idempotent(t *testing.T) {
	l := Nop()
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}
