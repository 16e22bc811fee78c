// Package logging provides the leveled printf-style logger used across the
// service. Console output goes through charmbracelet/log with a resolved
// color profile; an optional log file receives the same lines uncolored.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"

	"github.com/backmassage/voicediary/internal/config"
	"github.com/backmassage/voicediary/internal/term"
)

// SuccessLevel sits between info and warn so it is shown whenever info is.
const SuccessLevel = log.InfoLevel + 1

const timeFormat = "2006-01-02 15:04:05"

// Logger provides leveled, optionally colored logging with an optional file
// sink. The zero value is not usable; construct with [New] or [NewWriter].
type Logger struct {
	console *log.Logger
	file    *log.Logger
	closer  io.Closer
}

// New builds a console logger honoring cfg.ColorMode and cfg.Verbose and,
// when cfg.LogFile is set, appends to that file. Call Close when done.
func New(cfg *config.Config) (*Logger, error) {
	l := &Logger{
		console: newCharm(os.Stderr, term.Profile(cfg.ColorMode, os.Stderr), cfg.Verbose),
	}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = newCharm(f, termenv.Ascii, cfg.Verbose)
		l.closer = f
	}
	return l, nil
}

// NewWriter returns an uncolored logger writing to w. Used by tests and by
// commands that capture output.
func NewWriter(w io.Writer, verbose bool) *Logger {
	return &Logger{console: newCharm(w, termenv.Ascii, verbose)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger { return NewWriter(io.Discard, false) }

func newCharm(w io.Writer, profile termenv.Profile, verbose bool) *log.Logger {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Level:           log.InfoLevel,
	})
	if verbose {
		lg.SetLevel(log.DebugLevel)
	}
	lg.SetColorProfile(profile)
	lg.SetStyles(styles())
	return lg
}

// styles extends the default level badges with SUCCESS.
func styles() *log.Styles {
	s := log.DefaultStyles()
	s.Levels[SuccessLevel] = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))
	labels := map[log.Level]string{
		log.DebugLevel: "DEBUG",
		log.InfoLevel:  "INFO",
		SuccessLevel:   "SUCCESS",
		log.WarnLevel:  "WARN",
		log.ErrorLevel: "ERROR",
	}
	// Default badges are truncated to four characters.
	for level, label := range labels {
		s.Levels[level] = s.Levels[level].SetString(label).MaxWidth(len(label))
	}
	return s
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	l.file = nil
	return err
}

func (l *Logger) logf(level log.Level, format string, args ...interface{}) {
	format = strings.TrimRight(format, "\n")
	l.console.Logf(level, format, args...)
	if l.file != nil {
		l.file.Logf(level, format, args...)
	}
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) { l.logf(log.InfoLevel, format, args...) }

// Success logs at SUCCESS level.
func (l *Logger) Success(format string, args ...interface{}) { l.logf(SuccessLevel, format, args...) }

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) { l.logf(log.WarnLevel, format, args...) }

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...interface{}) { l.logf(log.ErrorLevel, format, args...) }

// Debug logs at DEBUG level; dropped unless the logger was built verbose.
func (l *Logger) Debug(format string, args ...interface{}) { l.logf(log.DebugLevel, format, args...) }
