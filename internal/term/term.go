// Package term resolves the configured color mode into a terminal color
// profile shared by logging and display.
//
// Auto mode enables colors only when the writer is a TTY, NO_COLOR is unset
// (https://no-color.org) and TERM is not "dumb".
package term

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/backmassage/voicediary/internal/config"
)

// Profile returns the color profile to use for w under mode.
func Profile(mode config.ColorMode, w io.Writer) termenv.Profile {
	switch mode {
	case config.ColorAlways:
		return termenv.ANSI256
	case config.ColorNever:
		return termenv.Ascii
	default: // ColorAuto
		if strings.ToLower(os.Getenv("TERM")) == "dumb" {
			return termenv.Ascii
		}
		return termenv.NewOutput(w).EnvColorProfile()
	}
}

// Renderer returns a lipgloss renderer for w with the resolved profile.
func Renderer(mode config.ColorMode, w io.Writer) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(Profile(mode, w))
	return r
}
