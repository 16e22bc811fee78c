package display

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/backmassage/voicediary/internal/config"
	"github.com/backmassage/voicediary/internal/term"
)

// PrintBanner writes a boxed title and a one-line settings summary to w,
// colored when the configured mode allows it.
func PrintBanner(w io.Writer, cfg *config.Config) {
	r := term.Renderer(cfg.ColorMode, w)
	box := r.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("13")).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 2)
	dim := r.NewStyle().Faint(true)

	fmt.Fprintln(w, box.Render("voicediary  ·  voice messages to video and journal"))
	fmt.Fprintln(w, dim.Render(fmt.Sprintf("mode=%s  bitrate=%dk  max=%s  work=%s",
		cfg.Mode, cfg.AudioBitrate, FormatBytes(cfg.MaxFileSize), cfg.WorkDir)))
}
