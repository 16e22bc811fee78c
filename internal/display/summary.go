package display

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/backmassage/voicediary/internal/config"
	"github.com/backmassage/voicediary/internal/pipeline"
	"github.com/backmassage/voicediary/internal/term"
)

var kindMessages = map[pipeline.ErrorKind]string{
	pipeline.KindFileTooLarge:                    "the voice message is too large",
	pipeline.KindInvalidExtension:                "that audio format is not supported",
	pipeline.KindInvalidConversionInput:          "the audio could not be read",
	pipeline.KindTranscriptionRequestRejected:    "the transcription service rejected the audio",
	pipeline.KindEmptyTranscript:                 "no speech was recognized",
	pipeline.KindCorruptOutput:                   "the encoder produced no video",
	pipeline.KindProcessTimeout:                  "the conversion took too long",
	pipeline.KindProcessNonZeroExit:              "the encoder failed",
	pipeline.KindDirectoryUnavailable:            "storage is unavailable",
	pipeline.KindDocumentWriteFailed:             "the journal could not be updated",
	pipeline.KindTranscriptionServiceUnavailable: "transcription is unreachable right now, re-upload later",
}

// Summary returns the one-line message shown to the sender of a voice
// message. Failures lead with their category.
func Summary(r pipeline.Result) string {
	if r.Success {
		var s string
		if r.DocumentPath != "" {
			s = fmt.Sprintf("Added to journal %s", r.Date)
		} else {
			s = fmt.Sprintf("Video ready: %s", filepath.Base(r.OutputPath))
		}
		if r.Duplicate {
			s += " (already processed)"
		}
		return s
	}

	msg, ok := kindMessages[r.ErrorKind]
	if !ok {
		msg = "something went wrong"
	}
	category := r.Category().String()
	return strings.ToUpper(category[:1]) + category[1:] + ": " + msg
}

// PrintRunSummary writes the closing lines of a batch run to w.
func PrintRunSummary(w io.Writer, cfg *config.Config, s pipeline.RunStats) {
	r := term.Renderer(cfg.ColorMode, w)
	ok := r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	bad := r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dim := r.NewStyle().Faint(true)

	line := fmt.Sprintf("%d job(s): %s, %s", s.Total,
		ok.Render(fmt.Sprintf("%d succeeded", s.Succeeded)),
		bad.Render(fmt.Sprintf("%d failed", s.Failed)))
	if s.Duplicates > 0 {
		line += fmt.Sprintf(", %d already processed", s.Duplicates)
	}
	if n := s.Skipped(); n > 0 {
		line += fmt.Sprintf(", %d not started", n)
	}
	fmt.Fprintln(w, line)

	if s.Failed > 0 {
		var parts []string
		for _, c := range []pipeline.Category{pipeline.CategoryInput, pipeline.CategoryProcessing, pipeline.CategoryUnavailable} {
			if n := s.ByCategory[c]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s: %d", c, n))
			}
		}
		fmt.Fprintln(w, dim.Render("  "+strings.Join(parts, ", ")))
	}
	fmt.Fprintln(w, dim.Render(fmt.Sprintf("  in %s, out %s, %s",
		FormatBytes(s.TotalInputBytes), FormatBytes(s.TotalOutputBytes), FormatElapsed(s.Elapsed))))
}
