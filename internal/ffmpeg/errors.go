package ffmpeg

import (
	"errors"
	"regexp"
)

// Sentinel errors carried in [Result.Err]. Callers classify with errors.Is.
var (
	ErrInvalidInput  = errors.New("invalid conversion input")
	ErrCorruptOutput = errors.New("encoder produced no usable output")
	ErrTimeout       = errors.New("encode timed out")
	ErrInterrupted   = errors.New("encode interrupted")
	ErrNonZeroExit   = errors.New("encoder exited with an error")
)

// stderrTailLimit bounds how much of ffmpeg's diagnostic output is kept.
const stderrTailLimit = 4096

// Pre-compiled regexes for classifying ffmpeg stderr into a short hint for
// log lines. Checked in order; the first match wins.
var stderrHints = []struct {
	re   *regexp.Regexp
	hint string
}{
	{regexp.MustCompile(`(?i)Invalid data found when processing input|could not find codec parameters`),
		"input is not decodable audio"},
	{regexp.MustCompile(`(?i)Output file #0 does not contain any stream|matches no streams`),
		"input has no audio stream"},
	{regexp.MustCompile(`(?i)Unknown encoder|Encoder .* not found`),
		"ffmpeg build lacks libx264 or aac"},
	{regexp.MustCompile(`Too many packets buffered for output stream`),
		"mux queue overflow"},
	{regexp.MustCompile(`(?i)No space left on device`),
		"disk full"},
	{regexp.MustCompile(`(?i)Permission denied|Read-only file system`),
		"output not writable"},
}

// Hint returns a short human description of an ffmpeg failure based on its
// stderr, or "" when nothing recognizable was printed.
func Hint(stderr string) string {
	for _, h := range stderrHints {
		if h.re.MatchString(stderr) {
			return h.hint
		}
	}
	return ""
}

// tail returns at most the last limit bytes of s, cut at a line boundary
// when one is available.
func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	t := s[len(s)-limit:]
	for i := 0; i < len(t); i++ {
		if t[i] == '\n' && i+1 < len(t) {
			return t[i+1:]
		}
	}
	return t
}
