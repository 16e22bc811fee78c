package naming

import (
	"path/filepath"
	"strings"
	"unicode"
)

const fallbackDisplayName = "voice-message"

// DisplayName cleans an attachment file name for use in a journal heading:
// directories are dropped, control characters and line breaks become
// spaces, whitespace runs collapse and leading '#' is removed so the name
// can never start a Markdown heading of its own.
func DisplayName(original string) string {
	name := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	if name == "." || name == "/" {
		return fallbackDisplayName
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")
	name = strings.TrimLeft(name, "# ")
	if name == "" {
		return fallbackDisplayName
	}
	return name
}
