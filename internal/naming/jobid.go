package naming

import (
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	maxIDLength = 64
	// Room for "-" and eight hex digits of the path hash.
	maxStemLength = maxIDLength - 9
)

var (
	reUnsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	reDashRuns      = regexp.MustCompile(`-{2,}`)
)

// NewJobID returns a random id for uploads that carry no source message id.
func NewJobID() string { return uuid.NewString() }

// JobID returns a stable id for a local file: its sanitized stem followed
// by eight hex digits of a name-based UUID of the absolute path. Files that
// share a stem, or whose stems sanitize to the same text, still get
// distinct ids. When the stem has no usable characters the full UUID is
// the id.
func JobID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.ToSlash(filepath.Clean(path))
	sum := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path))

	base := filepath.Base(path)
	stem := SanitizeID(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		return sum.String()
	}
	if len(stem) > maxStemLength {
		stem = strings.TrimRight(stem[:maxStemLength], ".-_")
	}
	return stem + "-" + hex.EncodeToString(sum[:4])
}

// SanitizeID maps raw into the job id alphabet. It returns "" when raw has
// no usable characters.
func SanitizeID(raw string) string {
	id := reUnsafeIDChars.ReplaceAllString(strings.TrimSpace(raw), "-")
	id = reDashRuns.ReplaceAllString(id, "-")
	if len(id) > maxIDLength {
		id = id[:maxIDLength]
	}
	return strings.Trim(id, ".-_")
}
