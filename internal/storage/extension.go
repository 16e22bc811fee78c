package storage

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// Supported audio file extensions (lowercase, with leading dot).
var audioExtensions = map[string]bool{
	".aac":  true,
	".amr":  true,
	".flac": true,
	".m4a":  true,
	".mp3":  true,
	".oga":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".weba": true,
	".webm": true,
	".wma":  true,
}

// AudioExtensions returns the allow-list in sorted order.
func AudioExtensions() []string {
	out := make([]string, 0, len(audioExtensions))
	for ext := range audioExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// IsAudioExtension reports whether ext (any case, with or without the dot)
// is on the allow-list.
func IsAudioExtension(ext string) bool {
	_, err := NormalizeExtension(ext)
	return err == nil
}

// NormalizeExtension lower-cases ext, adds a leading dot and checks the
// allow-list.
func NormalizeExtension(ext string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(ext))
	if e != "" && !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	if !audioExtensions[e] {
		return "", fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
	}
	return e, nil
}

// DetectExtension returns the allow-listed extension for a downloaded file.
// The original filename's extension wins; when it has none, the extension
// is sniffed from the content at path.
func DetectExtension(fs afero.Fs, path, originalFilename string) (string, error) {
	if ext := filepath.Ext(originalFilename); ext != "" {
		return NormalizeExtension(ext)
	}

	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ext, err := SniffExtension(f)
	if err != nil {
		return "", fmt.Errorf("sniff %s: %w", path, err)
	}
	return ext, nil
}

// SniffExtension derives an allow-listed extension from the leading bytes
// of r.
func SniffExtension(r io.Reader) (string, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	// Ogg containers are reported as .oga; keep the common .ogg spelling.
	if mt.Is("audio/ogg") {
		return ".ogg", nil
	}
	if mt.Extension() == "" {
		return "", fmt.Errorf("%w: content type %s", ErrInvalidExtension, mt.String())
	}
	return NormalizeExtension(mt.Extension())
}
