package journal

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/backmassage/voicediary/internal/keylock"
	"github.com/backmassage/voicediary/internal/naming"
	"github.com/backmassage/voicediary/internal/transcribe"
)

// ErrDocumentWrite wraps any failure to read or replace a journal document.
var ErrDocumentWrite = errors.New("journal document write failed")

// Writer appends transcript segments to daily documents. It is safe for
// concurrent use; appends to one document are serialized, appends to
// different documents run in parallel.
type Writer struct {
	fs    afero.Fs
	tags  []string
	loc   *time.Location
	locks keylock.Map
}

// NewWriter returns a Writer on fsys using tags for new documents' front
// matter. Capture times are rendered in the local time zone.
func NewWriter(fsys afero.Fs, tags []string) *Writer {
	return &Writer{fs: fsys, tags: append([]string(nil), tags...), loc: time.Local}
}

// WithLocation sets the zone used for dates and heading times.
func (w *Writer) WithLocation(loc *time.Location) *Writer {
	w.loc = loc
	return w
}

// Append adds seg to the document at path, creating it with a header when
// it does not exist or is empty. The header date is seg.CapturedAt's date.
func (w *Writer) Append(seg transcribe.Segment, path string) error {
	if seg.Text == "" {
		return fmt.Errorf("%w: refusing to append an empty transcript", ErrDocumentWrite)
	}
	captured := seg.CapturedAt.In(w.loc)

	unlock := w.locks.Lock(filepath.Clean(path))
	defer unlock()

	existing, err := afero.ReadFile(w.fs, path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: read %s: %v", ErrDocumentWrite, path, err)
	}

	doc := make([]byte, 0, len(existing)+len(seg.Text)+512)
	if len(existing) == 0 {
		doc = append(doc, Header(captured, w.tags)...)
	} else {
		doc = append(doc, existing...)
	}
	doc = append(doc, Entry(captured, naming.DisplayName(seg.SourceFilename), seg.Text)...)

	if err := w.replace(path, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentWrite, err)
	}
	return nil
}

// replace writes data to a temp file beside path and renames it over path.
func (w *Writer) replace(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := afero.TempFile(w.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := w.fs.Chmod(tmpName, 0o644); err != nil {
		_ = w.fs.Remove(tmpName)
		return err
	}
	if err := w.fs.Rename(tmpName, path); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
