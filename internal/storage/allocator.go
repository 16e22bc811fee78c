package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/backmassage/voicediary/internal/config"
)

// jobIDPattern limits ids to characters that are safe as a file stem.
var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Allocator resolves per-job paths under the work directory.
type Allocator struct {
	fs             afero.Fs
	workDir        string
	inboxDir       string
	videoDir       string
	assetsDir      string
	transcriptsDir string
	loc            *time.Location
}

// NewAllocator returns an Allocator rooted at cfg's directories. Journal
// dates are computed in the local time zone.
func NewAllocator(fsys afero.Fs, cfg *config.Config) *Allocator {
	return &Allocator{
		fs:             fsys,
		workDir:        cfg.WorkDir,
		inboxDir:       cfg.InboxDir(),
		videoDir:       cfg.VideoDir(),
		assetsDir:      cfg.AssetsDir(),
		transcriptsDir: cfg.TranscriptsDir,
		loc:            time.Local,
	}
}

// WithLocation returns a copy of a that computes journal dates in loc.
func (a *Allocator) WithLocation(loc *time.Location) *Allocator {
	c := *a
	c.loc = loc
	return &c
}

// Fs returns the filesystem the Allocator operates on.
func (a *Allocator) Fs() afero.Fs { return a.fs }

// InboxDir returns the inbox root.
func (a *Allocator) InboxDir() string { return a.inboxDir }

// ValidateJobID rejects ids that are empty, too long or not filename-safe.
func ValidateJobID(id string) error {
	if !jobIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidJobID, id)
	}
	return nil
}

// ResolveInbox returns <inbox>/{jobID}{ext}. ext is normalized and checked
// against the audio allow-list.
func (a *Allocator) ResolveInbox(jobID, ext string) (string, error) {
	if err := ValidateJobID(jobID); err != nil {
		return "", err
	}
	e, err := NormalizeExtension(ext)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.inboxDir, jobID+e), nil
}

// ResolveOutput returns the artifact path for a job. Video mode yields
// <out>/{jobID}.mp4; transcription mode yields <transcripts>/{date}.md where
// date comes from receivedAt alone.
func (a *Allocator) ResolveOutput(jobID string, mode config.Mode, receivedAt time.Time) (string, error) {
	switch mode {
	case config.ModeVideo:
		if err := ValidateJobID(jobID); err != nil {
			return "", err
		}
		return filepath.Join(a.videoDir, jobID+".mp4"), nil
	case config.ModeTranscription:
		return filepath.Join(a.transcriptsDir, DateKey(receivedAt, a.loc)+".md"), nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

// DateKey formats t as YYYY-MM-DD in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}

// EnsureDirectories creates the inbox, output, assets and transcripts
// directories and verifies each is writable. Any failure wraps
// [ErrDirectoryUnavailable].
func (a *Allocator) EnsureDirectories() error {
	for _, dir := range []string{a.workDir, a.inboxDir, a.videoDir, a.assetsDir, a.transcriptsDir} {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDirectoryUnavailable, dir, err)
		}
		f, err := afero.TempFile(a.fs, dir, ".write-check-*")
		if err != nil {
			return fmt.Errorf("%w: %s is not writable: %v", ErrDirectoryUnavailable, dir, err)
		}
		name := f.Name()
		_ = f.Close()
		_ = a.fs.Remove(name)
	}
	return nil
}

// Cleanup deletes an inbox file unconditionally. A file that is already
// gone is not an error. Paths outside the inbox are refused.
func (a *Allocator) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	if !a.inInbox(path) {
		return fmt.Errorf("%w: %s", ErrOutsideInbox, path)
	}
	if err := a.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (a *Allocator) inInbox(path string) bool {
	rel, err := filepath.Rel(a.inboxDir, filepath.Clean(path))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// FileSize returns the size of a regular file.
func (a *Allocator) FileSize(path string) (int64, error) {
	fi, err := a.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return fi.Size(), nil
}

// WriteInbox streams r into <inbox>/{jobID}{ext} and returns the path and
// number of bytes written. At most limit+1 bytes are copied so the caller
// can detect an oversized upload without buffering it all.
func (a *Allocator) WriteInbox(jobID, ext string, r io.Reader, limit int64) (string, int64, error) {
	path, err := a.ResolveInbox(jobID, ext)
	if err != nil {
		return "", 0, err
	}
	f, err := a.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = a.fs.Remove(path)
		return "", 0, fmt.Errorf("write %s: %w", path, errors.Join(copyErr, closeErr))
	}
	return path, n, nil
}

// InboxFiles lists allow-listed audio files waiting in the inbox, sorted.
func (a *Allocator) InboxFiles() ([]string, error) {
	entries, err := afero.ReadDir(a.fs, a.inboxDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsAudioExtension(filepath.Ext(e.Name())) {
			continue
		}
		files = append(files, filepath.Join(a.inboxDir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Usage returns the total bytes stored under each managed directory.
// Missing directories report zero.
func (a *Allocator) Usage() map[string]int64 {
	usage := make(map[string]int64, 4)
	for name, dir := range map[string]string{
		"inbox":       a.inboxDir,
		"out":         a.videoDir,
		"assets":      a.assetsDir,
		"transcripts": a.transcriptsDir,
	} {
		var total int64
		_ = afero.Walk(a.fs, dir, func(_ string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.Mode().IsRegular() {
				total += info.Size()
			}
			return nil
		})
		usage[name] = total
	}
	return usage
}
