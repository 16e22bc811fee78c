package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/backmassage/voicediary/internal/storage"
)

// Discover expands paths into the audio files to process. Directories are
// walked recursively, keeping allow-listed audio extensions and pruning
// hidden directories. Files named explicitly are kept whatever their
// extension so the controller can reject them with a proper error. The
// result is de-duplicated and sorted for a deterministic order.
func Discover(fsys afero.Fs, paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range paths {
		fi, err := fsys.Stat(root)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			add(root)
			continue
		}
		err = afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if path != root && strings.HasPrefix(info.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if storage.IsAudioExtension(filepath.Ext(path)) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}
