package mirror

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

type fileEntry struct {
	rel     string
	modTime Timestamp
}

// ScanLocal walks root and returns every regular file not excluded by m.
// Excluded directories are not descended into.
func ScanLocal(fsys afero.Fs, root string, m *IgnoreMatcher) (FileMap, error) {
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("local scan failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local scan failed: %s is not a directory", root)
	}

	entries, err := scanLocalDir(fsys, root, "", m)
	if err != nil {
		return nil, fmt.Errorf("local scan failed: %w", err)
	}

	state := make(FileMap, len(entries))
	for _, e := range entries {
		state[e.rel] = e.modTime
	}
	return state, nil
}

func scanLocalDir(fsys afero.Fs, root, relDir string, m *IgnoreMatcher) ([]fileEntry, error) {
	dir := filepath.Join(root, filepath.FromSlash(relDir))
	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var entries []fileEntry
	for _, info := range infos {
		rel := path.Join(relDir, info.Name())
		if m.Ignored(rel) {
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			// follow links like a stat would
			target, err := fsys.Stat(filepath.Join(dir, info.Name()))
			if err != nil {
				continue
			}
			info = target
		}

		switch {
		case info.IsDir():
			sub, err := scanLocalDir(fsys, root, rel, m)
			if err != nil {
				return nil, err
			}
			entries = append(entries, sub...)
		case info.Mode().IsRegular():
			if isTempFile(info.Name()) {
				continue
			}
			entries = append(entries, fileEntry{rel: rel, modTime: FormatTimestamp(info.ModTime())})
		}
	}
	return entries, nil
}
