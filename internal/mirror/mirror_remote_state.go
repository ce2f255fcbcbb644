package mirror

import (
	"fmt"
	"log/slog"
	"path"

	"github.com/jlaffaye/ftp"
	"github.com/openmined/ftpmirror/internal/ftpclient"
)

// ScanRemote lists root recursively and returns every file not excluded by m.
// Directories the server refuses to list (5xx) are logged and skipped; a missing root
// therefore yields an empty map. Any other error aborts the scan.
func ScanRemote(s *ftpclient.Session, root string, m *IgnoreMatcher, logger *slog.Logger) (FileMap, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := scanRemoteDir(s, root, "", m, logger)
	if err != nil {
		return nil, fmt.Errorf("remote scan failed: %w", err)
	}

	state := make(FileMap, len(entries))
	for _, e := range entries {
		state[e.rel] = e.modTime
	}
	return state, nil
}

func scanRemoteDir(s *ftpclient.Session, root, relDir string, m *IgnoreMatcher, logger *slog.Logger) ([]fileEntry, error) {
	dir := path.Join(root, relDir)
	listing, err := s.List(dir)
	if err != nil {
		if ftpclient.IsPermanent(err) {
			logger.Warn("skip unreadable remote directory", "path", dir, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var entries []fileEntry
	for _, e := range listing {
		if e.Name == "." || e.Name == ".." {
			continue
		}

		rel := path.Join(relDir, e.Name)
		if m.Ignored(rel) {
			logger.Debug("ignore", "side", "remote", "path", rel)
			continue
		}

		switch e.Type {
		case ftp.EntryTypeFolder:
			sub, err := scanRemoteDir(s, root, rel, m, logger)
			if err != nil {
				return nil, err
			}
			entries = append(entries, sub...)
		case ftp.EntryTypeFile:
			entries = append(entries, fileEntry{rel: rel, modTime: FormatTimestamp(e.Time)})
			logger.Debug("remote", "path", rel)
		}
	}
	return entries, nil
}
