package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/jlaffaye/ftp"
	"github.com/openmined/ftpmirror/internal/ftpclient"
)

// RemoveTree deletes dir (relative to the server root) and everything below it.
// A directory the server refuses to list or remove is logged and left in place.
// It returns the number of files deleted.
func (e *Engine) RemoveTree(ctx context.Context, server, dir string) (int, error) {
	unlock, err := lockServer(e.lockDir, server)
	if err != nil {
		return 0, err
	}
	defer unlock()

	session, err := e.connector.Connect(ctx, server)
	if err != nil {
		return 0, err
	}
	defer session.Close()

	logger := e.logger.With("server", server)
	target := session.RemotePath(dir)
	logger.Info("rmtree", "path", target)

	count, err := removeTree(ctx, session, target, logger)
	if err != nil {
		return count, err
	}
	logger.Info("rmtree done", "deleted", count)
	return count, session.Close()
}

func removeTree(ctx context.Context, s *ftpclient.Session, dir string, logger *slog.Logger) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("rmtree %s interrupted: %w", dir, err)
	}

	count := 0
	skip := func(err error) (int, error) {
		if ftpclient.IsPermanent(err) {
			logger.Warn("caution: skip remote directory", "path", dir, "error", err)
			return count, nil
		}
		return count, err
	}

	entries, err := s.List(dir)
	if err != nil {
		return skip(fmt.Errorf("list %s: %w", dir, err))
	}

	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child := path.Join(dir, e.Name)

		switch e.Type {
		case ftp.EntryTypeFolder:
			n, err := removeTree(ctx, s, child, logger)
			count += n
			if err != nil {
				return count, err
			}
		case ftp.EntryTypeFile:
			if err := s.Delete(child); err != nil {
				return skip(fmt.Errorf("delete %s: %w", child, err))
			}
			count++
			logger.Debug("delete", "path", child)
		}
	}

	if err := s.RemoveDir(dir); err != nil {
		return skip(fmt.Errorf("rmd %s: %w", dir, err))
	}
	logger.Debug("rmd", "path", dir)
	return count, nil
}

// ListRemote returns every file below dir (relative to the server root) with its timestamp.
// No ignore rules apply.
func (e *Engine) ListRemote(ctx context.Context, server, dir string) (FileMap, error) {
	session, err := e.connector.Connect(ctx, server)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	files, err := ScanRemote(session, session.RemotePath(dir), nil, e.logger.With("server", server))
	if err != nil {
		return nil, err
	}
	return files, session.Close()
}
