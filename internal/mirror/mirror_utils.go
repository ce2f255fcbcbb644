package mirror

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

const (
	tempInfix               = ".ftpmirror.tmp."
	newFileMode os.FileMode = 0o644
)

// SortPaths returns a sorted copy of paths: entries without "/" first, then entries with one,
// each group in byte order.
func SortPaths(paths []string) []string {
	out := slices.Clone(paths)
	slices.SortStableFunc(out, func(a, b string) int {
		aNested, bNested := strings.Contains(a, "/"), strings.Contains(b, "/")
		if aNested != bNested {
			if aNested {
				return 1
			}
			return -1
		}
		return strings.Compare(a, b)
	})
	return out
}

// NormPath converts an OS relative path to the forward-slash form used as FileMap keys.
func NormPath(rel string) string {
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(rel)), "./")
}

func isTempFile(name string) bool {
	return strings.Contains(name, tempInfix)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// writeLocalFile streams fill into a temp file next to path and renames it into place,
// so an interrupted download never leaves a truncated file under the real name.
// A replaced file keeps its permissions; a new file gets newFileMode.
func writeLocalFile(fsys afero.Fs, path string, fill func(w io.Writer) (int64, error)) (int64, error) {
	mode := newFileMode
	if info, err := fsys.Stat(path); err == nil && info.Mode().IsRegular() {
		mode = info.Mode().Perm()
	}

	tmp, err := afero.TempFile(fsys, filepath.Dir(path), filepath.Base(path)+tempInfix+"*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			fsys.Remove(tmpPath)
		}
	}()

	n, err := fill(tmp)
	if err != nil {
		return n, err
	}
	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err := fsys.Chmod(tmpPath, mode); err != nil {
		return n, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		return n, fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	success = true
	return n, nil
}
