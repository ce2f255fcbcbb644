package mirror

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gobwas/glob"
	"github.com/spf13/afero"
)

// IgnoreFileName is the per-tree ignore file looked up in the local root.
const IgnoreFileName = ".ftpignore"

// LocalCaseInsensitive reports whether the local filesystem folds case.
// Windows and macOS default volumes do.
var LocalCaseInsensitive = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// IgnoreRules is the deduplicated union of patterns from one or more ignore files.
type IgnoreRules struct {
	patterns mapset.Set[string]
	loaded   []string
}

// NewIgnoreRules builds a rule set from literal patterns.
func NewIgnoreRules(patterns ...string) *IgnoreRules {
	r := &IgnoreRules{patterns: mapset.NewSet[string]()}
	r.add(patterns...)
	return r
}

// LoadIgnoreRules reads every file in order. Files that do not exist contribute nothing.
func LoadIgnoreRules(fsys afero.Fs, files ...string) (*IgnoreRules, error) {
	r := NewIgnoreRules()
	for _, name := range files {
		if name == "" {
			continue
		}
		lines, err := readIgnoreFile(fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read ignore file %s: %w", name, err)
		}
		r.add(lines...)
		r.loaded = append(r.loaded, name)
	}
	return r, nil
}

func readIgnoreFile(fsys afero.Fs, name string) ([]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func (r *IgnoreRules) add(lines ...string) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.patterns.Add(line)
	}
}

// Patterns returns the sorted pattern list.
func (r *IgnoreRules) Patterns() []string {
	out := r.patterns.ToSlice()
	slices.Sort(out)
	return out
}

// Loaded returns the ignore files that existed and were read.
func (r *IgnoreRules) Loaded() []string {
	return slices.Clone(r.loaded)
}

// Len returns the number of distinct patterns.
func (r *IgnoreRules) Len() int {
	return r.patterns.Cardinality()
}

// Matcher compiles the rules. fold lowercases patterns and paths before matching.
func (r *IgnoreRules) Matcher(fold bool) *IgnoreMatcher {
	m := &IgnoreMatcher{fold: fold}
	for _, p := range r.Patterns() {
		if fold {
			p = strings.ToLower(p)
		}
		m.globs = append(m.globs, compileShellGlob(p))
	}
	return m
}

// IgnoreMatcher answers exclusion queries on relative forward-slash paths.
// A nil matcher ignores nothing.
type IgnoreMatcher struct {
	globs []glob.Glob
	fold  bool
}

// Ignored reports whether the full relative path matches any pattern.
// Wildcards match across "/" so "*.tmp" excludes "a/b/c.tmp".
func (m *IgnoreMatcher) Ignored(rel string) bool {
	if m == nil {
		return false
	}
	if m.fold {
		rel = strings.ToLower(rel)
	}
	for _, g := range m.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// compileShellGlob compiles p with shell wildcard semantics: "*", "?", "[...]", "[!...]".
// Braces and backslashes are literal. Patterns that fail to compile match literally.
func compileShellGlob(p string) glob.Glob {
	escaped := strings.NewReplacer(`\`, `\\`, `{`, `\{`, `}`, `\}`).Replace(p)
	g, err := glob.Compile(escaped)
	if err != nil {
		return glob.MustCompile(glob.QuoteMeta(p))
	}
	return g
}
