package mirror

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalTree(t *testing.T, files map[string]time.Time) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/root", 0o755))
	for name, mtime := range files {
		p := "/root/" + name
		require.NoError(t, afero.WriteFile(fsys, p, []byte(name), 0o644))
		require.NoError(t, fsys.Chtimes(p, mtime, mtime))
	}
	return fsys
}

func TestScanLocal(t *testing.T) {
	local := time.Date(2024, 5, 1, 12, 30, 15, 0, time.FixedZone("JST", 9*3600))
	fsys := newLocalTree(t, map[string]time.Time{
		"a.txt":                    t1,
		"sub/b.txt":                local,
		"sub/deeper/c.txt":         t2,
		"d.txt" + tempInfix + "42": t1,
	})
	require.NoError(t, fsys.MkdirAll("/root/empty", 0o755))

	state, err := ScanLocal(fsys, "/root", nil)
	require.NoError(t, err)

	assert.Equal(t, FileMap{
		"a.txt":            "20240301100000",
		"sub/b.txt":        "20240501033015",
		"sub/deeper/c.txt": "20240302100000",
	}, state)
}

func TestScanLocal_IgnoredDirsAreNotEntered(t *testing.T) {
	fsys := newLocalTree(t, map[string]time.Time{
		"keep.txt":        t1,
		"cache/x.bin":     t1,
		"cache/sub/y.bin": t1,
		"notes.tmp":       t1,
	})

	m := NewIgnoreRules("cache", "*.tmp").Matcher(false)
	state, err := ScanLocal(fsys, "/root", m)
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.txt"}, SortPaths(mapKeys(state)))
}

func TestScanLocal_RootErrors(t *testing.T) {
	fsys := newLocalTree(t, map[string]time.Time{"file.txt": t1})

	_, err := ScanLocal(fsys, "/missing", nil)
	assert.Error(t, err)

	_, err = ScanLocal(fsys, "/root/file.txt", nil)
	assert.ErrorContains(t, err, "not a directory")
}

func mapKeys(m FileMap) []string {
	return m.Keys().ToSlice()
}
