package mirror

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockServer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")

	unlock, err := lockServer(dir, "alpha")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "alpha.lock"))

	_, err = lockServer(dir, "alpha")
	assert.ErrorIs(t, err, ErrServerLocked)

	other, err := lockServer(dir, "beta")
	require.NoError(t, err)
	other()

	unlock()
	assert.FileExists(t, filepath.Join(dir, "alpha.lock"), "lock file stays for the next run")

	unlock, err = lockServer(dir, "alpha")
	require.NoError(t, err)
	unlock()
}

func TestLockServer_Disabled(t *testing.T) {
	unlock, err := lockServer("", "alpha")
	require.NoError(t, err)
	unlock()
}

func TestLockFileName(t *testing.T) {
	assert.Equal(t, "alpha.lock", lockFileName("alpha"))
	assert.Equal(t, "a_b_c.lock", lockFileName("a/b:c"))
}
