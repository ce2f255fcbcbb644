package mirror

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/openmined/ftpmirror/internal/utils"
)

// lockServer takes an exclusive lock file for server in dir so that two runs never
// transfer to the same server at once. An empty dir disables locking.
func lockServer(dir, server string) (func(), error) {
	if dir == "" {
		return func() {}, nil
	}

	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}

	fl := flock.New(filepath.Join(dir, lockFileName(server)))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock server %q: %w", server, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrServerLocked, server)
	}

	// Never unlink the lock file: a waiter may already hold the old inode.
	return func() { fl.Unlock() }, nil
}

func lockFileName(server string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, server)
	return safe + ".lock"
}
