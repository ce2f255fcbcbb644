// Package config holds the CLI settings that viper assembles from the config file,
// environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openmined/ftpmirror/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigDir  = filepath.Join(home, ".config", "ftpmirror")
	DefaultConfigPath = filepath.Join(DefaultConfigDir, "config.yaml")
	DefaultEnvPath    = filepath.Join(DefaultConfigDir, ".env")
	DefaultRegistry   = filepath.Join(DefaultConfigDir, "servers.toml")
	DefaultIgnoreFile = filepath.Join(DefaultConfigDir, "ftpignore")
	DefaultStateDir   = filepath.Join(home, ".local", "state", "ftpmirror")
)

const (
	DefaultParallel = 4
	DefaultTimeout  = 30 * time.Second
	JournalFileName = "journal.db"
	LocksDirName    = "locks"
)

var (
	ErrBadParallel = errors.New("parallel must be at least 1")
	ErrBadTimeout  = errors.New("timeout must be positive")
)

type Config struct {
	// Registry is the server registry file (TOML or YAML).
	Registry string `mapstructure:"registry"`
	// SharedIgnore is applied to every mirror run before the per-tree .ftpignore.
	SharedIgnore string `mapstructure:"shared_ignore"`
	// StateDir holds the run journal and the per-server lock files.
	StateDir string        `mapstructure:"state_dir"`
	LogFile  string        `mapstructure:"log_file"`
	Verbose  bool          `mapstructure:"verbose"`
	Parallel int           `mapstructure:"parallel"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// PlainHosts and WeakTLSHosts are host substrings selecting the protocol variant.
	PlainHosts   []string `mapstructure:"plain_hosts"`
	WeakTLSHosts []string `mapstructure:"weak_tls_hosts"`

	Path string `mapstructure:"-"`
}

// Validate fills in defaults and makes every path absolute.
func (c *Config) Validate() error {
	if c.Registry == "" {
		c.Registry = DefaultRegistry
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.Parallel == 0 {
		c.Parallel = DefaultParallel
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}

	if c.Parallel < 0 {
		return fmt.Errorf("%w: %d", ErrBadParallel, c.Parallel)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrBadTimeout, c.Timeout)
	}

	var err error
	if c.Registry, err = utils.ResolvePath(c.Registry); err != nil {
		return fmt.Errorf("registry path: %w", err)
	}
	if c.StateDir, err = utils.ResolvePath(c.StateDir); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}
	// an empty shared ignore or log file disables it
	if c.SharedIgnore != "" {
		if c.SharedIgnore, err = utils.ResolvePath(c.SharedIgnore); err != nil {
			return fmt.Errorf("shared ignore path: %w", err)
		}
	}
	if c.LogFile != "" {
		if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
			return fmt.Errorf("log file path: %w", err)
		}
	}
	return nil
}

// JournalPath is the SQLite run journal inside StateDir.
func (c *Config) JournalPath() string {
	return filepath.Join(c.StateDir, JournalFileName)
}

// LocksDir holds one lock file per server.
func (c *Config) LocksDir() string {
	return filepath.Join(c.StateDir, LocksDirName)
}
