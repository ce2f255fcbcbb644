// Package registry maps FTP server nicknames to connection parameters.
//
// The registry file is either TOML (one table per nickname) or YAML (one mapping per
// nickname). The format is chosen by file extension:
//
//	[mysite]
//	host = "ftp.example.com"
//	port = 21
//	user = "alice"
//	passwd = "${MYSITE_PASSWORD}"
//	root = "/public_html"
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const defaultPort = 21

var (
	ErrUnknownServer = errors.New("unknown server")
	ErrNoHost        = errors.New("host is required")
)

// ServerConfig holds the connection parameters of one server.
type ServerConfig struct {
	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"passwd" yaml:"passwd"`
	Root     string `toml:"root" yaml:"root"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Registry is read-only after Load and safe for concurrent use.
type Registry struct {
	path    string
	servers map[string]ServerConfig
}

// New builds a registry from already decoded entries.
func New(servers map[string]ServerConfig) (*Registry, error) {
	r := &Registry{servers: make(map[string]ServerConfig, len(servers))}
	for name, cfg := range servers {
		if err := normalize(name, &cfg); err != nil {
			return nil, err
		}
		r.servers[name] = cfg
	}
	return r, nil
}

// Load reads a registry file. Passwords may reference environment variables as $VAR or ${VAR}.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	servers := make(map[string]ServerConfig)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&servers); err != nil {
			return nil, fmt.Errorf("decode registry %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&servers); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode registry %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("registry %s: unsupported format %q", path, ext)
	}

	r, err := New(servers)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	r.path = path
	return r, nil
}

func normalize(name string, cfg *ServerConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("server %q: %w", name, ErrNoHost)
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	cfg.Password = os.ExpandEnv(cfg.Password)
	return nil
}

// Path returns the file the registry was loaded from, if any.
func (r *Registry) Path() string {
	return r.path
}

// Lookup returns the config for a nickname.
func (r *Registry) Lookup(name string) (ServerConfig, error) {
	cfg, ok := r.servers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("%w %q: not in %v", ErrUnknownServer, name, r.Names())
	}
	return cfg, nil
}

// Names returns the sorted list of known nicknames.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
