// Package ftpclient establishes FTP sessions for mirror runs.
package ftpclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/ftpmirror/internal/registry"
)

const defaultTimeout = 30 * time.Second

// Lookup resolves a server nickname.
type Lookup interface {
	Lookup(name string) (registry.ServerConfig, error)
}

type clientConfig struct {
	rules   VariantRules
	dialer  Dialer
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*clientConfig)

// WithVariantRules overrides DefaultVariantRules.
func WithVariantRules(rules VariantRules) Option {
	return func(c *clientConfig) {
		c.rules = rules
	}
}

// WithDialer replaces the network dialer. Used by tests.
func WithDialer(d Dialer) Option {
	return func(c *clientConfig) {
		c.dialer = d
	}
}

// WithTimeout sets the dial and command timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithLogger sets the logger handed to sessions.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// Client opens sessions to servers known to a registry.
type Client struct {
	servers Lookup
	cfg     clientConfig
}

func New(servers Lookup, opts ...Option) *Client {
	cfg := clientConfig{
		rules:   DefaultVariantRules,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.dialer == nil {
		cfg.dialer = NewDialer(cfg.timeout)
	}
	return &Client{servers: servers, cfg: cfg}
}

// Connect looks up name, opens the control channel with the variant chosen for its host,
// and logs in. Every failure is a *ConnectError.
func (c *Client) Connect(ctx context.Context, name string) (*Session, error) {
	cfg, err := c.servers.Lookup(name)
	if err != nil {
		return nil, &ConnectError{Server: name, Err: err}
	}

	variant := c.cfg.rules.Classify(cfg.Host)
	logger := c.cfg.logger.With("server", name)
	if variant == VariantPlain {
		logger.Warn("connecting without TLS, credentials are sent in clear text", "host", cfg.Host)
	}
	logger.Debug("connect", "addr", cfg.Addr(), "variant", variant)

	conn, err := c.cfg.dialer(ctx, cfg.Addr(), TLSConfig(variant, cfg.Host))
	if err != nil {
		return nil, &ConnectError{Server: name, Err: fmt.Errorf("dial %s (%s): %w", cfg.Addr(), variant, err)}
	}

	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		conn.Quit()
		return nil, &ConnectError{Server: name, Err: fmt.Errorf("login as %q: %w", cfg.User, err)}
	}

	logger.Info("connected", "host", cfg.Host, "variant", variant)
	return NewSession(name, cfg, conn, logger), nil
}
