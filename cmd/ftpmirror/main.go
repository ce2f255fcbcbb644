package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/ftpmirror/internal/config"
	"github.com/openmined/ftpmirror/internal/ftpclient"
	"github.com/openmined/ftpmirror/internal/mirror"
	"github.com/openmined/ftpmirror/internal/registry"
	"github.com/openmined/ftpmirror/internal/utils"
	"github.com/openmined/ftpmirror/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func()

	// dialer replaces the network dialer in tests
	dialer ftpclient.Dialer
}

func newRootCmd(a *app) *cobra.Command {
	if a.v == nil {
		a.v = viper.New()
	}

	rootCmd := &cobra.Command{
		Use:           "ftpmirror",
		Short:         "Mirror local directory trees to FTP servers",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, a.v)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg, a.logger, a.closeLog = cfg, logger, closeLog
			a.logger.Debug("ftpmirror", "version", version.UserAgent(), "config", cfg.Path, "registry", cfg.Registry)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", config.DefaultConfigPath, "config file")
	flags.String("registry", config.DefaultRegistry, "server registry file (.toml or .yaml)")
	flags.String("state-dir", config.DefaultStateDir, "directory for the run journal and lock files")
	flags.String("log-file", "", "also write logs to this file")
	flags.BoolP("verbose", "v", false, "log every file operation")
	flags.Duration("timeout", config.DefaultTimeout, "dial and command timeout")

	rootCmd.AddCommand(
		newMirrorCmd(a),
		newRemoveTreeCmd(a),
		newListCmd(a),
		newServersCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	rootCmd := newRootCmd(a)
	err := rootCmd.ExecuteContext(ctx)
	if a.closeLog != nil {
		a.closeLog()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, red.Render("error:"), err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	configPath, err := utils.ResolvePath(configPath)
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}

	// secrets referenced as ${VAR} in the registry may live next to the config
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("env file %s: %w", envPath, err)
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	v.SetDefault("registry", config.DefaultRegistry)
	v.SetDefault("shared_ignore", config.DefaultIgnoreFile)
	v.SetDefault("state_dir", config.DefaultStateDir)
	v.SetDefault("parallel", config.DefaultParallel)
	v.SetDefault("timeout", config.DefaultTimeout)
	v.SetDefault("plain_hosts", ftpclient.DefaultVariantRules.Plain)
	v.SetDefault("weak_tls_hosts", ftpclient.DefaultVariantRules.WeakTLS)

	for key, flag := range map[string]string{
		"registry":  "registry",
		"state_dir": "state-dir",
		"log_file":  "log-file",
		"verbose":   "verbose",
		"timeout":   "timeout",
		"parallel":  "parallel",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			v.BindPFlag(key, f)
		}
	}

	v.SetEnvPrefix("FTPMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newLogger writes colored logs to w and, when configured, plain text logs to the log file.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	termHandler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    noColor,
	})

	if cfg.LogFile == "" {
		return slog.New(termHandler), func() {}, nil
	}

	if err := utils.EnsureParent(cfg.LogFile); err != nil {
		return nil, nil, fmt.Errorf("log directory: %w", err)
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	interceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// the interceptor stamps each line
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	closeFn := func() {
		interceptor.Close()
		file.Close()
	}
	return slog.New(utils.NewMultiLogHandler(termHandler, fileHandler)), closeFn, nil
}

func (a *app) loadRegistry() (*registry.Registry, error) {
	reg, err := registry.Load(a.cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("server registry: %w", err)
	}
	return reg, nil
}

func (a *app) variantRules() ftpclient.VariantRules {
	return ftpclient.VariantRules{Plain: a.cfg.PlainHosts, WeakTLS: a.cfg.WeakTLSHosts}
}

// newEngine wires the registry, FTP client and optional journal into a mirror engine.
// The returned close func releases the journal.
func (a *app) newEngine(journaled bool) (*mirror.Engine, func(), error) {
	reg, err := a.loadRegistry()
	if err != nil {
		return nil, nil, err
	}

	clientOpts := []ftpclient.Option{
		ftpclient.WithVariantRules(a.variantRules()),
		ftpclient.WithTimeout(a.cfg.Timeout),
		ftpclient.WithLogger(a.logger),
	}
	if a.dialer != nil {
		clientOpts = append(clientOpts, ftpclient.WithDialer(a.dialer))
	}

	opts := []mirror.Option{
		mirror.WithLogger(a.logger),
		mirror.WithLockDir(a.cfg.LocksDir()),
	}
	closeFn := func() {}
	if journaled {
		journal, err := mirror.OpenJournal(a.cfg.JournalPath(), a.logger)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, mirror.WithJournal(journal))
		closeFn = func() { journal.Close() }
	}

	return mirror.NewEngine(ftpclient.New(reg, clientOpts...), opts...), closeFn, nil
}
