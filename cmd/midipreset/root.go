package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"go-midipreset/config"
	"go-midipreset/dispatch"
	"go-midipreset/logging"
	"go-midipreset/midi"
	"go-midipreset/preset"
	"go-midipreset/theme"
)

// enumeratorFactory builds the port enumerator for a configured timeout.
type enumeratorFactory func(timeout time.Duration) midi.Enumerator

// app is everything a command needs, built once per invocation from flags
// and the config file.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	theme    *theme.Theme
	ports    midi.Enumerator
	registry *prometheus.Registry
	metrics  *dispatch.Metrics
	store    preset.Store

	closers []func() error
}

// newRootCmd builds the command tree. The returned app owns resources opened
// while a command runs; release them with execute.
func newRootCmd(ports enumeratorFactory) (*cobra.Command, *app) {
	var (
		configPath string
		logLevel   string
		envFile    string
		a          = &app{}
	)

	root := &cobra.Command{
		Use:           "midipreset",
		Short:         "Send MIDI presets to hardware",
		Long:          `midipreset stores named sequences of program change, control change and delay messages and plays them to a MIDI output port.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadDotEnv(envFile); err != nil {
				return err
			}
			return a.init(configPath, logLevel, ports)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/midipreset/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "path to .env file (ignored if missing)")

	root.AddCommand(
		newPortsCmd(a),
		newSendCmd(a),
		newFireCmd(a),
		newPresetsCmd(a),
		newServeCmd(a),
	)
	return root, a
}

// execute runs root and then closes a, whether or not the command or its
// setup failed.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.Close())
}

// loadDotEnv loads environment variables from path. A missing file is ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (a *app) init(configPath, logLevel string, ports enumeratorFactory) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logPath, err := cfg.LogPath()
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.Setup(level, logPath)
	if err != nil {
		return err
	}
	a.logger = logger
	a.closers = append(a.closers, closeLog)

	a.theme, err = theme.Load(cfg.Theme.Palette)
	if err != nil {
		logger.Warn("palette not loaded, using defaults", "err", err)
		a.theme = theme.New(nil)
	}

	timeout, err := cfg.EnumerationTimeout()
	if err != nil {
		return err
	}
	a.ports = ports(timeout)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = dispatch.NewMetrics(a.registry)

	return a.openStore()
}

func (a *app) openStore() error {
	switch a.cfg.Store.Kind {
	case config.StoreRedis:
		r := a.cfg.Store.Redis
		var opts []preset.RedisOption
		if r.Prefix != "" {
			opts = append(opts, preset.WithPrefix(r.Prefix))
		}
		rs := preset.NewRedisStore(r.Addr, r.Password, r.DB, opts...)
		a.store = rs
		a.closers = append(a.closers, rs.Close)
		a.logger.Debug("using redis preset store", "addr", r.Addr)
	default:
		path, err := a.cfg.PresetPath()
		if err != nil {
			return err
		}
		a.store = preset.NewFileStore(path)
		a.logger.Debug("using file preset store", "path", path)
	}
	return nil
}

// dispatcher builds a Dispatcher from the config with the given hooks.
func (a *app) dispatcher(hooks dispatch.Hooks) (*dispatch.Dispatcher, error) {
	policy, err := a.cfg.ConnectionPolicy()
	if err != nil {
		return nil, err
	}
	interval, err := a.cfg.SendInterval()
	if err != nil {
		return nil, err
	}
	return dispatch.New(a.ports,
		dispatch.WithLogger(a.logger),
		dispatch.WithMetrics(a.metrics),
		dispatch.WithHooks(hooks),
		dispatch.WithConnectionPolicy(policy),
		dispatch.WithSendInterval(interval),
	), nil
}

// Close releases the store and the log file, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}
