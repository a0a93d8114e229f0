package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrWong99/signbridge/internal/app"
	"github.com/MrWong99/signbridge/internal/config"
	"github.com/MrWong99/signbridge/internal/observe"
)

// shutdownTimeout bounds App.Shutdown after a command returns.
const shutdownTimeout = 15 * time.Second

// cli holds the state shared by all subcommands. It is filled in by the root
// command's PersistentPreRunE.
type cli struct {
	v *viper.Viper

	watcher     *config.Watcher
	stopReload  func()
	level       *slog.LevelVar
	levelPinned bool
	telemetry   *observe.Provider
	metrics     *observe.Metrics
}

func (c *cli) rootCmd() *cobra.Command {
	c.v = viper.New()
	root := &cobra.Command{
		Use:          "signbridge",
		Short:        "Live transcription bridge for a sign language avatar backend",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}

	fs := root.PersistentFlags()
	fs.String("config", "signbridge.yaml", "path to the YAML configuration file")
	fs.String("log-level", "", "override server.log_level (debug, info, warn, error)")
	fs.String("log-format", "text", "log output format: text, json or pretty")
	_ = c.v.BindPFlags(fs)
	c.v.SetEnvPrefix("SIGNBRIDGE")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		c.listenCmd(),
		c.translateCmd(),
		c.avatarCmd(),
		c.stopAllCmd(),
		c.speakCmd(),
		c.translateTextCmd(),
		c.seeCmd(),
		c.searchCmd(),
		c.historyCmd(),
	)

	return root
}

func (c *cli) setup(ctx context.Context) error {
	c.level = new(slog.LevelVar)
	handler, err := newHandler(c.v.GetString("log-format"), os.Stderr, c.level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(handler))

	if raw := c.v.GetString("log-level"); raw != "" {
		lvl, err := parseLevel(config.LogLevel(raw))
		if err != nil {
			return err
		}
		c.level.Set(lvl)
		c.levelPinned = true
	}

	path := c.v.GetString("config")
	w, err := config.NewWatcher(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
		}
		return err
	}
	c.watcher = w
	w.Subscribe(c.onConfigChange)
	c.stopReload = reloadOnHangup(w)
	if !c.levelPinned {
		lvl, _ := parseLevel(w.Current().Server.LogLevel)
		c.level.Set(lvl)
	}

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return err
	}
	c.telemetry = tel
	c.metrics = observe.DefaultMetrics()

	slog.Debug("signbridge starting",
		"version", version,
		"config", path,
		"region", w.Current().AWS.Region,
		"language", w.Current().Transcribe.Language,
	)
	return nil
}

// reloadOnHangup re-reads the config file on SIGHUP without waiting for the
// next poll. The returned func stops listening for the signal.
func reloadOnHangup(w *config.Watcher) func() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-hup:
				changed, err := w.Reload()
				if err != nil {
					slog.Warn("config reload failed", "err", err)
					continue
				}
				slog.Info("config reload requested", "changed", changed)
			}
		}
	}()
	return func() {
		signal.Stop(hup)
		close(done)
	}
}

func (c *cli) onConfigChange(d config.ConfigDiff, _ *config.Config) {
	if !d.LogLevelChanged || c.levelPinned {
		return
	}
	lvl, err := parseLevel(d.NewLogLevel)
	if err != nil {
		return
	}
	c.level.Set(lvl)
	slog.Info("log level changed", "level", d.NewLogLevel)
}

// newApp builds an App from the watched config.
func (c *cli) newApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	opts = append([]app.Option{app.WithMetrics(c.metrics)}, opts...)
	return app.New(ctx, c.watcher, opts...)
}

func shutdownApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}
}

// close releases what setup acquired. It is safe to call when setup never ran.
func (c *cli) close() {
	if c.stopReload != nil {
		c.stopReload()
	}
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.telemetry.Shutdown(ctx); err != nil {
			slog.Debug("telemetry shutdown", "err", err)
		}
	}
}
