package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/bootstrap"
	"github.com/adamancini/hatch/internal/config"
	"github.com/adamancini/hatch/internal/install"
	"github.com/adamancini/hatch/internal/interactive"
	"github.com/adamancini/hatch/internal/logging"
	"github.com/adamancini/hatch/internal/logrelay"
	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/update"
)

// osExit ends the process after an applied update. Replaced in tests.
var osExit = os.Exit

// app is what every command works with: configuration, the logger feeding
// the relay, and the output writer.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	closeLog func() error
	relay    *logrelay.Relay
	out      *output.Writer
	stderr   io.Writer

	prompter    *interactive.Prompter
	interactive bool

	// managerOpts are appended to the options built from the config.
	managerOpts []update.Option
	// launcher starts the application after init --launch.
	launcher install.Restarter

	exitRequested atomic.Bool
	exitCode      atomic.Int32
}

// withApp wraps a command body with app setup, the startup hook and
// teardown.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if _, skip := cmd.Annotations[skipBootstrap]; !skip {
			if err := a.run(cmd.Context(), func(ctx context.Context) error {
				return a.startup(ctx)
			}); err != nil {
				return err
			}
			if a.exiting() {
				return nil
			}
		}

		return fn(cmd.Context(), a, args)
	}
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, _, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		relay:       logrelay.New(),
		out:         output.NewWriter(cmd.OutOrStdout(), format),
		stderr:      cmd.ErrOrStderr(),
		prompter:    interactive.NewPrompterWithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
		interactive: interactive.IsTerminal(),
		launcher:    install.ProcessRestarter{},
	}

	level := cfg.Log.Level
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	a.logger, a.closeLog, err = logging.New(logging.Options{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		// The relay is the console; the formatter output only goes to a file.
		Output:     io.Discard,
		Relay:      a.relay,
		RelayDebug: verbose,
		Logger:     log.StandardLogger(),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// applyFlags layers command line overrides on top of the config file.
func applyFlags(cfg *config.Config) {
	if feedURL != "" {
		cfg.Feed.URL = feedURL
	}
	if installRoot != "" {
		cfg.Install.Root = installRoot
	}
	if channel != "" {
		cfg.Feed.Channel = channel
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
}

func (a *app) entry(component string) *log.Entry {
	return a.logger.WithField("component", component)
}

// locator opens the configured installation, or the one containing the
// running executable.
func (a *app) locator() (*install.Locator, error) {
	if a.cfg.Install.Root != "" {
		return install.NewLocator(a.cfg.Install.Root)
	}
	return install.AutoLocate()
}

func (a *app) manager(loc *install.Locator) (*update.Manager, error) {
	if a.cfg.Feed.URL == "" {
		return nil, fmt.Errorf("%w: no feed configured, set feed.url or pass --feed", update.ErrConfiguration)
	}

	opts := []update.Option{
		update.WithLogger(a.entry("update")),
		update.WithTimeout(a.cfg.Feed.Timeout.Std()),
		update.WithRetries(a.cfg.Feed.Retries, update.DefaultRetryDelay),
		update.WithChannel(a.cfg.Feed.Channel),
		update.WithAllowDowngrade(a.cfg.Feed.AllowDowngrade),
		update.WithExit(a.requestExit),
	}
	opts = append(opts, a.managerOpts...)
	return update.NewManager(a.cfg.Feed.URL, loc, opts...)
}

// startup runs the bootstrap hook for this launch.
func (a *app) startup(ctx context.Context, extra ...bootstrap.Option) error {
	opts := []bootstrap.Option{
		bootstrap.WithLogger(a.entry("bootstrap")),
		bootstrap.WithKeepVersions(a.cfg.Install.KeepVersions),
		bootstrap.OnRestarted(func(v *update.Version) {
			if v != nil {
				a.logger.Infof("now running %s", v)
			}
		}),
		bootstrap.OnFirstRun(func(v *update.Version) {
			if v != nil {
				a.logger.Infof("first run of %s", v)
			}
		}),
	}

	loc, err := a.locator()
	switch {
	case err == nil:
		opts = append(opts, bootstrap.WithLocator(loc))
		if a.cfg.Install.AutoApply && a.cfg.Feed.URL != "" {
			opts = append(opts, bootstrap.WithAutoApply(func() error {
				m, err := a.manager(loc)
				if err != nil {
					return err
				}
				_, err = m.ApplyPending(ctx)
				return err
			}))
		}
	case errors.Is(err, install.ErrNotInstalled):
		a.logger.Debugf("no installation: %v", err)
	default:
		a.logger.Debugf("failed to locate installation: %v", err)
	}

	opts = append(opts, extra...)
	return bootstrap.New(opts...).Run(ctx)
}

// run executes work on a worker goroutine while the calling goroutine
// drains the relay to stderr every ui.poll_interval.
func (a *app) run(ctx context.Context, work func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		defer cancel()
		errc <- work(ctx)
	}()

	a.relay.Poll(ctx, a.cfg.UI.PollInterval.Std(), a.printLines)
	err := <-errc
	// Poll stops early when the parent context is cancelled.
	a.printLines(a.relay.DrainAll())
	return err
}

func (a *app) printLines(lines []logrelay.Line) {
	for _, l := range lines {
		_, _ = fmt.Fprintln(a.stderr, l.String())
	}
}

// confirm asks before a step that changes the installation. Without a
// terminal, or with --yes, it proceeds.
func (a *app) confirm(yes bool, from, to, notes, step string) bool {
	if yes || !a.interactive {
		return true
	}
	return a.prompter.ConfirmUpdate(from, to, notes, step)
}

func (a *app) requestExit(code int) {
	a.exitCode.Store(int32(code))
	a.exitRequested.Store(true)
}

func (a *app) exiting() bool {
	return a.exitRequested.Load()
}

// close flushes the relay and releases the log file. When an apply asked
// for the process to exit, it happens here, after all output is written.
func (a *app) close() {
	a.printLines(a.relay.DrainAll())
	if a.closeLog != nil {
		_ = a.closeLog()
	}
	if a.exiting() {
		osExit(int(a.exitCode.Load()))
	}
}
