// Package bootstrap runs at the very start of every launch, before any UI or
// update logic. It recognizes a launch that follows an applied update and
// removes what the previous version left behind.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/hatch/internal/install"
	"github.com/adamancini/hatch/internal/update"
)

// Launch describes why the process was started.
type Launch struct {
	Restarted   bool
	FirstRun    bool
	PreviousDir string
	UpdatedFrom string
}

// Option configures a Bootstrap.
type Option func(*Bootstrap)

// WithArgs sets the command line to inspect. Defaults to os.Args[1:].
func WithArgs(args []string) Option {
	return func(b *Bootstrap) { b.args = args }
}

// WithEnv sets the environment lookup. Defaults to os.LookupEnv.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(b *Bootstrap) { b.lookupEnv = lookup }
}

// WithUnsetEnv sets how handled signal variables are cleared. Defaults to
// os.Unsetenv.
func WithUnsetEnv(unset func(string) error) Option {
	return func(b *Bootstrap) { b.unsetEnv = unset }
}

// WithLocator sets the installation. Without it the installation containing
// the running executable is used.
func WithLocator(loc *install.Locator) Option {
	return func(b *Bootstrap) { b.loc = loc }
}

// WithLogger sets the log entry.
func WithLogger(entry *log.Entry) Option {
	return func(b *Bootstrap) { b.log = entry }
}

// WithKeepVersions sets how many inactive versions survive finalize.
func WithKeepVersions(n int) Option {
	return func(b *Bootstrap) { b.keepVersions = n }
}

// OnRestarted is called after finalize with the now running version.
func OnRestarted(fn func(*update.Version)) Option {
	return func(b *Bootstrap) { b.onRestarted = fn }
}

// OnFirstRun is called on the first launch after installation.
func OnFirstRun(fn func(*update.Version)) Option {
	return func(b *Bootstrap) { b.onFirstRun = fn }
}

// WithAutoApply is called on an ordinary launch so a previously downloaded
// update can be applied before the application starts.
func WithAutoApply(fn func() error) Option {
	return func(b *Bootstrap) { b.autoApply = fn }
}

// Bootstrap is the startup hook.
type Bootstrap struct {
	args         []string
	lookupEnv    func(string) (string, bool)
	unsetEnv     func(string) error
	loc          *install.Locator
	log          *log.Entry
	keepVersions int
	onRestarted  func(*update.Version)
	onFirstRun   func(*update.Version)
	autoApply    func() error
}

// New creates a startup hook.
func New(opts ...Option) *Bootstrap {
	b := &Bootstrap{
		lookupEnv:    os.LookupEnv,
		unsetEnv:     os.Unsetenv,
		log:          log.NewEntry(log.StandardLogger()),
		keepVersions: install.DefaultKeepVersions,
	}
	if len(os.Args) > 1 {
		b.args = os.Args[1:]
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Detect inspects the environment and arguments without acting on them.
func (b *Bootstrap) Detect() Launch {
	var l Launch
	if v, ok := b.lookupEnv(install.EnvRestarted); ok && isTrue(v) {
		l.Restarted = true
	}
	for _, arg := range b.args {
		if arg == install.FinalizeArg {
			l.Restarted = true
		}
	}
	if v, ok := b.lookupEnv(install.EnvFirstRun); ok && isTrue(v) {
		l.FirstRun = true
	}
	l.PreviousDir, _ = b.lookupEnv(install.EnvPreviousDir)
	l.UpdatedFrom, _ = b.lookupEnv(install.EnvUpdatedFrom)
	return l
}

// Run performs the startup hook. An ordinary launch is a no-op apart from
// the optional auto-apply. After an update the previous version and the
// staging area are removed; cleanup failures are logged and never stop the
// application from starting. Run only fails when ctx is already done.
func (b *Bootstrap) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	launch := b.Detect()

	if launch.Restarted {
		b.finalize(launch)
	} else if b.autoApply != nil {
		if err := b.autoApply(); err != nil {
			b.log.Warnf("failed to apply pending update: %v", err)
		}
	}

	if launch.FirstRun {
		b.clearEnv(install.EnvFirstRun)
		if b.onFirstRun != nil {
			b.onFirstRun(b.currentVersion())
		}
	}
	return nil
}

// finalize removes what an applied update left behind.
func (b *Bootstrap) finalize(launch Launch) {
	defer b.clearEnv(install.EnvRestarted, install.EnvPreviousDir, install.EnvUpdatedFrom)

	loc, err := b.locator()
	if err != nil {
		b.log.Warnf("post-update launch detected but the installation could not be located: %v", err)
		return
	}

	if launch.UpdatedFrom != "" {
		b.log.Infof("updated from %s to %s", launch.UpdatedFrom, loc.Manifest.Version)
	} else {
		b.log.Infof("post-update launch of %s", loc.Manifest.Version)
	}

	if err := b.cleanup(loc, launch.PreviousDir); err != nil {
		b.log.Warnf("finalize cleanup incomplete: %v", err)
	} else {
		b.log.Infof("finalize cleanup complete")
	}

	if b.onRestarted != nil {
		b.onRestarted(b.currentVersion())
	}
}

func (b *Bootstrap) cleanup(loc *install.Locator, previousDir string) error {
	var merr *multierror.Error

	if previousDir != "" && b.keepVersions == 0 {
		if err := removePrevious(loc, previousDir); err != nil {
			merr = multierror.Append(merr, err)
		} else {
			b.log.Infof("removed previous version %s", previousDir)
		}
	}

	if err := loc.RemovePackages(); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("failed to remove staging directory: %w", err))
	}

	if removed, err := loc.RemoveTempDirs(); err != nil {
		merr = multierror.Append(merr, err)
	} else if len(removed) > 0 {
		b.log.Infof("removed %d leftover extraction directories", len(removed))
	}

	result, err := loc.PruneVersions(b.keepVersions)
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	if result != nil && len(result.Deleted) > 0 {
		b.log.Infof("pruned old versions: %s", strings.Join(result.Deleted, ", "))
	}

	return merr.ErrorOrNil()
}

// removePrevious deletes the version directory an update replaced. It only
// ever touches an inactive directory inside the installation root.
func removePrevious(loc *install.Locator, name string) error {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("refusing to remove previous version %q: not a directory name", name)
	}
	path := filepath.Join(loc.RootDir, name)
	if !loc.Contains(path) {
		return fmt.Errorf("refusing to remove previous version %q: outside the installation", name)
	}
	if path == loc.CurrentDir {
		return fmt.Errorf("refusing to remove previous version %q: it is the active version", name)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove previous version %s: %w", name, err)
	}
	return nil
}

func (b *Bootstrap) locator() (*install.Locator, error) {
	if b.loc != nil {
		return b.loc, nil
	}
	loc, err := install.AutoLocate()
	if err != nil {
		return nil, err
	}
	b.loc = loc
	return loc, nil
}

func (b *Bootstrap) currentVersion() *update.Version {
	loc, err := b.locator()
	if err != nil {
		return nil
	}
	v, err := update.ParseVersion(loc.Manifest.Version)
	if err != nil {
		return nil
	}
	return v
}

func (b *Bootstrap) clearEnv(keys ...string) {
	for _, k := range keys {
		if err := b.unsetEnv(k); err != nil {
			b.log.Debugf("failed to clear %s: %v", k, err)
		}
	}
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	}
	return true
}
