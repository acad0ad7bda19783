package bootstrap_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/hatch/internal/bootstrap"
	"github.com/adamancini/hatch/internal/install"
	"github.com/adamancini/hatch/internal/install/installtest"
	"github.com/adamancini/hatch/internal/logrelay"
	"github.com/adamancini/hatch/internal/update"
)

type harness struct {
	env   map[string]string
	unset []string
	relay *logrelay.Relay
	entry *log.Entry
}

func newHarness(env map[string]string) *harness {
	relay := logrelay.New()
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(relay.Hook())
	if env == nil {
		env = map[string]string{}
	}
	return &harness{env: env, relay: relay, entry: log.NewEntry(logger)}
}

func (h *harness) options() []bootstrap.Option {
	return []bootstrap.Option{
		bootstrap.WithArgs(nil),
		bootstrap.WithEnv(func(k string) (string, bool) {
			v, ok := h.env[k]
			return v, ok
		}),
		bootstrap.WithUnsetEnv(func(k string) error {
			h.unset = append(h.unset, k)
			delete(h.env, k)
			return nil
		}),
		bootstrap.WithLogger(h.entry),
	}
}

func (h *harness) lines() []string {
	var out []string
	for _, l := range h.relay.DrainAll() {
		out = append(out, l.String())
	}
	return out
}

// updatedInstall returns an installation that was just switched from 1.0.0
// to 1.0.1, with the leftovers an apply produces.
func updatedInstall(t *testing.T) *install.Locator {
	t.Helper()

	loc := installtest.NewInstall(t, installtest.Manifest("demo", "1.0.0"))
	require.NoError(t, os.MkdirAll(loc.PackagesDir(), 0o755))
	pkg := filepath.Join(loc.PackagesDir(), "demo-1.0.1-full.nupkg")
	installtest.WritePackage(t, pkg, installtest.Manifest("demo", "1.0.1"), nil)

	_, err := loc.Swap(pkg, "1.0.1")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(loc.RootDir, "app-1.0.1.deadbeef.tmp"), 0o755))
	return loc
}

func TestRunNormalLaunchIsNoOp(t *testing.T) {
	loc := updatedInstall(t)
	h := newHarness(nil)

	autoApplied := 0
	restarted := false
	b := bootstrap.New(append(h.options(),
		bootstrap.WithLocator(loc),
		bootstrap.WithAutoApply(func() error { autoApplied++; return nil }),
		bootstrap.OnRestarted(func(*update.Version) { restarted = true }),
	)...)

	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, 1, autoApplied)
	assert.False(t, restarted)
	assert.DirExists(t, filepath.Join(loc.RootDir, "app-1.0.0"))
	assert.DirExists(t, loc.PackagesDir())
	assert.Empty(t, h.unset)
}

func TestRunNormalLaunchWithoutInstallation(t *testing.T) {
	h := newHarness(nil)
	b := bootstrap.New(h.options()...)

	require.NoError(t, b.Run(context.Background()))
	assert.Empty(t, h.lines())
}

func TestRunAutoApplyFailureIsLogged(t *testing.T) {
	h := newHarness(nil)
	b := bootstrap.New(append(h.options(),
		bootstrap.WithAutoApply(func() error { return errors.New("lock held") }),
	)...)

	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, []string{"WARNING - failed to apply pending update: lock held"}, h.lines())
}

func TestRunFinalizesAfterUpdate(t *testing.T) {
	loc := updatedInstall(t)
	h := newHarness(map[string]string{
		install.EnvRestarted:   "1",
		install.EnvPreviousDir: "app-1.0.0",
		install.EnvUpdatedFrom: "1.0.0",
	})

	var restartedAs string
	autoApplied := false
	b := bootstrap.New(append(h.options(),
		bootstrap.WithLocator(loc),
		bootstrap.OnRestarted(func(v *update.Version) { restartedAs = v.String() }),
		bootstrap.WithAutoApply(func() error { autoApplied = true; return nil }),
	)...)

	require.NoError(t, b.Run(context.Background()))

	assert.NoDirExists(t, filepath.Join(loc.RootDir, "app-1.0.0"))
	assert.NoDirExists(t, loc.PackagesDir())
	assert.NoDirExists(t, filepath.Join(loc.RootDir, "app-1.0.1.deadbeef.tmp"))
	assert.DirExists(t, loc.CurrentDir)
	assert.FileExists(t, loc.MainExePath())

	assert.Equal(t, "1.0.1", restartedAs)
	assert.False(t, autoApplied, "pending updates are not applied right after an update")
	assert.ElementsMatch(t, []string{install.EnvRestarted, install.EnvPreviousDir, install.EnvUpdatedFrom}, h.unset)

	lines := h.lines()
	assert.Contains(t, lines, "INFO - updated from 1.0.0 to 1.0.1")
	assert.Contains(t, lines, "INFO - finalize cleanup complete")
}

func TestRunFinalizeArgument(t *testing.T) {
	loc := updatedInstall(t)
	h := newHarness(nil)

	called := false
	b := bootstrap.New(append(h.options(),
		bootstrap.WithArgs([]string{"--verbose", install.FinalizeArg}),
		bootstrap.WithLocator(loc),
		bootstrap.OnRestarted(func(*update.Version) { called = true }),
	)...)

	assert.True(t, b.Detect().Restarted)
	require.NoError(t, b.Run(context.Background()))
	assert.True(t, called)
	assert.NoDirExists(t, loc.PackagesDir())
	// Without a previous directory, old versions are still pruned.
	assert.NoDirExists(t, filepath.Join(loc.RootDir, "app-1.0.0"))
}

func TestRunKeepVersions(t *testing.T) {
	loc := updatedInstall(t)
	h := newHarness(map[string]string{
		install.EnvRestarted:   "1",
		install.EnvPreviousDir: "app-1.0.0",
	})

	b := bootstrap.New(append(h.options(), bootstrap.WithLocator(loc), bootstrap.WithKeepVersions(1))...)
	require.NoError(t, b.Run(context.Background()))

	assert.DirExists(t, filepath.Join(loc.RootDir, "app-1.0.0"))
	assert.NoDirExists(t, loc.PackagesDir())
}

func TestRunCleanupFailuresAreNotFatal(t *testing.T) {
	tests := []struct {
		name    string
		prev    string
		wantMsg string
	}{
		{name: "escaping path", prev: "../outside", wantMsg: "not a directory name"},
		{name: "active version", prev: "app-1.0.1", wantMsg: "it is the active version"},
		{name: "parent", prev: "..", wantMsg: "not a directory name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := updatedInstall(t)
			h := newHarness(map[string]string{
				install.EnvRestarted:   "1",
				install.EnvPreviousDir: tt.prev,
			})

			called := false
			b := bootstrap.New(append(h.options(),
				bootstrap.WithLocator(loc),
				bootstrap.OnRestarted(func(*update.Version) { called = true }),
			)...)

			require.NoError(t, b.Run(context.Background()))
			assert.True(t, called, "startup continues after a failed cleanup")
			assert.DirExists(t, loc.CurrentDir)
			assert.FileExists(t, loc.MainExePath())
			assert.NoDirExists(t, loc.PackagesDir(), "remaining cleanup still runs")

			joined := strings.Join(h.lines(), "\n")
			assert.Contains(t, joined, "WARNING - finalize cleanup incomplete")
			assert.Contains(t, joined, tt.wantMsg)
		})
	}
}

func TestRunRestartedWithoutInstallation(t *testing.T) {
	h := newHarness(map[string]string{install.EnvRestarted: "1"})
	b := bootstrap.New(h.options()...)

	require.NoError(t, b.Run(context.Background()))
	lines := h.lines()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "WARNING - post-update launch detected"))
	assert.Contains(t, h.unset, install.EnvRestarted)
}

func TestRunFirstRun(t *testing.T) {
	loc := installtest.NewInstall(t, installtest.Manifest("demo", "2.0.0"))
	h := newHarness(map[string]string{install.EnvFirstRun: "true"})

	var got string
	b := bootstrap.New(append(h.options(),
		bootstrap.WithLocator(loc),
		bootstrap.OnFirstRun(func(v *update.Version) { got = v.String() }),
	)...)

	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, "2.0.0", got)
	assert.Equal(t, []string{install.EnvFirstRun}, h.unset)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bootstrap.Launch
	}{
		{name: "nothing", env: nil, want: bootstrap.Launch{}},
		{name: "restarted", env: map[string]string{install.EnvRestarted: "1", install.EnvUpdatedFrom: "0.9.0"},
			want: bootstrap.Launch{Restarted: true, UpdatedFrom: "0.9.0"}},
		{name: "restarted false", env: map[string]string{install.EnvRestarted: "0"}, want: bootstrap.Launch{}},
		{name: "restarted empty", env: map[string]string{install.EnvRestarted: ""}, want: bootstrap.Launch{}},
		{name: "first run", env: map[string]string{install.EnvFirstRun: "yes"}, want: bootstrap.Launch{FirstRun: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.env)
			got := bootstrap.New(h.options()...).Detect()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := newHarness(nil)
	err := bootstrap.New(h.options()...).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
