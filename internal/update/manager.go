// Package update implements the client side of the update lifecycle:
// checking a release feed, staging a package and switching the installation
// over to it.
//
// A Manager moves through Idle, Checked, Downloaded and Applying. Check is
// always allowed and discards whatever was staged before it; Download needs
// the info returned by the last Check and ApplyAndRestart needs the info of
// the last successful Download. Only one operation runs at a time; an
// overlapping call fails with ErrBusy.
package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/adamancini/hatch/internal/install"
)

// DefaultTimeout bounds feed requests and stalled transfers.
const DefaultTimeout = 30 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the entry every operation logs through.
func WithLogger(entry *log.Entry) Option {
	return func(m *Manager) { m.log = entry }
}

// WithHTTPClient sets the client used for http(s) feeds.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithTimeout bounds each feed request, and each period without progress
// during a download.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithRetries sets how often a failed transfer is retried and the initial
// delay between attempts.
func WithRetries(n int, delay time.Duration) Option {
	return func(m *Manager) {
		m.retries = n
		m.retryDelay = delay
	}
}

// WithChannel selects a release channel other than the installed one.
func WithChannel(channel string) Option {
	return func(m *Manager) { m.channel = channel }
}

// WithAllowDowngrade lets Check offer an older release, or the same
// version from another channel.
func WithAllowDowngrade(allow bool) Option {
	return func(m *Manager) { m.allowDowngrade = allow }
}

// WithProgress receives download progress in percent.
func WithProgress(fn func(int)) Option {
	return func(m *Manager) { m.progress = fn }
}

// WithRestarter replaces the process launcher used after an apply.
func WithRestarter(r install.Restarter) Option {
	return func(m *Manager) { m.restarter = r }
}

// WithExit replaces os.Exit, which ApplyAndRestart calls after relaunching.
func WithExit(fn func(int)) Option {
	return func(m *Manager) { m.exit = fn }
}

// WithRestartArgs sets the arguments the relaunched application receives.
func WithRestartArgs(args ...string) Option {
	return func(m *Manager) { m.restartArgs = args }
}

// Manager drives the update lifecycle of one installation against one feed.
type Manager struct {
	endpoint       Endpoint
	source         Source
	loc            *install.Locator
	current        *Version
	appChannel     string
	channel        string
	allowDowngrade bool
	timeout        time.Duration
	retries        int
	retryDelay     time.Duration
	httpClient     *http.Client
	progress       func(int)
	restarter      install.Restarter
	exit           func(int)
	restartArgs    []string
	log            *log.Entry

	// sem serializes lifecycle operations.
	sem *semaphore.Weighted

	mu    sync.Mutex
	state State
}

// NewManager creates a manager for the installation loc and the feed at
// endpoint. It fails with ErrConfiguration when the endpoint is not a valid
// feed location or the installation has no usable manifest.
func NewManager(endpoint string, loc *install.Locator, opts ...Option) (*Manager, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if loc == nil || loc.Manifest == nil {
		return nil, fmt.Errorf("%w: no installation manifest", ErrConfiguration)
	}

	current, err := ParseVersion(loc.Manifest.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: installed version: %v", ErrConfiguration, err)
	}

	platform := Detect()
	appChannel := loc.Manifest.Channel
	if appChannel == "" {
		appChannel = platform.Channel()
	}

	m := &Manager{
		endpoint:   ep,
		loc:        loc,
		current:    current,
		appChannel: appChannel,
		channel:    appChannel,
		timeout:    DefaultTimeout,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		restarter:  install.ProcessRestarter{},
		exit:       os.Exit,
		log:        log.WithField("app", loc.Manifest.ID),
		sem:        semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.channel == "" {
		m.channel = appChannel
	}
	if strings.ContainsAny(m.channel, `/\?#`) {
		return nil, fmt.Errorf("%w: invalid channel %q", ErrConfiguration, m.channel)
	}
	if m.retries < 0 {
		m.retries = 0
	}

	m.source = NewSource(ep, m.httpClient, platform.UserAgent(loc.Manifest.ID, current.String()))
	return m, nil
}

// State returns a snapshot of the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentVersion is the version of the running installation.
func (m *Manager) CurrentVersion() *Version { return m.current }

// AppID is the id of the installed application.
func (m *Manager) AppID() string { return m.loc.Manifest.ID }

// Channel is the release channel Check queries.
func (m *Manager) Channel() string { return m.channel }

// Endpoint is the feed the manager talks to.
func (m *Manager) Endpoint() Endpoint { return m.endpoint }

func (m *Manager) setState(kind StateKind, info *UpdateInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Kind: kind, Info: info}
}

func (m *Manager) acquire(op string) error {
	if !m.sem.TryAcquire(1) {
		m.log.Warnf("%s rejected: %v", op, ErrBusy)
		return ErrBusy
	}
	return nil
}

// Check queries the feed and returns the update to install, or nil when the
// installation is up to date. Every successful call queries the feed again
// and replaces the recorded state, discarding anything staged by an earlier
// Download. A failed call leaves the state as it was.
func (m *Manager) Check(ctx context.Context) (*UpdateInfo, error) {
	if err := m.acquire("check"); err != nil {
		return nil, err
	}
	defer m.sem.Release(1)

	m.log.Infof("checking %s for updates on channel %s", m.source, m.channel)

	info, err := m.check(ctx)
	if err != nil {
		m.log.Errorf("update check failed: %v", err)
		return nil, err
	}

	if info == nil {
		m.log.Warnf("no update available, %s is up to date", m.current)
		m.setState(StateIdle, nil)
		return nil, nil
	}

	if info.IsDowngrade() {
		m.log.Infof("found release %s (downgrade from %s)", info.Version(), m.current)
	} else {
		m.log.Infof("found update %s -> %s", m.current, info.Version())
	}
	m.setState(StateChecked, info)
	return info, nil
}

func (m *Manager) check(ctx context.Context) (*UpdateInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	feed, err := m.source.Feed(ctx, FeedRequest{
		Channel:        m.channel,
		AppID:          m.loc.Manifest.ID,
		CurrentVersion: m.current.String(),
	})
	if err != nil {
		return nil, err
	}

	var (
		latest        *Version
		latestAsset   Asset
		foundAnything bool
	)
	for _, asset := range feed.Assets {
		if asset.PackageID != "" && !strings.EqualFold(asset.PackageID, m.loc.Manifest.ID) {
			m.log.Debugf("skipping asset %s for package %s", asset.FileName, asset.PackageID)
			continue
		}

		at, err := asset.assetType()
		if err != nil {
			m.log.Debugf("skipping asset %s: %v", asset.FileName, err)
			continue
		}
		if at.IsDelta() {
			m.log.Debugf("skipping delta package %s", asset.FileName)
			continue
		}

		if asset.Version == "" {
			return nil, fmt.Errorf("%w: asset %q has no version", ErrFeedFormat, asset.FileName)
		}
		if err := validFileName(asset.FileName); err != nil {
			return nil, fmt.Errorf("%w: asset version %s: %v", ErrFeedFormat, asset.Version, err)
		}
		v, err := ParseVersion(asset.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: asset %q: %v", ErrFeedFormat, asset.FileName, err)
		}
		if asset.Size < 0 {
			return nil, fmt.Errorf("%w: asset %q has negative size", ErrFeedFormat, asset.FileName)
		}

		m.log.Debugf("found full release %s (%s)", asset.FileName, v)
		if !foundAnything || v.IsGreaterThan(latest) {
			latest = v
			latestAsset = asset
			foundAnything = true
		}
	}

	if !foundAnything {
		return nil, nil
	}

	switch cmp := latest.Compare(m.current); {
	case cmp > 0:
		return newUpdateInfo(latest, latestAsset, false), nil
	case cmp < 0 && m.allowDowngrade:
		return newUpdateInfo(latest, latestAsset, true), nil
	case cmp == 0 && m.allowDowngrade && m.channel != m.appChannel:
		return newUpdateInfo(latest, latestAsset, true), nil
	default:
		return nil, nil
	}
}

// Download stages the package of info, which must be the info returned by
// the last Check. On failure the state stays Checked(info) so the download
// can be retried.
func (m *Manager) Download(ctx context.Context, info *UpdateInfo) error {
	if err := m.acquire("download"); err != nil {
		return err
	}
	defer m.sem.Release(1)

	st := m.State()
	if info == nil || (st.Kind != StateChecked && st.Kind != StateDownloaded) || !st.Info.Equal(info) {
		err := fmt.Errorf("%w: download requires the update returned by the last check (state is %s)", ErrPrecondition, st)
		m.log.Warnf("download rejected: %v", err)
		return err
	}
	// Use the recorded info so the caller's copy is never relied upon.
	info = st.Info

	if err := m.download(ctx, info); err != nil {
		m.log.Errorf("download of %s failed: %v", info.FileName(), err)
		m.setState(StateChecked, info)
		return err
	}

	m.setState(StateDownloaded, info)
	return nil
}

func (m *Manager) download(ctx context.Context, info *UpdateInfo) error {
	dir := m.loc.PackagesDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create staging directory: %v", ErrDownloadIncomplete, err)
	}
	target := filepath.Join(dir, info.FileName())

	if _, err := os.Stat(target); err == nil {
		if verr := verifyPackage(target, info); verr == nil {
			m.log.Infof("package %s already staged, skipping download", info.FileName())
			m.removeStalePackages(target)
			m.reportProgress(100)
			return nil
		}
		m.log.Warnf("staged package %s does not verify, downloading again", info.FileName())
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("%w: failed to remove stale package: %v", ErrDownloadIncomplete, err)
		}
	}

	m.log.Infof("downloading %s", info.FileName())

	d := &downloader{
		source:       m.source,
		retries:      m.retries,
		retryDelay:   m.retryDelay,
		stallTimeout: m.timeout,
		progress:     m.reportProgress,
		log:          m.log,
	}
	if err := d.download(ctx, info, target); err != nil {
		return err
	}

	m.log.Infof("downloaded %s to %s", info.FileName(), target)
	m.removeStalePackages(target)
	return nil
}

func (m *Manager) reportProgress(pct int) {
	m.log.Infof("download progress %d%%", pct)
	if m.progress != nil {
		m.progress(pct)
	}
}

func (m *Manager) removeStalePackages(keep string) {
	entries, err := os.ReadDir(m.loc.PackagesDir())
	if err != nil {
		m.log.Warnf("failed to list staged packages: %v", err)
		return
	}
	for _, e := range entries {
		path := filepath.Join(m.loc.PackagesDir(), e.Name())
		if e.IsDir() || path == keep {
			continue
		}
		m.log.Infof("removing old package %s", e.Name())
		if err := os.Remove(path); err != nil {
			m.log.Warnf("failed to remove old package %s: %v", e.Name(), err)
		}
	}
}

// ApplyAndRestart switches the installation to the package staged for info
// and relaunches the application. On success it does not return: the exit
// function ends the process. The installation is only switched by atomically
// replacing its version pointer, so every failure before that point leaves
// the previous version active and runnable.
func (m *Manager) ApplyAndRestart(ctx context.Context, info *UpdateInfo) error {
	if err := m.acquire("apply"); err != nil {
		return err
	}
	defer m.sem.Release(1)

	st := m.State()
	if info == nil || st.Kind != StateDownloaded || !st.Info.Equal(info) {
		err := fmt.Errorf("%w: apply requires the update returned by the last download (state is %s)", ErrPrecondition, st)
		m.log.Warnf("apply rejected: %v", err)
		return err
	}
	info = st.Info

	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("%w: %v", ErrApplyFailed, err)
		m.log.Errorf("apply of %s failed: %v", info.Version(), err)
		return err
	}

	m.setState(StateApplying, info)
	err := m.apply(info)
	if err == nil {
		m.log.Infof("exiting to complete the update to %s", info.Version())
		m.exit(0)
		return nil
	}

	m.log.Errorf("apply of %s failed: %v", info.Version(), err)
	switch {
	case errors.Is(err, errPackageInvalid):
		m.setState(StateChecked, info)
	case errors.Is(err, ErrApplyFatal):
		// The installation no longer matches what was checked.
		m.setState(StateIdle, nil)
	default:
		m.setState(StateDownloaded, info)
	}
	return err
}

// errPackageInvalid marks an apply that failed because the staged package
// is gone or corrupt, so it has to be downloaded again.
var errPackageInvalid = errors.New("staged package is missing or corrupt")

func (m *Manager) apply(info *UpdateInfo) error {
	return m.withLock(func() error {
		pkg := filepath.Join(m.loc.PackagesDir(), info.FileName())
		if err := verifyPackage(pkg, info); err != nil {
			return fmt.Errorf("%w: %w: %v", ErrApplyFailed, errPackageInvalid, err)
		}
		return m.swapAndRestart(pkg, info.Version().Original())
	})
}

// withLock runs fn while holding the installation's update lock, which
// keeps other processes from applying at the same time.
func (m *Manager) withLock(fn func() error) error {
	lock, err := m.loc.AcquireLock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			m.log.Warnf("failed to release update lock: %v", err)
		}
	}()

	return fn()
}

// swapAndRestart activates the package at pkg and relaunches the new
// version. Relaunch failures roll the installation back.
func (m *Manager) swapAndRestart(pkg, version string) error {
	m.log.Infof("applying %s", version)
	res, err := m.loc.Swap(pkg, version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}
	m.log.Infof("activated %s, previous version %s kept in %s", res.NewDir, res.PreviousVersion, res.PreviousDir)

	env := []string{
		install.EnvRestarted + "=1",
		install.EnvPreviousDir + "=" + res.PreviousDir,
		install.EnvUpdatedFrom + "=" + res.PreviousVersion,
	}
	if err := m.restarter.Restart(m.loc.MainExePath(), m.restartArgs, env); err != nil {
		m.log.Errorf("failed to relaunch %s: %v", m.loc.MainExePath(), err)
		if rbErr := m.loc.Rollback(res); rbErr != nil {
			return fmt.Errorf("%w: relaunch failed (%v) and rollback failed: %v", ErrApplyFatal, err, rbErr)
		}
		m.log.Warnf("rolled back to %s", res.PreviousDir)
		return fmt.Errorf("%w: relaunch failed: %v", ErrApplyFailed, err)
	}
	return nil
}

// ApplyPending applies a package that an earlier run downloaded but never
// applied, as reported by PendingUpdate. It reports false when there is
// nothing to apply. Like ApplyAndRestart it exits the process on success.
func (m *Manager) ApplyPending(ctx context.Context) (bool, error) {
	if err := m.acquire("apply pending"); err != nil {
		return false, err
	}
	defer m.sem.Release(1)

	manifest, pkg, ok := m.PendingUpdate()
	if !ok {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("%w: %v", ErrApplyFailed, err)
		m.log.Errorf("apply of pending update %s failed: %v", manifest.Version, err)
		return true, err
	}

	m.log.Infof("found pending update %s in %s", manifest.Version, filepath.Base(pkg))
	prev := m.State()
	m.setState(StateApplying, prev.Info)

	err := m.withLock(func() error {
		return m.swapAndRestart(pkg, manifest.Version)
	})
	if err == nil {
		m.log.Infof("exiting to complete the update to %s", manifest.Version)
		m.exit(0)
		return true, nil
	}

	m.log.Errorf("apply of pending update %s failed: %v", manifest.Version, err)
	if errors.Is(err, ErrApplyFatal) {
		m.setState(StateIdle, nil)
	} else {
		m.setState(prev.Kind, prev.Info)
	}
	return true, err
}

// PendingUpdate reports a package staged by an earlier run whose version is
// newer than the installed one, along with its path.
func (m *Manager) PendingUpdate() (*install.Manifest, string, bool) {
	entries, err := os.ReadDir(m.loc.PackagesDir())
	if err != nil {
		return nil, "", false
	}

	var (
		best     *install.Manifest
		bestPath string
		bestVer  *Version
	)
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), partialSuffix) {
			continue
		}
		path := filepath.Join(m.loc.PackagesDir(), e.Name())
		manifest, err := install.ReadPackageManifest(path)
		if err != nil {
			m.log.Debugf("ignoring staged file %s: %v", e.Name(), err)
			continue
		}
		if manifest.ID != m.loc.Manifest.ID {
			continue
		}
		v, err := ParseVersion(manifest.Version)
		if err != nil || !v.IsGreaterThan(m.current) {
			continue
		}
		if bestVer == nil || v.IsGreaterThan(bestVer) {
			best, bestPath, bestVer = manifest, path, v
		}
	}
	return best, bestPath, best != nil
}

func validFileName(name string) error {
	switch {
	case name == "":
		return errors.New("missing file name")
	case name == "." || name == "..":
		return fmt.Errorf("invalid file name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("file name %q must not contain a path", name)
	case strings.HasSuffix(name, partialSuffix):
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}
