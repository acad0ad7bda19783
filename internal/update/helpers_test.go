package update

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/hatch/internal/install"
	"github.com/adamancini/hatch/internal/install/installtest"
	"github.com/adamancini/hatch/internal/logrelay"
)

const testAppID = "demo"

// testFeed is an in-memory feed host.
type testFeed struct {
	mu       sync.Mutex
	assets   []Asset
	files    map[string][]byte
	raw      string // served verbatim as the feed when set
	status   int
	pkgFails int // package requests to fail with 503 before serving
	pkgHits  int
	queries  []*http.Request
	block    chan struct{}
	entered  chan struct{}
}

func newTestFeed(t *testing.T) (*testFeed, *httptest.Server) {
	t.Helper()

	f := &testFeed{files: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *testFeed) serve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")

	if strings.HasPrefix(name, "releases.") {
		f.mu.Lock()
		f.queries = append(f.queries, r)
		block, entered := f.block, f.entered
		status, raw := f.status, f.raw
		feed := Feed{Assets: append([]Asset(nil), f.assets...)}
		f.mu.Unlock()

		if entered != nil {
			entered <- struct{}{}
		}
		if block != nil {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		if raw != "" {
			_, _ = io.WriteString(w, raw)
			return
		}
		_ = json.NewEncoder(w).Encode(feed)
		return
	}

	f.mu.Lock()
	f.pkgHits++
	fail := f.pkgFails > 0
	if fail {
		f.pkgFails--
	}
	data, ok := f.files[name]
	f.mu.Unlock()

	switch {
	case fail:
		w.WriteHeader(http.StatusServiceUnavailable)
	case !ok:
		http.NotFound(w, r)
	default:
		_, _ = w.Write(data)
	}
}

// addPackage builds a package for m, publishes it and returns its asset.
func (f *testFeed) addPackage(t *testing.T, m *install.Manifest, files map[string]string) Asset {
	t.Helper()

	name := fmt.Sprintf("%s-%s-full.nupkg", m.ID, m.Version)
	path := filepath.Join(t.TempDir(), name)
	installtest.WritePackage(t, path, m, files)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read package: %v", err)
	}
	sum := sha256.Sum256(data)
	asset := Asset{
		PackageID: m.ID,
		Version:   m.Version,
		Type:      "Full",
		FileName:  name,
		SHA256:    hex.EncodeToString(sum[:]),
		Size:      int64(len(data)),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = data
	f.assets = append(f.assets, asset)
	return asset
}

func (f *testFeed) setFile(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = data
}

func (f *testFeed) file(name string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.files[name]...)
}

func (f *testFeed) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pkgHits
}

func (f *testFeed) lastQuery() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return nil
	}
	return f.queries[len(f.queries)-1]
}

// testLogger returns a logger whose Info and above lines land in the relay.
func testLogger() (*log.Entry, *logrelay.Relay) {
	relay := logrelay.New()
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(log.DebugLevel)
	logger.AddHook(relay.Hook())
	return log.NewEntry(logger), relay
}

// restartRecorder records relaunches instead of starting processes.
type restartRecorder struct {
	mu    sync.Mutex
	exe   string
	args  []string
	env   []string
	calls int
	err   error
}

func (r *restartRecorder) Restart(exe string, args []string, env []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.exe, r.args, r.env = exe, args, env
	return r.err
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) calls() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

type testManager struct {
	*Manager
	loc       *install.Locator
	relay     *logrelay.Relay
	restarter *restartRecorder
	exits     *exitRecorder
}

func newTestManager(t *testing.T, installed, endpoint string, opts ...Option) *testManager {
	t.Helper()

	loc := installtest.NewInstall(t, installtest.Manifest(testAppID, installed))
	entry, relay := testLogger()
	tm := &testManager{loc: loc, relay: relay, restarter: &restartRecorder{}, exits: &exitRecorder{}}

	base := []Option{
		WithLogger(entry),
		WithRetries(0, time.Millisecond),
		WithTimeout(5 * time.Second),
		WithChannel("test"),
		WithRestarter(tm.restarter),
		WithExit(tm.exits.exit),
	}
	m, err := NewManager(endpoint, loc, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	tm.Manager = m
	return tm
}

func (tm *testManager) logLines() []string {
	var out []string
	for _, l := range tm.relay.DrainAll() {
		out = append(out, l.String())
	}
	return out
}

func pointer(t *testing.T, loc *install.Locator) string {
	t.Helper()
	name, err := install.ReadPointer(loc.RootDir)
	if err != nil {
		t.Fatalf("ReadPointer() error = %v", err)
	}
	return name
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("ReadDir(%s) error = %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
