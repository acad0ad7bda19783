package install_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/hatch/internal/install"
	"github.com/adamancini/hatch/internal/install/installtest"
)

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"valid", "id = 'demo'\nversion = '1.2.0'\nmain_exe = 'demo'\n", ""},
		{"missing id", "version = '1.2.0'\nmain_exe = 'demo'\n", "missing id"},
		{"missing version", "id = 'demo'\nmain_exe = 'demo'\n", "missing version"},
		{"bad version", "id = 'demo'\nversion = 'one'\nmain_exe = 'demo'\n", "invalid version"},
		{"missing exe", "id = 'demo'\nversion = '1.2.0'\n", "missing main_exe"},
		{"not toml", "id = [", "TOML parse error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := install.ParseManifest([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "demo", m.Title, "title defaults to id")
		})
	}
}

func TestManifestSameVersion(t *testing.T) {
	m := installtest.Manifest("demo", "1.2.0")
	assert.True(t, m.SameVersion("1.2.0"))
	assert.True(t, m.SameVersion("v1.2"))
	assert.False(t, m.SameVersion("1.2.1"))
	assert.False(t, m.SameVersion("garbage"))
}

func TestInitializeAndLocate(t *testing.T) {
	loc := installtest.NewInstall(t, installtest.Manifest("demo", "1.0.0"))

	assert.Equal(t, filepath.Join(loc.RootDir, "app-1.0.0"), loc.CurrentDir)
	assert.Equal(t, filepath.Join(loc.CurrentDir, "app"), loc.MainExePath())
	assert.Equal(t, filepath.Join(loc.RootDir, "packages"), loc.PackagesDir())
	assert.FileExists(t, loc.MainExePath())

	again, err := install.NewLocator(loc.RootDir)
	require.NoError(t, err)
	assert.Equal(t, loc.CurrentDir, again.CurrentDir)
	assert.Equal(t, "1.0.0", again.Manifest.Version)
}

func TestNewLocatorNotInstalled(t *testing.T) {
	dir := t.TempDir()

	_, err := install.NewLocator(dir)
	assert.True(t, errors.Is(err, install.ErrNotInstalled))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "current"), []byte("../escape\n"), 0o644))
	_, err = install.NewLocator(dir)
	assert.True(t, errors.Is(err, install.ErrNotInstalled))

	require.NoError(t, install.WritePointer(dir, "app-1.0.0"))
	_, err = install.NewLocator(dir)
	assert.True(t, errors.Is(err, install.ErrNotInstalled), "pointer to a missing version")
}

func TestWritePointerLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, install.WritePointer(dir, "app-1.0.0"))
	require.NoError(t, install.WritePointer(dir, "app-2.0.0"))

	name, err := install.ReadPointer(dir)
	require.NoError(t, err)
	assert.Equal(t, "app-2.0.0", name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocatorContains(t *testing.T) {
	loc := installtest.NewInstall(t, installtest.Manifest("demo", "1.0.0"))

	assert.True(t, loc.Contains(filepath.Join(loc.RootDir, "app-0.9.0")))
	assert.False(t, loc.Contains(loc.RootDir))
	assert.False(t, loc.Contains(filepath.Dir(loc.RootDir)))
	assert.False(t, loc.Contains(filepath.Join(loc.RootDir, "..", "other")))
}

func TestSwap(t *testing.T) {
	loc := installtest.NewInstall(t, installtest.Manifest("demo", "1.0.0"))
	pkg := filepath.Join(t.TempDir(), "demo-1.1.0-full.nupkg")
	installtest.WritePackage(t, pkg, installtest.Manifest("demo", "1.1.0"), map[string]string{
		"lib/data.txt": "payload",
	})

	res, err := loc.Swap(pkg, "1.1.0")
	require.NoError(t, err)

	assert.Equal(t, "app-1.0.0", res.PreviousDir)
	assert.Equal(t, "1.0.0", res.PreviousVersion)
	assert.Equal(t, "app-1.1.0", res.NewDir)
	assert.Equal(t, "1.1.0", loc.Manifest.Version)

	name, err := install.ReadPointer(loc.RootDir)
	require.NoError(t, err)
	assert.Equal(t, "app-1.1.0", name)

	data, err := os.ReadFile(filepath.Join(loc.CurrentDir, "lib", "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.DirExists(t, filepath.Join(loc.RootDir, "app-1.0.0"), "old version stays until finalize")
	assertNoTempDirs(t, loc.RootDir)
}

func TestSwapFailuresLeaveOldVersion(t *testing.T) {
	tests := []struct {
		name    string
		build   func(t *testing.T, path string)
		version string
		wantErr string
	}{
		{
			name: "wrong app id",
			build: func(t *testing.T, path string) {
				installtest.WritePackage(t, path, installtest.Manifest("other", "1.1.0"), nil)
			},
			version: "1.1.0",
			wantErr: "not \"demo\"",
		},
		{
			name: "version mismatch",
			build: func(t *testing.T, path string) {
				installtest.WritePackage(t, path, installtest.Manifest("demo", "1.2.0"), nil)
			},
			version: "1.1.0",
			wantErr: "expected 1.1.0",
		},
		{
			name: "not a zip",
			build: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
			},
			version: "1.1.0",
			wantErr: "failed to open package",
		},
		{
			name: "missing package",
			build: func(t *testing.T, path string) {},
			version: "1.1.0",
			wantErr: "failed to open package",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := installtest.NewInstall(t, installtest.Manifest("demo", "1.0.0"))
			pkg := filepath.Join(t.TempDir(), "pkg.nupkg")
			tt.build(t, pkg)

			_, err := loc.Swap(pkg, tt.version)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			name, err := install.ReadPointer(loc.RootDir)
			require.NoError(t, err)
			assert.Equal(t, "app-1.0.0", name)
			assert.Equal(t, "1.0.0", loc.Manifest.Version)
			assert.FileExists(t, loc.MainExePath())
			assertNoTempDirs(t, loc.RootDir)
		})
	}
}

func TestSwapSameVersion(t *testing.T) {
	loc := installtest.NewInstall(t, installtest.Manifest("demo", "1.0.0"))
	pkg := filepath.Join(t.TempDir(), "pkg.nupkg")
	installtest.WritePackage(t, pkg, installtest.Manifest("demo", "1.0.0"), nil)

	res, err := loc.Swap(pkg, "1.0.0")
	require.NoError(t, err)
	assert.NotEqual(t, res.PreviousDir, res.NewDir)
	assert.True(t, strings.HasPrefix(res.NewDir, "app-1.0.0_"))
	assert.DirExists(t, filepath.Join(loc.RootDir, res.PreviousDir))
}

func TestRollback(t *testing.T) {
	loc := installtest.NewInstall(t, installtest.Manifest("demo", "1.0.0"))
	pkg := filepath.Join(t.TempDir(), "pkg.nupkg")
	installtest.WritePackage(t, pkg, installtest.Manifest("demo", "2.0.0"), nil)

	res, err := loc.Swap(pkg, "2.0.0")
	require.NoError(t, err)
	require.NoError(t, loc.Rollback(res))

	name, err := install.ReadPointer(loc.RootDir)
	require.NoError(t, err)
	assert.Equal(t, "app-1.0.0", name)
	assert.Equal(t, "1.0.0", loc.Manifest.Version)
	assert.Equal(t, filepath.Join(loc.RootDir, "app-1.0.0"), loc.CurrentDir)
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	for _, name := range []string{"../evil.txt", "a/../../evil.txt"} {
		t.Run(name, func(t *testing.T) {
			pkg := filepath.Join(t.TempDir(), "evil.zip")
			f, err := os.Create(pkg)
			require.NoError(t, err)
			zw := zip.NewWriter(f)
			w, err := zw.Create(name)
			require.NoError(t, err)
			_, err = w.Write([]byte("x"))
			require.NoError(t, err)
			require.NoError(t, zw.Close())
			require.NoError(t, f.Close())

			dest := filepath.Join(t.TempDir(), "dest")
			require.NoError(t, os.MkdirAll(dest, 0o755))

			err = install.ExtractPackage(pkg, dest)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "illegal")
			assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil.txt"))
		})
	}
}

func TestReadPackageManifest(t *testing.T) {
	pkg := filepath.Join(t.TempDir(), "pkg.nupkg")
	installtest.WritePackage(t, pkg, installtest.Manifest("demo", "3.1.4"), nil)

	m, err := install.ReadPackageManifest(pkg)
	require.NoError(t, err)
	assert.Equal(t, "demo", m.ID)
	assert.Equal(t, "3.1.4", m.Version)
}

func TestAcquireLock(t *testing.T) {
	loc := installtest.NewInstall(t, installtest.Manifest("demo", "1.0.0"))

	lock, err := loc.AcquireLock()
	require.NoError(t, err)

	_, err = loc.AcquireLock()
	assert.ErrorIs(t, err, install.ErrLocked)

	require.NoError(t, lock.Release())

	again, err := loc.AcquireLock()
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestPruneVersions(t *testing.T) {
	loc := installtest.NewInstall(t, installtest.Manifest("demo", "2.0.0"))
	for _, name := range []string{"app-1.0.0", "app-1.10.0", "app-1.9.0", "app-0.5.0", "app-1.0.0.abc.tmp", "unrelated"} {
		require.NoError(t, os.MkdirAll(filepath.Join(loc.RootDir, name), 0o755))
	}

	dirs, err := loc.InactiveVersions()
	require.NoError(t, err)
	assert.Equal(t, []string{"app-1.10.0", "app-1.9.0", "app-1.0.0", "app-0.5.0"}, dirs)

	result, err := loc.PruneVersions(1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Kept)
	assert.Equal(t, []string{"app-1.9.0", "app-1.0.0", "app-0.5.0"}, result.Deleted)

	assert.DirExists(t, filepath.Join(loc.RootDir, "app-1.10.0"))
	assert.DirExists(t, loc.CurrentDir)
	assert.DirExists(t, filepath.Join(loc.RootDir, "unrelated"))

	_, err = loc.PruneVersions(-1)
	assert.Error(t, err)
}

func TestRemoveTempDirs(t *testing.T) {
	loc := installtest.NewInstall(t, installtest.Manifest("demo", "1.0.0"))
	require.NoError(t, os.MkdirAll(filepath.Join(loc.RootDir, "app-1.1.0.1234.tmp", "sub"), 0o755))

	removed, err := loc.RemoveTempDirs()
	require.NoError(t, err)
	assert.Equal(t, []string{"app-1.1.0.1234.tmp"}, removed)
	assertNoTempDirs(t, loc.RootDir)
}

func TestProcessRestarterMissingExe(t *testing.T) {
	err := install.ProcessRestarter{}.Restart(filepath.Join(t.TempDir(), "nope"), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "main executable not found")
}

func assertNoTempDirs(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover %s", e.Name())
	}
}
