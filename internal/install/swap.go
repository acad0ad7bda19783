package install

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SwapResult records what a Swap changed so it can be rolled back.
type SwapResult struct {
	PreviousDir     string
	PreviousVersion string
	NewDir          string
	NewVersion      string

	previousManifest *Manifest
}

// Swap installs the package at pkgPath as version and makes it the active
// version. The package is extracted into a uniquely named temporary
// directory first; the installation only changes when the "current" pointer
// is replaced, so any failure before that leaves the previous version
// untouched and runnable.
func (l *Locator) Swap(pkgPath, version string) (*SwapResult, error) {
	tmpDir := filepath.Join(l.RootDir, VersionDirName(version)+"."+uuid.NewString()+tmpSuffix)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	if err := ExtractPackage(pkgPath, tmpDir); err != nil {
		return nil, err
	}

	manifest, err := ReadManifest(filepath.Join(tmpDir, ManifestFile))
	if err != nil {
		return nil, err
	}
	if manifest.ID != l.Manifest.ID {
		return nil, fmt.Errorf("package is for %q, not %q", manifest.ID, l.Manifest.ID)
	}
	if !manifest.SameVersion(version) {
		return nil, fmt.Errorf("package contains version %s, expected %s", manifest.Version, version)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, manifest.MainExe)); err != nil {
		return nil, fmt.Errorf("package is missing main executable %s", manifest.MainExe)
	}

	targetDir := l.freeVersionDir(manifest.Version)
	if err := os.Rename(tmpDir, targetDir); err != nil {
		return nil, fmt.Errorf("failed to move new version into place: %w", err)
	}
	committed = true

	res := &SwapResult{
		PreviousDir:      filepath.Base(l.CurrentDir),
		PreviousVersion:  l.Manifest.Version,
		NewDir:           filepath.Base(targetDir),
		NewVersion:       manifest.Version,
		previousManifest: l.Manifest,
	}

	if err := WritePointer(l.RootDir, res.NewDir); err != nil {
		_ = os.RemoveAll(targetDir)
		return nil, fmt.Errorf("failed to activate new version: %w", err)
	}

	l.CurrentDir = targetDir
	l.Manifest = manifest
	return res, nil
}

// Rollback points the installation back at the version that was active
// before res. The new version directory is left for finalize to clean up.
func (l *Locator) Rollback(res *SwapResult) error {
	if err := WritePointer(l.RootDir, res.PreviousDir); err != nil {
		return fmt.Errorf("failed to restore %s: %w", res.PreviousDir, err)
	}

	l.CurrentDir = filepath.Join(l.RootDir, res.PreviousDir)
	if res.previousManifest != nil {
		l.Manifest = res.previousManifest
	}
	return nil
}

// freeVersionDir picks the directory for version. A stale directory of the
// same name is removed unless it is the active one, in which case a suffixed
// name is used instead.
func (l *Locator) freeVersionDir(version string) string {
	dir := l.VersionDir(version)
	if dir == l.CurrentDir {
		return dir + "_" + uuid.NewString()[:8]
	}
	_ = os.RemoveAll(dir)
	return dir
}
