// Package install owns the on-disk layout of an installed application:
//
//	<root>/current           name of the active version directory
//	<root>/app-<version>/    one directory per installed version
//	<root>/packages/         staging area for downloaded packages
//	<root>/.update.lock      held while an update is being applied
//
// Switching versions only ever rewrites the small "current" pointer file via
// rename, so an interrupted apply leaves the previous version runnable.
package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	pointerFile      = "current"
	packagesDirName  = "packages"
	lockFileName     = ".update.lock"
	versionDirPrefix = "app-"
	tmpSuffix        = ".tmp"
)

// ErrNotInstalled is returned when a directory does not hold an installation.
var ErrNotInstalled = errors.New("application is not installed")

// Locator resolves the paths of one installation.
type Locator struct {
	RootDir    string
	CurrentDir string
	Manifest   *Manifest
}

// NewLocator loads the installation rooted at root.
func NewLocator(root string) (*Locator, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	name, err := ReadPointer(root)
	if err != nil {
		return nil, err
	}

	current := filepath.Join(root, name)
	manifest, err := ReadManifest(filepath.Join(current, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotInstalled, err)
	}

	return &Locator{
		RootDir:    root,
		CurrentDir: current,
		Manifest:   manifest,
	}, nil
}

// AutoLocate finds the installation that contains the running executable.
// The executable lives in a version directory whose parent is the root.
func AutoLocate() (*Locator, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, err
	}

	root := filepath.Dir(filepath.Dir(exe))
	if _, err := os.Stat(filepath.Join(root, pointerFile)); err != nil {
		return nil, fmt.Errorf("%w: no %s pointer next to %s", ErrNotInstalled, pointerFile, filepath.Dir(exe))
	}
	return NewLocator(root)
}

// Initialize lays out a fresh installation of manifest under root, copying
// the files from srcDir (which may be empty) into the first version
// directory.
func Initialize(root string, manifest *Manifest, srcDir string) (*Locator, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	dir := filepath.Join(root, VersionDirName(manifest.Version))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if srcDir != "" {
		if err := copyTree(srcDir, dir); err != nil {
			return nil, err
		}
	}
	if err := manifest.Write(filepath.Join(dir, ManifestFile)); err != nil {
		return nil, err
	}
	if err := WritePointer(root, filepath.Base(dir)); err != nil {
		return nil, err
	}
	return NewLocator(root)
}

// PackagesDir is the staging directory for downloaded packages.
func (l *Locator) PackagesDir() string {
	return filepath.Join(l.RootDir, packagesDirName)
}

// LockPath is the file locked while an apply is running.
func (l *Locator) LockPath() string {
	return filepath.Join(l.RootDir, lockFileName)
}

// MainExePath is the executable of the active version.
func (l *Locator) MainExePath() string {
	return filepath.Join(l.CurrentDir, l.Manifest.MainExe)
}

// VersionDir is where version v is (or would be) installed.
func (l *Locator) VersionDir(v string) string {
	return filepath.Join(l.RootDir, VersionDirName(v))
}

// Contains reports whether path is strictly inside the installation root.
func (l *Locator) Contains(path string) bool {
	rel, err := filepath.Rel(l.RootDir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// VersionDirName is the directory name used for version v.
func VersionDirName(v string) string {
	return versionDirPrefix + strings.TrimPrefix(v, "v")
}

// ReadPointer returns the name of the active version directory.
func ReadPointer(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, pointerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s has no %s pointer", ErrNotInstalled, root, pointerFile)
		}
		return "", err
	}

	name := strings.TrimSpace(string(data))
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid %s pointer %q", ErrNotInstalled, pointerFile, name)
	}
	return name, nil
}

// WritePointer atomically points the installation at dirName: the new value
// is written to a temporary file which is then renamed over the pointer.
func WritePointer(root, dirName string) error {
	path := filepath.Join(root, pointerFile)
	tmpPath := path + tmpSuffix
	if err := os.WriteFile(tmpPath, []byte(dirName+"\n"), 0o644); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
