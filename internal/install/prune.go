package install

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	goversion "github.com/hashicorp/go-version"
)

// DefaultKeepVersions is the number of inactive versions kept after an update.
const DefaultKeepVersions = 0

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []string
	Kept    int
}

// InactiveVersions lists the installed version directories other than the
// active one, newest first.
func (l *Locator) InactiveVersions() ([]string, error) {
	entries, err := os.ReadDir(l.RootDir)
	if err != nil {
		return nil, err
	}

	type versionDir struct {
		name string
		v    *goversion.Version
	}
	var dirs []versionDir

	current := filepath.Base(l.CurrentDir)
	for _, e := range entries {
		if !e.IsDir() || e.Name() == current {
			continue
		}
		v, ok := parseVersionDir(e.Name())
		if !ok {
			continue
		}
		dirs = append(dirs, versionDir{name: e.Name(), v: v})
	}

	sort.Slice(dirs, func(i, j int) bool {
		if c := dirs[i].v.Compare(dirs[j].v); c != 0 {
			return c > 0
		}
		return dirs[i].name > dirs[j].name
	})

	names := make([]string, len(dirs))
	for i, d := range dirs {
		names[i] = d.name
	}
	return names, nil
}

// PruneVersions removes inactive version directories, keeping only the
// newest keep of them. Every removal is attempted; failures are aggregated.
func (l *Locator) PruneVersions(keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	dirs, err := l.InactiveVersions()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}
	if len(dirs) <= keep {
		result.Kept = len(dirs)
		return result, nil
	}

	result.Kept = keep
	var merr *multierror.Error
	for _, name := range dirs[keep:] {
		if err := os.RemoveAll(filepath.Join(l.RootDir, name)); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("failed to remove %s: %w", name, err))
			continue
		}
		result.Deleted = append(result.Deleted, name)
	}

	return result, merr.ErrorOrNil()
}

// RemoveTempDirs deletes extraction directories left behind by interrupted
// applies.
func (l *Locator) RemoveTempDirs() ([]string, error) {
	entries, err := os.ReadDir(l.RootDir)
	if err != nil {
		return nil, err
	}

	var removed []string
	var merr *multierror.Error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), tmpSuffix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(l.RootDir, e.Name())); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("failed to remove %s: %w", e.Name(), err))
			continue
		}
		removed = append(removed, e.Name())
	}
	return removed, merr.ErrorOrNil()
}

// RemovePackages deletes the staging directory.
func (l *Locator) RemovePackages() error {
	return os.RemoveAll(l.PackagesDir())
}

func parseVersionDir(name string) (*goversion.Version, bool) {
	if !strings.HasPrefix(name, versionDirPrefix) || strings.HasSuffix(name, tmpSuffix) {
		return nil, false
	}
	raw := strings.TrimPrefix(name, versionDirPrefix)
	if i := strings.IndexByte(raw, '_'); i >= 0 {
		raw = raw[:i]
	}
	v, err := goversion.NewVersion(raw)
	if err != nil {
		return nil, false
	}
	return v, true
}
