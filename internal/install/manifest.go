package install

import (
	"fmt"
	"os"

	goversion "github.com/hashicorp/go-version"
	"github.com/pelletier/go-toml/v2"
)

// ManifestFile is the name of the manifest shipped at the top of every
// package and kept in every installed version directory.
const ManifestFile = "hatch.toml"

// Manifest describes one packaged version of an application.
type Manifest struct {
	ID      string `toml:"id" json:"id" yaml:"id"`
	Version string `toml:"version" json:"version" yaml:"version"`
	Title   string `toml:"title,omitempty" json:"title,omitempty" yaml:"title,omitempty"`
	MainExe string `toml:"main_exe" json:"main_exe" yaml:"main_exe"`
	Channel string `toml:"channel,omitempty" json:"channel,omitempty" yaml:"channel,omitempty"`
}

// ParseManifest decodes and validates a TOML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("TOML parse error: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Title == "" {
		m.Title = m.ID
	}
	return &m, nil
}

// ReadManifest loads the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// Validate checks the fields every installed version must carry.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("manifest: missing id")
	}
	if m.Version == "" {
		return fmt.Errorf("manifest: missing version")
	}
	if _, err := goversion.NewVersion(m.Version); err != nil {
		return fmt.Errorf("manifest: invalid version %q: %w", m.Version, err)
	}
	if m.MainExe == "" {
		return fmt.Errorf("manifest: missing main_exe")
	}
	return nil
}

// Write stores the manifest as TOML at path.
func (m *Manifest) Write(path string) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SameVersion reports whether the manifest's version equals v, ignoring
// formatting differences such as a leading "v".
func (m *Manifest) SameVersion(v string) bool {
	a, err := goversion.NewVersion(m.Version)
	if err != nil {
		return false
	}
	b, err := goversion.NewVersion(v)
	if err != nil {
		return false
	}
	return a.Equal(b)
}
