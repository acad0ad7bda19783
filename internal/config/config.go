// Package config handles hatch configuration files: discovery, parsing in
// YAML, TOML or JSON, and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is returned by FindConfig when no configuration file exists
// in any of the searched locations.
var ErrNotFound = errors.New("no config file found")

// Config is the full hatch configuration.
type Config struct {
	Feed    FeedConfig    `yaml:"feed" toml:"feed" json:"feed"`
	Install InstallConfig `yaml:"install" toml:"install" json:"install"`
	Log     LogConfig     `yaml:"log" toml:"log" json:"log"`
	UI      UIConfig      `yaml:"ui" toml:"ui" json:"ui"`
}

// FeedConfig describes where updates come from.
type FeedConfig struct {
	// URL is an http(s) base URL, a file:// URL or an absolute directory.
	URL string `yaml:"url" toml:"url" json:"url"`
	// Channel overrides the channel from the installed manifest.
	Channel        string   `yaml:"channel" toml:"channel" json:"channel"`
	Timeout        Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	Retries        int      `yaml:"retries" toml:"retries" json:"retries"`
	AllowDowngrade bool     `yaml:"allow_downgrade" toml:"allow_downgrade" json:"allow_downgrade"`
}

// InstallConfig describes the local installation.
type InstallConfig struct {
	// Root is the installation root. Empty means the parent of the
	// running executable's directory.
	Root string `yaml:"root" toml:"root" json:"root"`
	// KeepVersions is how many inactive version directories survive
	// the post-update cleanup.
	KeepVersions int `yaml:"keep_versions" toml:"keep_versions" json:"keep_versions"`
	// AutoApply applies a package left staged by an earlier run when
	// hatch starts.
	AutoApply bool `yaml:"auto_apply" toml:"auto_apply" json:"auto_apply"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level" json:"level"`
	File       string `yaml:"file" toml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups" json:"max_backups"`
}

// UIConfig configures the terminal front end.
type UIConfig struct {
	// PollInterval is how often the log relay is drained while an
	// operation runs.
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval" json:"poll_interval"`
}

// Duration is a time.Duration written as "30s" or "5ms" in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q", string(text))
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when no file is present. Parsed
// files are layered on top of it.
func Default() Config {
	return Config{
		Feed: FeedConfig{
			Timeout: Duration(30 * time.Second),
			Retries: 3,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  1,
			MaxBackups: 1,
		},
		UI: UIConfig{
			PollInterval: Duration(5 * time.Millisecond),
		},
	}
}

// FindConfig locates the configuration file.
// Search order:
// 1. Explicit path (if provided)
// 2. HATCH_CONFIG environment variable
// 3. $XDG_CONFIG_HOME/hatch/
// 4. ~/.hatch/
func FindConfig(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv("HATCH_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("HATCH_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}

	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "hatch"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		if os.Getenv("XDG_CONFIG_HOME") == "" {
			dirs = append(dirs, filepath.Join(home, ".config", "hatch"))
		}
		dirs = append(dirs, filepath.Join(home, ".hatch"))
	}

	names := []string{"config.yaml", "config.yml", "config.toml", "config.json", "config"}
	for _, dir := range dirs {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}

	return "", ErrNotFound
}

// Load reads, parses and validates the configuration at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	format := detectFormat(path, content)
	cfg, err := parse(content, format)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Resolve is FindConfig followed by Load. A missing file is not an error
// unless a path was given explicitly; the defaults are returned instead.
func Resolve(explicitPath string) (*Config, string, error) {
	path, err := FindConfig(explicitPath)
	if errors.Is(err, ErrNotFound) {
		cfg := Default()
		return &cfg, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
