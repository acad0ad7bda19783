package config

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/hatch/internal/update"
)

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for invalid values. All problems are
// reported together.
func Validate(c *Config) error {
	var errs []ValidationError

	errs = append(errs, validateFeed(c.Feed)...)
	errs = append(errs, validateInstall(c.Install)...)
	errs = append(errs, validateLog(c.Log)...)

	if c.UI.PollInterval <= 0 {
		errs = append(errs, ValidationError{"ui.poll_interval", "must be positive"})
	}

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(msgs, "\n  - "))
	}

	return nil
}

func validateFeed(f FeedConfig) []ValidationError {
	var errs []ValidationError

	// The URL may also come from the command line, so empty is allowed here.
	if f.URL != "" {
		if _, err := update.ParseEndpoint(f.URL); err != nil {
			errs = append(errs, ValidationError{"feed.url", err.Error()})
		}
	}
	if strings.ContainsAny(f.Channel, `/\?#`) {
		errs = append(errs, ValidationError{"feed.channel", fmt.Sprintf("invalid channel %q", f.Channel)})
	}
	if f.Timeout <= 0 {
		errs = append(errs, ValidationError{"feed.timeout", "must be positive"})
	}
	if f.Retries < 0 {
		errs = append(errs, ValidationError{"feed.retries", "must not be negative"})
	}

	return errs
}

func validateInstall(i InstallConfig) []ValidationError {
	if i.KeepVersions < 0 {
		return []ValidationError{{"install.keep_versions", "must not be negative"}}
	}
	return nil
}

func validateLog(l LogConfig) []ValidationError {
	var errs []ValidationError

	if l.Level != "" {
		if _, err := log.ParseLevel(l.Level); err != nil {
			errs = append(errs, ValidationError{"log.level", fmt.Sprintf("unknown level %q", l.Level)})
		}
	}
	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{"log.max_size_mb", "must not be negative"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{"log.max_backups", "must not be negative"})
	}

	return errs
}
