// Package output renders command results as text, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Writer handles output in the specified format.
type Writer struct {
	format Format
	w      io.Writer
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{format: format, w: w}
}

// Format returns the configured format.
func (w *Writer) Format() Format {
	return w.format
}

// Write outputs the given value in the configured format. Text output uses
// v's String method when it has one.
func (w *Writer) Write(v any) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		if s, ok := v.(fmt.Stringer); ok {
			_, err := fmt.Fprintln(w.w, s.String())
			return err
		}
		_, err := fmt.Fprintf(w.w, "%+v\n", v)
		return err
	}
}

// Line writes a plain progress or log line. It is suppressed for JSON and
// YAML so that machine-readable output stays a single document.
func (w *Writer) Line(format string, args ...any) {
	if w.format != FormatText {
		return
	}
	_, _ = fmt.Fprintf(w.w, format+"\n", args...)
}

// ParseFormat parses a format string into a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}

// CheckReport is the result of an update check.
type CheckReport struct {
	AppID           string `json:"app_id" yaml:"app_id"`
	CurrentVersion  string `json:"current_version" yaml:"current_version"`
	Channel         string `json:"channel" yaml:"channel"`
	UpdateAvailable bool   `json:"update_available" yaml:"update_available"`
	Version         string `json:"version,omitempty" yaml:"version,omitempty"`
	FileName        string `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	Size            int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Downgrade       bool   `json:"downgrade,omitempty" yaml:"downgrade,omitempty"`
	Notes           string `json:"notes,omitempty" yaml:"notes,omitempty"`
	// Package is the staged package path once downloaded.
	Package string `json:"package,omitempty" yaml:"package,omitempty"`
}

func (r CheckReport) String() string {
	if !r.UpdateAvailable {
		return fmt.Sprintf("%s %s is up to date (channel %s)", r.AppID, r.CurrentVersion, r.Channel)
	}

	var b strings.Builder
	verb := "Update available"
	if r.Downgrade {
		verb = "Downgrade available"
	}
	fmt.Fprintf(&b, "%s: %s -> %s\n", verb, r.CurrentVersion, r.Version)
	fmt.Fprintf(&b, "  package: %s", r.FileName)
	if r.Size > 0 {
		fmt.Fprintf(&b, " (%s)", humanSize(r.Size))
	}
	if r.Package != "" {
		fmt.Fprintf(&b, "\n  staged:  %s", r.Package)
	}
	if notes := strings.TrimSpace(r.Notes); notes != "" {
		b.WriteString("\n\n")
		b.WriteString(notes)
	}
	return b.String()
}

// StatusReport describes the local installation.
type StatusReport struct {
	AppID          string   `json:"app_id" yaml:"app_id"`
	Title          string   `json:"title" yaml:"title"`
	Version        string   `json:"version" yaml:"version"`
	Channel        string   `json:"channel" yaml:"channel"`
	Root           string   `json:"root" yaml:"root"`
	CurrentDir     string   `json:"current_dir" yaml:"current_dir"`
	Feed           string   `json:"feed,omitempty" yaml:"feed,omitempty"`
	PendingVersion string   `json:"pending_version,omitempty" yaml:"pending_version,omitempty"`
	PendingPackage string   `json:"pending_package,omitempty" yaml:"pending_package,omitempty"`
	Inactive       []string `json:"inactive_versions,omitempty" yaml:"inactive_versions,omitempty"`
}

func (r StatusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) %s\n", r.Title, r.AppID, r.Version)
	fmt.Fprintf(&b, "  channel:  %s\n", r.Channel)
	fmt.Fprintf(&b, "  root:     %s\n", r.Root)
	fmt.Fprintf(&b, "  current:  %s\n", r.CurrentDir)
	if r.Feed != "" {
		fmt.Fprintf(&b, "  feed:     %s\n", r.Feed)
	}
	if r.PendingVersion != "" {
		fmt.Fprintf(&b, "  pending:  %s (%s)\n", r.PendingVersion, r.PendingPackage)
	}
	if len(r.Inactive) > 0 {
		fmt.Fprintf(&b, "  inactive: %s\n", strings.Join(r.Inactive, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
