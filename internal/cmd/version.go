package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/update"
)

// versionInfo is the build metadata printed by the version command.
type versionInfo struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Date     string `json:"date" yaml:"date"`
	Platform string `json:"platform" yaml:"platform"`
	Channel  string `json:"channel" yaml:"channel"`
}

func (v versionInfo) String() string {
	return fmt.Sprintf("hatch version %s (commit %s, built %s, %s)", v.Version, v.Commit, v.Date, v.Platform)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the hatch build version, commit and platform, and the default
release channel for this platform.

Examples:
  hatch version
  hatch version -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			p := update.Detect()
			return output.NewWriter(cmd.OutOrStdout(), format).Write(versionInfo{
				Version:  hatchVersion,
				Commit:   hatchCommit,
				Date:     hatchDate,
				Platform: fmt.Sprintf("%s/%s (%s)", p.OS, p.Arch, runtime.Version()),
				Channel:  p.Channel(),
			})
		},
	}
}
