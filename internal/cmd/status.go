package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/update"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the installed version and pending update",
		Long: `Status describes the installation: its active version, release channel,
inactive version directories and any downloaded package waiting to be
applied. It does not contact the feed.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return runStatus(a)
		}),
	}
}

func runStatus(a *app) error {
	loc, err := a.locator()
	if err != nil {
		return err
	}

	r := output.StatusReport{
		AppID:      loc.Manifest.ID,
		Title:      loc.Manifest.Title,
		Version:    loc.Manifest.Version,
		Channel:    a.cfg.Feed.Channel,
		Root:       loc.RootDir,
		CurrentDir: filepath.Base(loc.CurrentDir),
		Feed:       a.cfg.Feed.URL,
	}
	if r.Channel == "" {
		r.Channel = loc.Manifest.Channel
	}
	if r.Channel == "" {
		r.Channel = update.Detect().Channel()
	}

	if inactive, err := loc.InactiveVersions(); err != nil {
		a.logger.Warnf("failed to list inactive versions: %v", err)
	} else {
		r.Inactive = inactive
	}

	if a.cfg.Feed.URL != "" {
		m, err := a.manager(loc)
		if err != nil {
			return err
		}
		if manifest, pkg, ok := m.PendingUpdate(); ok {
			r.PendingVersion = manifest.Version
			r.PendingPackage = filepath.Base(pkg)
		}
	}

	a.printLines(a.relay.DrainAll())
	return a.out.Write(r)
}
