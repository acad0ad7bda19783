package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/install"
	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/update"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the feed for a newer version",
		Long: `Check fetches releases.<channel>.json from the feed and reports the newest
full package for the installed application, if it is newer than the
installed version.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return runCheck(ctx, a)
		}),
	}
}

func runCheck(ctx context.Context, a *app) error {
	m, _, info, err := checkUpdate(ctx, a)
	if err != nil {
		return err
	}
	return a.out.Write(checkReport(m, info, ""))
}

// checkUpdate opens the installation and runs a check against the feed.
// The manager is returned in the Checked state for follow-up steps.
func checkUpdate(ctx context.Context, a *app) (*update.Manager, *install.Locator, *update.UpdateInfo, error) {
	loc, err := a.locator()
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := a.manager(loc)
	if err != nil {
		return nil, nil, nil, err
	}

	var info *update.UpdateInfo
	err = a.run(ctx, func(ctx context.Context) error {
		var err error
		info, err = m.Check(ctx)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return m, loc, info, nil
}

func checkReport(m *update.Manager, info *update.UpdateInfo, pkg string) output.CheckReport {
	r := output.CheckReport{
		AppID:          m.AppID(),
		CurrentVersion: m.CurrentVersion().String(),
		Channel:        m.Channel(),
	}
	if info == nil {
		return r
	}
	r.UpdateAvailable = true
	r.Version = info.Version().String()
	r.FileName = info.FileName()
	r.Size = info.Size()
	r.Downgrade = info.IsDowngrade()
	r.Notes = info.Notes()
	r.Package = pkg
	return r
}

func stagedPath(loc *install.Locator, info *update.UpdateInfo) string {
	return filepath.Join(loc.PackagesDir(), info.FileName())
}
