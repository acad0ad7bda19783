package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	var (
		yes       bool
		noRestart bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check, download and apply the newest version",
		Long: `Update runs the whole cycle: check the feed, download and verify the newest
package, swap it into the installation and relaunch the application.

Use --no-restart to stop after the download; the package is then applied by
'hatch apply' or on the next start when install.auto_apply is set.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return runUpdate(ctx, a, yes, noRestart)
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Update without asking")
	cmd.Flags().BoolVar(&noRestart, "no-restart", false, "Download only, do not apply")

	return cmd
}

func runUpdate(ctx context.Context, a *app, yes, noRestart bool) error {
	m, loc, info, err := checkUpdate(ctx, a)
	if err != nil {
		return err
	}
	if info == nil {
		return a.out.Write(checkReport(m, nil, ""))
	}

	step := "download and apply"
	if noRestart {
		step = "download"
	}
	if !a.confirm(yes, m.CurrentVersion().String(), info.Version().String(), info.Notes(), step) {
		return nil
	}

	if err := a.run(ctx, func(ctx context.Context) error {
		return m.Download(ctx, info)
	}); err != nil {
		return err
	}

	if noRestart {
		return a.out.Write(checkReport(m, info, stagedPath(loc, info)))
	}

	return a.run(ctx, func(ctx context.Context) error {
		return m.ApplyAndRestart(ctx, info)
	})
}
