package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Check for and stage the newest package",
		Long: `Download checks the feed and, when a newer version exists, downloads and
verifies its package into the installation's staging directory.

The staged package is applied by 'hatch apply', or on the next start when
install.auto_apply is set.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return runDownload(ctx, a)
		}),
	}
}

func runDownload(ctx context.Context, a *app) error {
	m, loc, info, err := checkUpdate(ctx, a)
	if err != nil {
		return err
	}
	if info == nil {
		return a.out.Write(checkReport(m, nil, ""))
	}

	if err := a.run(ctx, func(ctx context.Context) error {
		return m.Download(ctx, info)
	}); err != nil {
		return err
	}

	return a.out.Write(checkReport(m, info, stagedPath(loc, info)))
}
