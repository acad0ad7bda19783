package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newApplyCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a previously downloaded package and restart",
		Long: `Apply activates the newest package staged by 'hatch download' and relaunches
the application. The previous version stays installed until the relaunched
application finalizes the update.

When stdin is a terminal, apply asks for confirmation unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return runApply(ctx, a, yes)
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply without asking")

	return cmd
}

func runApply(ctx context.Context, a *app, yes bool) error {
	loc, err := a.locator()
	if err != nil {
		return err
	}
	m, err := a.manager(loc)
	if err != nil {
		return err
	}

	manifest, pkg, ok := m.PendingUpdate()
	if !ok {
		a.out.Line("No downloaded update to apply.")
		return nil
	}

	if !a.confirm(yes, loc.Manifest.Version, manifest.Version, "", "apply "+filepath.Base(pkg)+" and restart") {
		return nil
	}

	return a.run(ctx, func(ctx context.Context) error {
		_, err := m.ApplyPending(ctx)
		return err
	})
}
