package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/bootstrap"
	"github.com/adamancini/hatch/internal/install"
)

func newFinalizeCmd() *cobra.Command {
	var previousDir, updatedFrom string

	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Clean up after an applied update",
		Long: `Finalize runs the post-update cleanup that normally happens when the
relaunched application starts: it removes the replaced version directory,
the staging directory and leftover extraction directories, then prunes old
versions down to install.keep_versions.

It is only needed when the relaunch did not happen, for example after a
crash. Cleanup failures are reported but never fail the command.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipBootstrap: ""},
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return runFinalize(ctx, a, previousDir, updatedFrom)
		}),
	}

	cmd.Flags().StringVar(&previousDir, "previous-dir", "", "Version directory that was replaced (e.g. app-1.0.0)")
	cmd.Flags().StringVar(&updatedFrom, "updated-from", "", "Version that was replaced")

	return cmd
}

func runFinalize(ctx context.Context, a *app, previousDir, updatedFrom string) error {
	overrides := map[string]string{
		install.EnvPreviousDir: previousDir,
		install.EnvUpdatedFrom: updatedFrom,
	}
	lookup := func(key string) (string, bool) {
		if v := overrides[key]; v != "" {
			return v, true
		}
		return os.LookupEnv(key)
	}

	return a.run(ctx, func(ctx context.Context) error {
		return a.startup(ctx,
			bootstrap.WithArgs([]string{install.FinalizeArg}),
			bootstrap.WithEnv(lookup),
		)
	})
}
