package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/install"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	feedURL      string
	installRoot  string
	channel      string
	logLevel     string
	verbose      bool
	quiet        bool
	finalizeFlag bool
)

// Build metadata set by Execute.
var (
	hatchVersion = "dev"
	hatchCommit  = "none"
	hatchDate    = "unknown"
)

// skipBootstrap marks commands that must not run the startup hook.
const skipBootstrap = "hatch/skip-bootstrap"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hatch",
		Short: "Auto-update client for packaged applications",
		Long: `hatch keeps an installed application up to date from a release feed.

It checks a Velopack-style feed (releases.<channel>.json on a web host or in a
directory), downloads and verifies the newest full package, swaps it into the
installation and relaunches the application.`,
		Version:      hatchVersion,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&feedURL, "feed", "", "Feed URL or directory (overrides feed.url)")
	rootCmd.PersistentFlags().StringVar(&installRoot, "root", "", "Installation root (overrides install.root)")
	rootCmd.PersistentFlags().StringVar(&channel, "channel", "", "Release channel (overrides feed.channel)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides log.level)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&finalizeFlag, install.FinalizeArg[2:], false, "Finish an update after relaunch")
	_ = rootCmd.PersistentFlags().MarkHidden(install.FinalizeArg[2:])

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newFinalizeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion function for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warning", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}

// Execute runs the hatch command line. Interrupts cancel the running
// operation.
func Execute(version, commit, date string) error {
	hatchVersion, hatchCommit, hatchDate = version, commit, date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}
