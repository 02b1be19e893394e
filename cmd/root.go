package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	profileName string
	verbose     bool

	rootCmd = &cobra.Command{
		Use:   "mithril",
		Short: "Manage gocryptfs encrypted volumes",
		Long: `mithril keeps a list of gocryptfs volumes per profile and drives their
lifecycle: creating directories, initializing, mounting, unmounting,
changing passwords and securely deleting them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !needsApp(cmd) {
				return
			}
			if err := openApp(configPath, profileName, verbose); err != nil {
				HandleError(err)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeApp()
		},
	}
)

// needsApp reports whether cmd works on volumes. Help and shell completion
// run without touching the database.
func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/mithril/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "profile to operate on (default: the current profile)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
