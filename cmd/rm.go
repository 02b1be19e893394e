package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/mithril/internal/core"
)

var (
	rmCmd = &cobra.Command{
		Use:   "rm <volume>...",
		Short: "Remove volumes from the profile, leaving their files alone",
		Long: `Removes volumes from the profile only. The cipher directory and mount point
stay on disk; use 'mithril delete' to remove them as well.`,
		Args: cobra.MinimumNArgs(1),
		Run:  runRm,
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <volume>",
		Short: "Delete a volume's cipher directory and mount point from disk",
		Long: `Unmounts the volume if needed, then permanently removes its mount point and
cipher directory and drops it from the profile. Paths outside the allowed
deletion roots must be typed back in full; the volume label is always asked
for. A symlinked directory is removed as a link, never followed. Every removal
is appended to the audit log.`,
		Args: cobra.ExactArgs(1),
		Run:  runDelete,
	}
)

func init() {
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runRm(cmd *cobra.Command, args []string) {
	catalog := app.Manager.Catalog()
	for _, ref := range args {
		v, err := catalog.Lookup(ref)
		if err != nil {
			HandleError(err)
		}
		state, err := app.Manager.Probe(cmd.Context(), v.ID)
		if err == nil && state == core.StateMounted {
			fmt.Printf("Note: %s is still mounted at %s\n", v.Label, v.MountPoint)
		}
		if err := catalog.Remove(v.ID); err != nil {
			HandleError(err)
		}
		fmt.Printf("Removed %s from profile %s\n", v.Label, app.Profile)
	}
}

func runDelete(cmd *cobra.Command, args []string) {
	report, err := app.Manager.DeleteFromDisk(cmd.Context(), volumeArg(args))
	if err != nil {
		if report != nil {
			printRemovals(report)
		}
		HandleError(err)
	}
	printRemovals(report)
	fmt.Printf("Deleted %s\n", report.Volume.Label)
}

func printRemovals(report *core.DeleteReport) {
	for _, r := range report.Removed {
		if r.Skipped {
			fmt.Printf("  skipped %s (not present)\n", r.Path)
			continue
		}
		fmt.Printf("  %s %s\n", r.Status, r.Path)
	}
}
