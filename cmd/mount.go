package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/mithril/internal/core"
)

var (
	mountCmd = &cobra.Command{
		Use:   "mount <volume>...",
		Short: "Mount volumes, creating and initializing them when needed",
		Long: `Mounts each volume, given by label or ID. Missing directories are created
after confirmation and an uninitialized cipher directory is initialized with a
new password first. MITHRIL_PASSWORD supplies the password non-interactively.`,
		Args: cobra.MinimumNArgs(1),
		Run:  runMount,
	}

	unmountCmd = &cobra.Command{
		Use:     "unmount [volume]...",
		Aliases: []string{"umount"},
		Short:   "Unmount volumes",
		Run:     runUnmount,
	}
	unmountAll bool
)

func init() {
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(unmountCmd)
	unmountCmd.Flags().BoolVarP(&unmountAll, "all", "a", false, "unmount every mounted volume of the profile")
}

func runMount(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	for _, ref := range args {
		if _, err := app.Manager.EnsureMounted(ctx, ref); err != nil {
			HandleError(err)
		}
		v, err := app.Manager.Catalog().Lookup(ref)
		if err != nil {
			HandleError(err)
		}
		fmt.Printf("%s mounted at %s\n", v.Label, v.MountPoint)
	}
}

func runUnmount(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	refs := args
	if unmountAll {
		rows, err := app.Manager.Status(ctx)
		if err != nil {
			HandleError(err)
		}
		refs = nil
		for _, row := range rows {
			if row.State == core.StateMounted {
				refs = append(refs, row.Volume.ID)
			}
		}
		if len(refs) == 0 {
			fmt.Println("No mounted volumes")
			return
		}
	} else if len(refs) == 0 {
		HandleError(fmt.Errorf("unmount requires a volume or --all"))
	}

	for _, ref := range refs {
		state, err := app.Manager.Unmount(ctx, ref)
		if err != nil {
			HandleError(err)
		}
		v, err := app.Manager.Catalog().Lookup(ref)
		if err != nil {
			HandleError(err)
		}
		fmt.Printf("%s %s\n", v.Label, state)
	}
}
