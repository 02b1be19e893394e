package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/mithril/internal/storage"
)

var (
	addCmd = &cobra.Command{
		Use:   "add <label> <cipher-dir> <mount-point>",
		Short: "Add a volume to the profile",
		Long: `Adds a volume to the profile. Nothing is created on disk until the volume
is mounted for the first time.`,
		Args: cobra.ExactArgs(3),
		Run:  runAdd,
	}

	editCmd = &cobra.Command{
		Use:   "edit <volume>",
		Short: "Change the label, directories or options of a volume",
		Args:  cobra.ExactArgs(1),
		Run:   runEdit,
	}

	volLabel      string
	volCipherDir  string
	volMountPoint string
	volAutomount  bool
	volRemovable  bool
	volAutoOpen   bool
	volPinned     bool
)

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)

	for _, c := range []*cobra.Command{addCmd, editCmd} {
		c.Flags().BoolVar(&volAutomount, "automount", false, "mount when 'mithril automount' runs")
		c.Flags().BoolVar(&volRemovable, "removable", false, "the cipher directory lives on removable media")
		c.Flags().BoolVar(&volAutoOpen, "open", false, "open the mount point in the file browser after mounting")
		c.Flags().BoolVar(&volPinned, "pin", false, "pin the volume")
	}
	addVolumeFlagOptions(addCmd)

	editCmd.Flags().StringVar(&volLabel, "label", "", "new label")
	editCmd.Flags().StringVar(&volCipherDir, "cipher-dir", "", "new cipher directory")
	editCmd.Flags().StringVar(&volMountPoint, "mount-point", "", "new mount point")
}

func runAdd(cmd *cobra.Command, args []string) {
	v := storage.NewVolume(args[0], args[1], args[2])
	v.AutomountOnStartup = volAutomount
	v.AutoOpen = volAutoOpen
	v.Pinned = volPinned
	if volRemovable {
		v.Type = storage.VolumeRemovable
	}
	applyVolumeFlags(cmd, &v)

	if err := app.Manager.Catalog().Add(v); err != nil {
		HandleError(err)
	}
	fmt.Printf("Added %s to profile %s\n", v.Label, app.Profile)
}

func runEdit(cmd *cobra.Command, args []string) {
	v, err := app.Manager.Catalog().Lookup(volumeArg(args))
	if err != nil {
		HandleError(err)
	}

	f := cmd.Flags()
	if f.Changed("label") {
		v.Label = volLabel
	}
	if f.Changed("cipher-dir") {
		v.CipherDir = volCipherDir
	}
	if f.Changed("mount-point") {
		v.MountPoint = volMountPoint
	}
	if f.Changed("automount") {
		v.AutomountOnStartup = volAutomount
	}
	if f.Changed("removable") {
		v.Type = storage.VolumeStandard
		if volRemovable {
			v.Type = storage.VolumeRemovable
		}
	}
	if f.Changed("open") {
		v.AutoOpen = volAutoOpen
	}
	if f.Changed("pin") {
		v.Pinned = volPinned
	}

	if err := app.Manager.Catalog().Update(v); err != nil {
		HandleError(err)
	}
	fmt.Printf("Updated %s\n", v.Label)
}
