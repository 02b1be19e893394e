package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/mithril/internal/storage"
)

var (
	flagsCmd = &cobra.Command{
		Use:   "flags <volume>",
		Short: "Show or change the gocryptfs options of a volume",
		Long: `Without options, prints the gocryptfs options of a volume. --scryptn 0
restores the tool default; other values must be between 10 and 28.`,
		Args: cobra.ExactArgs(1),
		Run:  runFlags,
	}

	optAllowOther bool
	optReverse    bool
	optScryptN    int
)

func init() {
	rootCmd.AddCommand(flagsCmd)
	addVolumeFlagOptions(flagsCmd)
}

func addVolumeFlagOptions(c *cobra.Command) {
	c.Flags().BoolVar(&optAllowOther, "allow-other", false, "let other users access the mount (-allow_other)")
	c.Flags().BoolVar(&optReverse, "reverse", false, "reverse mode: expose an encrypted view of plaintext (-reverse)")
	c.Flags().IntVar(&optScryptN, "scryptn", 0, "scrypt cost exponent for -init and mounting (0 = tool default)")
}

// applyVolumeFlags copies the options the user set onto v.
func applyVolumeFlags(cmd *cobra.Command, v *storage.Volume) bool {
	f := cmd.Flags()
	changed := false
	if f.Changed("allow-other") {
		v.Flags.AllowOther = optAllowOther
		changed = true
	}
	if f.Changed("reverse") {
		v.Flags.Reverse = optReverse
		changed = true
	}
	if f.Changed("scryptn") {
		v.Flags.ScryptN = optScryptN
		changed = true
	}
	return changed
}

func runFlags(cmd *cobra.Command, args []string) {
	v, err := app.Manager.Catalog().Lookup(volumeArg(args))
	if err != nil {
		HandleError(err)
	}

	if applyVolumeFlags(cmd, &v) {
		if err := app.Manager.Catalog().Update(v); err != nil {
			HandleError(err)
		}
	}

	fmt.Printf("%s:\n", v.Label)
	fmt.Printf("  allow_other: %t\n", v.Flags.AllowOther)
	fmt.Printf("  reverse:     %t\n", v.Flags.Reverse)
	if v.Flags.ScryptN == 0 {
		fmt.Printf("  scryptn:     default\n")
	} else {
		fmt.Printf("  scryptn:     %d\n", v.Flags.ScryptN)
	}
}
