package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd <volume>",
	Short: "Change the password of a volume",
	Long: `Changes the password of an initialized volume with 'gocryptfs -passwd'.
MITHRIL_PASSWORD and MITHRIL_NEW_PASSWORD supply the current and new password
non-interactively.`,
	Args: cobra.ExactArgs(1),
	Run:  runPasswd,
}

func init() {
	rootCmd.AddCommand(passwdCmd)
}

func runPasswd(cmd *cobra.Command, args []string) {
	if err := app.Manager.ChangePassword(cmd.Context(), volumeArg(args)); err != nil {
		HandleError(err)
	}
	fmt.Println("password changed successfully")
}
