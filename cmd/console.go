package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/illarion/mithril/internal/console"
)

var (
	consoleCmd = &cobra.Command{
		Use:   "console",
		Short: "Show or toggle the command echo surface",
		Long: `Every external command mithril runs is echoed, with secrets redacted, to an
echo surface: the terminal, or a transcript file when console.transcript is set.`,
		Args: cobra.NoArgs,
		Run:  runConsoleStatus,
	}
	consoleStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the detected echo backend",
		Args:  cobra.NoArgs,
		Run:   runConsoleStatus,
	}
	consoleEnableCmd = &cobra.Command{
		Use:   "enable",
		Short: "Echo executed commands",
		Args:  cobra.NoArgs,
		Run:   func(cmd *cobra.Command, args []string) { setConsoleEnabled(true) },
	}
	consoleDisableCmd = &cobra.Command{
		Use:   "disable",
		Short: "Stop echoing executed commands",
		Args:  cobra.NoArgs,
		Run:   func(cmd *cobra.Command, args []string) { setConsoleEnabled(false) },
	}
)

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.AddCommand(consoleStatusCmd)
	consoleCmd.AddCommand(consoleEnableCmd)
	consoleCmd.AddCommand(consoleDisableCmd)
}

func runConsoleStatus(cmd *cobra.Command, args []string) {
	app.Console.RefreshDetection()
	d := app.Console.Detection()

	fmt.Printf("Echo:     %s\n", enabledString(app.Console.Enabled()))
	fmt.Printf("Backend:  %s\n", d.Backend)
	if d.TranscriptPath != "" {
		fmt.Printf("Transcript: %s\n", d.TranscriptPath)
	}
	if d.Distro != "" {
		fmt.Printf("Distro:   %s\n", d.Distro)
	}
	if d.PackageManager != "" {
		fmt.Printf("Packages: %s\n", d.PackageManager)
	}
	if len(d.Probed) > 0 {
		fmt.Printf("Probed:   %s\n", strings.Join(d.Probed, ", "))
	}

	if !app.Console.HasWorkingProvider() {
		if g, ok := app.Console.Surface().(*console.GuidanceSurface); ok {
			fmt.Println()
			fmt.Println(g.String())
		}
	}
}

func setConsoleEnabled(enabled bool) {
	if err := app.Store.SetSetting(settingConsoleEnabled, strconv.FormatBool(enabled)); err != nil {
		HandleError(err)
	}
	app.Console.SetEnabled(enabled)
	fmt.Printf("Command echo %s\n", enabledString(enabled))
	if enabled && !app.Console.HasWorkingProvider() {
		if g, ok := app.Console.Surface().(*console.GuidanceSurface); ok {
			fmt.Println(g.String())
		}
	}
}

func enabledString(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
