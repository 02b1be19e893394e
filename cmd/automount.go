package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/illarion/mithril/internal/core"
)

var (
	automountCmd = &cobra.Command{
		Use:   "automount",
		Short: "Mount every volume flagged for automount",
		Long: `Mounts volumes flagged with --automount and removable volumes whose media is
present. Volumes with missing directories or no gocryptfs config are skipped,
never created or initialized.

With --watch, keeps running and mounts removable volumes as their media
appears. SIGHUP forgets the cached password.`,
		Args: cobra.NoArgs,
		Run:  runAutomount,
	}
	automountWatch bool
)

func init() {
	rootCmd.AddCommand(automountCmd)
	automountCmd.Flags().BoolVarP(&automountWatch, "watch", "w", false, "keep watching for removable media")
}

func runAutomount(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := app.Config.Automount

	report, err := app.Manager.Sweep(ctx, core.SweepOptions{Concurrency: cfg.Concurrency})
	if err != nil {
		HandleError(err)
	}
	printSweep(report)

	if !automountWatch {
		if report.Failed() > 0 {
			exit(1)
		}
		return
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go forgetOnHangup(ctx)

	w := core.NewRemovableWatcher(app.Manager, cfg.Debounce, cfg.Concurrency, app.Logger)
	w.OnSweep = printSweep
	fmt.Println("Watching for removable media, press Ctrl+C to stop")
	if err := w.Run(ctx); err != nil {
		HandleError(err)
	}
}

func forgetOnHangup(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			app.Creds.Clear()
			app.Logger.Info().Msg("cached password cleared")
		}
	}
}

func printSweep(report *core.SweepReport) {
	for _, r := range report.Results {
		switch {
		case r.Err != nil:
			fmt.Printf("  %-20s failed: %s\n", r.Volume.Label, r.Err)
		case r.Skipped != "":
			fmt.Printf("  %-20s skipped: %s\n", r.Volume.Label, r.Skipped)
		default:
			fmt.Printf("  %-20s %s\n", r.Volume.Label, r.State)
		}
	}
}
