package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Compact the profile database to reclaim disk space",
	Args:  cobra.NoArgs,
	Run:   runCompact,
}

func init() {
	rootCmd.AddCommand(compactCmd)
}

func runCompact(cmd *cobra.Command, args []string) {
	path := app.Store.Path()

	info, err := os.Stat(path)
	if err != nil {
		HandleError(err)
	}
	sizeBefore := info.Size()

	if err := app.Store.Compact(); err != nil {
		HandleError(err)
	}

	info, err = os.Stat(path)
	if err != nil {
		HandleError(err)
	}
	sizeAfter := info.Size()

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
}

func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
