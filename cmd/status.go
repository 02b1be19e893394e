package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/illarion/mithril/internal/core"
	"github.com/illarion/mithril/internal/storage"
)

var (
	statusCmd = &cobra.Command{
		Use:     "status",
		Aliases: []string{"ls", "list"},
		Short:   "List the volumes of the profile and their state",
		Long:    "Shows every volume of the profile with its state derived from a fresh mount table read. Does not require a password.",
		Args:    cobra.NoArgs,
		Run:     runStatus,
	}

	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	mountedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	problemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	rows, err := app.Manager.Status(cmd.Context())
	if err != nil {
		HandleError(err)
	}

	fmt.Println(headerStyle.Render("Profile: " + app.Profile))
	if len(rows) == 0 {
		fmt.Println(mutedStyle.Render("  (no volumes; add one with 'mithril add')"))
		return
	}

	labelWidth := len("LABEL")
	for _, r := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(r.Volume.Label)+2)
	}
	col := func(s string, w int) string {
		return lipgloss.NewStyle().Width(w).Render(s)
	}

	fmt.Println(headerStyle.Render(col("LABEL", labelWidth) + col("STATE", 14) + col("FLAGS", 22) + "CIPHER DIR -> MOUNT POINT"))
	for _, r := range rows {
		state := r.State.String()
		var styled string
		switch {
		case r.Err != nil:
			styled = problemStyle.Render(col("error", 14))
		case r.State == core.StateMounted:
			styled = mountedStyle.Render(col(state, 14))
		default:
			styled = col(state, 14)
		}
		fmt.Printf("%s%s%s%s\n",
			col(r.Volume.Label, labelWidth),
			styled,
			col(describeFlags(r.Volume), 22),
			mutedStyle.Render(r.Volume.CipherDir+" -> "+r.Volume.MountPoint))
		if r.Err != nil {
			fmt.Println(problemStyle.Render("  " + r.Err.Error()))
		}
	}

	if app.Creds.Cached() {
		fmt.Println(mutedStyle.Render("\nA password is cached for this session"))
	}
}

func describeFlags(v storage.Volume) string {
	var parts []string
	if v.Flags.AllowOther {
		parts = append(parts, "allow_other")
	}
	if v.Flags.Reverse {
		parts = append(parts, "reverse")
	}
	if v.Flags.ScryptN != 0 {
		parts = append(parts, fmt.Sprintf("scryptn=%d", v.Flags.ScryptN))
	}
	if v.IsRemovable() {
		parts = append(parts, "removable")
	} else if v.AutomountOnStartup {
		parts = append(parts, "auto")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
