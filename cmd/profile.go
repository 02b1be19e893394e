package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/illarion/mithril/internal/storage"
)

var (
	profileCmd = &cobra.Command{
		Use:   "profile",
		Short: "Manage profiles (named lists of volumes)",
	}
	profileListCmd = &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		Run:   runProfileList,
	}
	profileCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty profile",
		Args:  cobra.ExactArgs(1),
		Run:   runProfileCreate,
	}
	profileUseCmd = &cobra.Command{
		Use:   "use <name>",
		Short: "Make a profile the current one",
		Args:  cobra.ExactArgs(1),
		Run:   runProfileUse,
	}
	profileRenameCmd = &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a profile",
		Args:  cobra.ExactArgs(2),
		Run:   runProfileRename,
	}
	profileDeleteCmd = &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile (its volumes stay on disk)",
		Args:  cobra.ExactArgs(1),
		Run:   runProfileDelete,
	}
	profileCopyCmd = &cobra.Command{
		Use:   "copy <source> <new>",
		Short: "Save a copy of a profile under a new name",
		Args:  cobra.ExactArgs(2),
		Run:   runProfileCopy,
	}
	profileImportCmd = &cobra.Command{
		Use:   "import <profiles.json>",
		Short: "Import profiles from a legacy profiles.json",
		Args:  cobra.ExactArgs(1),
		Run:   runProfileImport,
	}
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileRenameCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileCopyCmd)
	profileCmd.AddCommand(profileImportCmd)
}

func runProfileList(cmd *cobra.Command, args []string) {
	profiles, err := app.Store.Load()
	if err != nil {
		HandleError(err)
	}
	current, err := app.Store.CurrentProfile()
	if err != nil {
		HandleError(err)
	}
	for _, name := range profiles.Names() {
		marker := " "
		if name == current {
			marker = "*"
		}
		fmt.Printf("%s %s (%d volumes)\n", marker, name, len(profiles[name].Volumes))
	}
}

func runProfileCreate(cmd *cobra.Command, args []string) {
	err := updateProfiles(func(ps storage.Profiles) error {
		_, err := ps.Create(args[0])
		return err
	})
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("Created profile %s\n", args[0])
}

func runProfileUse(cmd *cobra.Command, args []string) {
	profiles, err := app.Store.Load()
	if err != nil {
		HandleError(err)
	}
	if _, err := profiles.Get(args[0]); err != nil {
		HandleError(err)
	}
	if err := app.Store.SetCurrentProfile(args[0]); err != nil {
		HandleError(err)
	}
	fmt.Printf("Switched to profile %s\n", args[0])
}

func runProfileRename(cmd *cobra.Command, args []string) {
	current, err := app.Store.CurrentProfile()
	if err != nil {
		HandleError(err)
	}
	err = updateProfiles(func(ps storage.Profiles) error {
		return ps.Rename(args[0], args[1])
	})
	if err != nil {
		HandleError(err)
	}
	if current == args[0] {
		if err := app.Store.SetCurrentProfile(args[1]); err != nil {
			HandleError(err)
		}
	}
	fmt.Printf("Renamed profile %s to %s\n", args[0], args[1])
}

func runProfileDelete(cmd *cobra.Command, args []string) {
	err := updateProfiles(func(ps storage.Profiles) error {
		return ps.Delete(args[0])
	})
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("Deleted profile %s\n", args[0])
}

func runProfileCopy(cmd *cobra.Command, args []string) {
	err := updateProfiles(func(ps storage.Profiles) error {
		_, err := ps.Copy(args[0], args[1])
		return err
	})
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("Copied profile %s to %s\n", args[0], args[1])
}

func runProfileImport(cmd *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	if err != nil {
		HandleError(err)
	}
	defer f.Close()

	var report storage.ImportReport
	err = updateProfiles(func(ps storage.Profiles) error {
		report, err = storage.ImportLegacy(f, ps)
		return err
	})
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Imported %d volumes\n", report.Imported)
	for _, s := range report.Skipped {
		fmt.Printf("  skipped %s\n", s)
	}
}
