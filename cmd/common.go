package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/illarion/mithril/internal/config"
	"github.com/illarion/mithril/internal/console"
	"github.com/illarion/mithril/internal/core"
	"github.com/illarion/mithril/internal/prompt"
	"github.com/illarion/mithril/internal/runner"
	"github.com/illarion/mithril/internal/session"
	"github.com/illarion/mithril/internal/storage"
)

// exit releases resources and terminates the process.
func exit(code int) {
	closeApp()
	session.Purge()
	os.Exit(code)
}

// HandleError prints err with a hint on how to fix it and exits.
func HandleError(err error) {
	var toolErr *core.ToolError
	errors.As(err, &toolErr)

	switch {
	case errors.Is(err, core.ErrBinaryNotFound):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		printInstallHint(missingBinary(err))
	case errors.Is(err, core.ErrAuthenticationFailed):
		fmt.Fprintf(os.Stderr, "Error: wrong password\n")
		fmt.Fprintf(os.Stderr, "Any cached password was forgotten; try again\n")
	case errors.Is(err, core.ErrMountPointNotEmpty):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Mounting would hide its contents. Empty it or pick another mount point with 'mithril edit'\n")
	case errors.Is(err, core.ErrMountPointNotWritable):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Check the ownership and permissions of the mount point\n")
	case errors.Is(err, core.ErrInvalidCostParameter):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "The stored scryptn was reset to the default; run the command again or set one with 'mithril flags'\n")
	case errors.Is(err, core.ErrPasswordMismatch):
		fmt.Fprintf(os.Stderr, "Error: passwords do not match\n")
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Run 'mithril mount' to create and initialize it\n")
	case errors.Is(err, core.ErrInitializationFailed), errors.Is(err, core.ErrProcessFailure):
		if toolErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s failed with exit status %d\n", toolErr.Op, toolErr.ExitCode)
			if s := strings.TrimSpace(toolErr.Stderr); s != "" {
				fmt.Fprintf(os.Stderr, "%s\n", s)
			}
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
	case errors.Is(err, core.ErrPathSafetyRejected):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Nothing was deleted\n")
	case errors.Is(err, core.ErrAborted), errors.Is(err, prompt.ErrCancelled):
		fmt.Fprintf(os.Stderr, "Aborted\n")
	case errors.Is(err, core.ErrVolumeNotFound):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'mithril status' to list volumes\n")
	case errors.Is(err, storage.ErrProfileNotFound):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'mithril profile list' to list profiles\n")
	case errors.Is(err, core.ErrVolumeBusy):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Another operation on this volume is still running\n")
	case errors.Is(err, prompt.ErrEnvRejected):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Fix %s or unset it to be prompted\n", prompt.EnvPassword)
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	exit(1)
}

// missingBinary names the executable a BinaryNotFound error is about.
func missingBinary(err error) string {
	var notFound *runner.BinaryNotFoundError
	if errors.As(err, &notFound) {
		return notFound.Name
	}
	if app != nil {
		return app.Config.Tool.Binary
	}
	return config.Default().Tool.Binary
}

func printInstallHint(binary string) {
	var d console.Detection
	if app != nil {
		d = app.Console.Detection()
	} else {
		d = console.NewDetector("").Detect()
	}

	hint, notes := installHint(binary, d)
	if hint != "" {
		fmt.Fprintf(os.Stderr, "Install %s with: %s\n", binary, hint)
	}
	for _, n := range notes {
		fmt.Fprintf(os.Stderr, "Note: %s\n", n)
	}
}

// installHint returns the command installing the package that provides
// binary. Detection only covers gocryptfs; the unmount helpers are looked up
// in fusePackages.
func installHint(binary string, d console.Detection) (string, []string) {
	pkg, ok := fusePackages[filepath.Base(binary)]
	if !ok {
		return d.InstallHint, d.Notes
	}
	hint := console.InstallCommand(d.PackageManager, pkg)
	if hint == "" {
		return "", []string{"No supported package manager detected."}
	}
	return hint, nil
}

// fusePackages maps the unmount helpers to the package shipping them.
var fusePackages = map[string]string{
	"fusermount":  "fuse",
	"fusermount3": "fuse3",
	"umount":      "util-linux",
}

// volumeArg returns the single volume reference of a command.
func volumeArg(args []string) string {
	return strings.TrimSpace(args[0])
}
