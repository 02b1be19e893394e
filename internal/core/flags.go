package core

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/illarion/mithril/internal/storage"
)

// Tool describes how to drive the external encryption tool.
type Tool struct {
	Binary            string
	ConfigFile        string
	ReverseConfigFile string
	// Unmount is the argv prefix used to unmount; the mount point is appended.
	Unmount      []string
	AuthExitCode int
}

// DefaultTool drives gocryptfs with fusermount for unmounting.
func DefaultTool() Tool {
	return Tool{
		Binary:            "gocryptfs",
		ConfigFile:        "gocryptfs.conf",
		ReverseConfigFile: ".gocryptfs.reverse.conf",
		Unmount:           []string{"fusermount", "-u"},
		AuthExitCode:      12,
	}
}

// ValidScryptN reports whether n may be passed to the tool. Zero means unset.
func ValidScryptN(n int) bool {
	return n == 0 || (n >= storage.MinScryptN && n <= storage.MaxScryptN)
}

// MarkerPath is the file whose presence shows v was initialized.
func (t Tool) MarkerPath(v storage.Volume, cipherDir string) string {
	name := t.ConfigFile
	if v.Flags.Reverse {
		name = t.ReverseConfigFile
	}
	return filepath.Join(cipherDir, name)
}

// InitArgs builds the argv for initializing cipherDir.
func (t Tool) InitArgs(v storage.Volume, cipherDir string) ([]string, error) {
	if !ValidScryptN(v.Flags.ScryptN) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCostParameter, v.Flags.ScryptN)
	}
	argv := []string{t.Binary, "-init"}
	if v.Flags.Reverse {
		argv = append(argv, "-reverse")
	}
	if v.Flags.ScryptN != 0 {
		argv = append(argv, "-scryptn", strconv.Itoa(v.Flags.ScryptN))
	}
	return append(argv, cipherDir), nil
}

// MountArgs builds the argv for mounting cipherDir on mountPoint.
func (t Tool) MountArgs(v storage.Volume, cipherDir, mountPoint string) ([]string, error) {
	if !ValidScryptN(v.Flags.ScryptN) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCostParameter, v.Flags.ScryptN)
	}
	argv := []string{t.Binary}
	if v.Flags.AllowOther {
		argv = append(argv, "-allow_other")
	}
	if v.Flags.Reverse {
		argv = append(argv, "-reverse")
	}
	if v.Flags.ScryptN != 0 {
		argv = append(argv, "-scryptn", strconv.Itoa(v.Flags.ScryptN))
	}
	return append(argv, cipherDir, mountPoint), nil
}

// PasswdArgs builds the argv for changing the password of cipherDir.
func (t Tool) PasswdArgs(v storage.Volume, cipherDir string) ([]string, error) {
	if !ValidScryptN(v.Flags.ScryptN) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCostParameter, v.Flags.ScryptN)
	}
	argv := []string{t.Binary, "-passwd"}
	if v.Flags.Reverse {
		argv = append(argv, "-reverse")
	}
	if v.Flags.ScryptN != 0 {
		argv = append(argv, "-scryptn", strconv.Itoa(v.Flags.ScryptN))
	}
	return append(argv, cipherDir), nil
}

// UnmountArgs builds the argv for unmounting mountPoint.
func (t Tool) UnmountArgs(mountPoint string) []string {
	argv := make([]string, 0, len(t.Unmount)+1)
	argv = append(argv, t.Unmount...)
	return append(argv, mountPoint)
}
