package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
)

// Backend identifies an echo surface implementation.
type Backend int

const (
	BackendNone Backend = iota
	BackendTerminal
	BackendTranscript
)

func (b Backend) String() string {
	switch b {
	case BackendNone:
		return "none"
	case BackendTerminal:
		return "terminal"
	case BackendTranscript:
		return "transcript"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// Detection is the result of probing the environment for an echo backend and
// for the information needed to tell the user how to install the tool.
type Detection struct {
	Backend        Backend
	Output         io.Writer // terminal backend only
	TranscriptPath string    // transcript backend only

	Distro            string
	PackageManager    string
	SuggestedPackages []string
	InstallHint       string
	Notes             []string
	Errors            []string
	Probed            []string
}

// Available reports whether a backend was found.
func (d Detection) Available() bool {
	return d.Backend != BackendNone
}

// packageManagers is probed in order; the first one on PATH wins.
var packageManagers = []string{"apt", "dnf", "yum", "zypper", "pacman", "apk", "brew", "emerge"}

// Detector probes for echo backends.
type Detector struct {
	// Terminal is checked with isatty. Typically os.Stderr.
	Terminal *os.File
	// TranscriptPath, when set, is preferred over the terminal.
	TranscriptPath string
	OSReleasePath  string
	LookPath       func(string) (string, error)
}

// NewDetector returns a Detector for the current process.
func NewDetector(transcriptPath string) *Detector {
	return &Detector{
		Terminal:       os.Stderr,
		TranscriptPath: transcriptPath,
		OSReleasePath:  "/etc/os-release",
		LookPath:       exec.LookPath,
	}
}

// Detect probes the environment. It never fails; problems end up in Errors.
func (d *Detector) Detect() Detection {
	var det Detection

	if d.TranscriptPath != "" {
		det.Probed = append(det.Probed, "transcript")
		if err := checkWritableDir(filepath.Dir(d.TranscriptPath)); err != nil {
			det.Errors = append(det.Errors, fmt.Sprintf("transcript: %v", err))
		} else {
			det.Backend = BackendTranscript
			det.TranscriptPath = d.TranscriptPath
		}
	}

	if det.Backend == BackendNone && d.Terminal != nil {
		det.Probed = append(det.Probed, "terminal")
		fd := d.Terminal.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			det.Backend = BackendTerminal
			det.Output = d.Terminal
		} else {
			det.Errors = append(det.Errors, fmt.Sprintf("terminal: %s is not a terminal", d.Terminal.Name()))
		}
	}

	det.Distro = distroID(d.OSReleasePath)
	det.PackageManager = DetectPackageManager(d.LookPath)
	det.SuggestedPackages, det.InstallHint, det.Notes = InstallGuidance(det.Distro, det.PackageManager)
	return det
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	return nil
}

func distroID(path string) string {
	info := map[string]string{}
	if f, err := os.Open(path); err == nil {
		info = ParseOSRelease(f)
		f.Close()
	}
	if id := info["id"]; id != "" {
		return id
	}
	return runtime.GOOS
}

// ParseOSRelease parses os-release(5) content into lower-cased keys.
func ParseOSRelease(r io.Reader) map[string]string {
	info := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || strings.HasPrefix(key, "#") {
			continue
		}
		info[strings.ToLower(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return info
}

// DetectPackageManager returns the first known package manager on PATH.
func DetectPackageManager(lookPath func(string) (string, error)) string {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, pm := range packageManagers {
		if _, err := lookPath(pm); err == nil {
			return pm
		}
	}
	return ""
}

var installCommands = map[string]string{
	"apt":    "sudo apt install",
	"dnf":    "sudo dnf install",
	"yum":    "sudo yum install",
	"zypper": "sudo zypper install",
	"pacman": "sudo pacman -S",
	"apk":    "sudo apk add",
	"brew":   "brew install",
	"emerge": "sudo emerge",
}

// InstallCommand returns the command installing packages with
// packageManager, or "" for an unknown manager.
func InstallCommand(packageManager string, packages ...string) string {
	cmd, ok := installCommands[packageManager]
	if !ok || len(packages) == 0 {
		return ""
	}
	return cmd + " " + strings.Join(packages, " ")
}

// InstallGuidance suggests how to install gocryptfs on the given system.
func InstallGuidance(distro, packageManager string) ([]string, string, []string) {
	packages := []string{"gocryptfs"}
	var notes []string

	switch strings.ToLower(distro) {
	case "gentoo":
		packages = []string{"sys-fs/gocryptfs"}
	case "darwin":
		notes = append(notes, "gocryptfs needs macFUSE on macOS; see https://github.com/rfjakob/gocryptfs")
	}

	hint := InstallCommand(packageManager, packages...)
	if hint == "" {
		notes = append(notes, "No supported package manager detected.")
	}
	return packages, hint, notes
}
