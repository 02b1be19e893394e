package console

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectProvider(t *testing.T) {
	var buf bytes.Buffer
	transcript := filepath.Join(t.TempDir(), "echo.log")

	tests := []struct {
		name      string
		enabled   bool
		detection Detection
		want      Backend
		available bool
	}{
		{"disabled", false, Detection{Backend: BackendTerminal, Output: &buf}, BackendNone, false},
		{"nothing detected", true, Detection{}, BackendNone, false},
		{"terminal", true, Detection{Backend: BackendTerminal, Output: &buf}, BackendTerminal, true},
		{"terminal without writer", true, Detection{Backend: BackendTerminal}, BackendNone, false},
		{"transcript", true, Detection{Backend: BackendTranscript, TranscriptPath: transcript}, BackendTranscript, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SelectProvider(tt.enabled, tt.detection)
			assert.Equal(t, tt.want, p.Backend())
			assert.Equal(t, tt.available, p.IsAvailable())
		})
	}
}

func TestNullProvider_Guidance(t *testing.T) {
	det := Detection{
		InstallHint:       "sudo apt install gocryptfs",
		SuggestedPackages: []string{"gocryptfs"},
		Notes:             []string{"a note"},
		Errors:            []string{"terminal: /dev/null is not a terminal"},
	}
	p := SelectProvider(true, det)
	p.Write("ignored")

	s, ok := p.CreateSurface(Session{}).(*GuidanceSurface)
	require.True(t, ok)
	text := s.String()
	assert.Contains(t, text, "sudo apt install gocryptfs")
	assert.Contains(t, text, "Suggested packages: gocryptfs")
	assert.Contains(t, text, "- a note")
	assert.Contains(t, text, "- terminal: /dev/null is not a terminal")

	s = SelectProvider(false, det).CreateSurface(Session{}).(*GuidanceSurface)
	assert.Contains(t, s.String(), "mithril console enable")
}

func TestTerminalProvider_Write(t *testing.T) {
	var buf bytes.Buffer
	p := SelectProvider(true, Detection{Backend: BackendTerminal, Output: &buf})

	p.Write("before surface")
	assert.Empty(t, buf.String())

	p.CreateSurface(Session{VolumeContext: "Docs"})
	p.Write("gocryptfs /a /b")
	out := buf.String()
	assert.Contains(t, out, "gocryptfs /a /b")
	assert.Contains(t, out, "[Docs]")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTranscriptProvider_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echo.log")
	p := SelectProvider(true, Detection{Backend: BackendTranscript, TranscriptPath: path})
	s := p.CreateSurface(Session{})
	p.Write("fusermount -u /b")
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "$ fusermount -u /b\n", string(data))
}

func TestTranscriptProvider_FailuresSwallowed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "echo.log")
	p := SelectProvider(true, Detection{Backend: BackendTranscript, TranscriptPath: path})
	s := p.CreateSurface(Session{})
	assert.Error(t, s.Print("x"))
	assert.NotPanics(t, func() { p.Write("x") })
}

type fakeDetect struct {
	mu    sync.Mutex
	det   Detection
	calls int
}

func (f *fakeDetect) set(d Detection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.det = d
}

func (f *fakeDetect) detect() Detection {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.det
}

func TestManager_RefreshKeepsLiveSurface(t *testing.T) {
	var buf bytes.Buffer
	fd := &fakeDetect{det: Detection{Backend: BackendTerminal, Output: &buf}}
	m := NewManager(true, fd.detect)
	require.True(t, m.HasWorkingProvider())

	first := m.Surface()
	assert.False(t, m.RefreshDetection(), "same backend must not swap")
	assert.Same(t, first, m.Surface())
	assert.Equal(t, 2, fd.calls)

	fd.set(Detection{})
	assert.True(t, m.RefreshDetection())
	assert.Equal(t, BackendNone, m.Provider().Backend())
	assert.False(t, m.HasWorkingProvider())
	_, isGuidance := m.Surface().(*GuidanceSurface)
	assert.True(t, isGuidance)
}

func TestManager_WriteAndToggle(t *testing.T) {
	var buf bytes.Buffer
	fd := &fakeDetect{det: Detection{Backend: BackendTerminal, Output: &buf}}
	m := NewManager(false, fd.detect)

	m.Write("hidden")
	assert.Empty(t, buf.String())

	m.SetEnabled(true)
	assert.True(t, m.Enabled())
	m.Write("shown")
	assert.Contains(t, buf.String(), "shown")

	m.SetEnabled(false)
	m.Write("hidden again")
	assert.NotContains(t, buf.String(), "hidden")
	assert.NoError(t, m.Close())
}

func TestParseOSRelease(t *testing.T) {
	info := ParseOSRelease(strings.NewReader("NAME=\"Ubuntu\"\nID=ubuntu\n# comment\nVERSION_ID='24.04'\nbogus\n"))
	assert.Equal(t, "ubuntu", info["id"])
	assert.Equal(t, "Ubuntu", info["name"])
	assert.Equal(t, "24.04", info["version_id"])
	assert.NotContains(t, info, "bogus")
}

func TestDetectPackageManager(t *testing.T) {
	lookPath := func(name string) (string, error) {
		if name == "pacman" || name == "brew" {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	assert.Equal(t, "pacman", DetectPackageManager(lookPath))
	assert.Equal(t, "", DetectPackageManager(func(string) (string, error) { return "", errors.New("no") }))
}

func TestInstallGuidance(t *testing.T) {
	pkgs, hint, notes := InstallGuidance("ubuntu", "apt")
	assert.Equal(t, []string{"gocryptfs"}, pkgs)
	assert.Equal(t, "sudo apt install gocryptfs", hint)
	assert.Empty(t, notes)

	_, hint, _ = InstallGuidance("arch", "pacman")
	assert.Equal(t, "sudo pacman -S gocryptfs", hint)

	pkgs, hint, _ = InstallGuidance("gentoo", "emerge")
	assert.Equal(t, []string{"sys-fs/gocryptfs"}, pkgs)
	assert.Equal(t, "sudo emerge sys-fs/gocryptfs", hint)

	_, hint, notes = InstallGuidance("plan9", "")
	assert.Empty(t, hint)
	assert.Contains(t, notes, "No supported package manager detected.")
}

func TestInstallCommand(t *testing.T) {
	assert.Equal(t, "sudo dnf install fuse", InstallCommand("dnf", "fuse"))
	assert.Equal(t, "brew install a b", InstallCommand("brew", "a", "b"))
	assert.Empty(t, InstallCommand("", "fuse"))
	assert.Empty(t, InstallCommand("apt"))
}

func TestDetector_Transcript(t *testing.T) {
	dir := t.TempDir()
	osRelease := filepath.Join(dir, "os-release")
	require.NoError(t, os.WriteFile(osRelease, []byte("ID=fedora\n"), 0600))

	d := &Detector{
		TranscriptPath: filepath.Join(dir, "echo.log"),
		OSReleasePath:  osRelease,
		LookPath: func(name string) (string, error) {
			if name == "dnf" {
				return "/usr/bin/dnf", nil
			}
			return "", errors.New("no")
		},
	}
	det := d.Detect()
	assert.Equal(t, BackendTranscript, det.Backend)
	assert.True(t, det.Available())
	assert.Equal(t, "fedora", det.Distro)
	assert.Equal(t, "dnf", det.PackageManager)
	assert.Equal(t, "sudo dnf install gocryptfs", det.InstallHint)
}

func TestDetector_NotATerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	d := &Detector{
		Terminal:       f,
		TranscriptPath: filepath.Join(t.TempDir(), "nope", "echo.log"),
		OSReleasePath:  filepath.Join(t.TempDir(), "missing"),
		LookPath:       func(string) (string, error) { return "", errors.New("no") },
	}
	det := d.Detect()
	assert.Equal(t, BackendNone, det.Backend)
	assert.Len(t, det.Errors, 2)
	assert.Equal(t, []string{"transcript", "terminal"}, det.Probed)
	assert.NotEmpty(t, det.Distro)
}
