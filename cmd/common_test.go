package cmd

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/illarion/mithril/internal/console"
	"github.com/illarion/mithril/internal/runner"
)

func TestMissingBinary(t *testing.T) {
	err := fmt.Errorf("unmount: %w", &runner.BinaryNotFoundError{Name: "fusermount"})
	assert.Equal(t, "fusermount", missingBinary(err))

	assert.Equal(t, "gocryptfs", missingBinary(runner.ErrBinaryNotFound))
}

func TestInstallHint(t *testing.T) {
	d := console.Detection{
		PackageManager: "apt",
		InstallHint:    "sudo apt install gocryptfs",
		Notes:          []string{"gocryptfs note"},
	}

	tests := []struct {
		binary string
		hint   string
		notes  []string
	}{
		{"gocryptfs", "sudo apt install gocryptfs", []string{"gocryptfs note"}},
		{"/usr/local/bin/gocryptfs", "sudo apt install gocryptfs", []string{"gocryptfs note"}},
		{"fusermount", "sudo apt install fuse", nil},
		{"/bin/fusermount3", "sudo apt install fuse3", nil},
	}
	for _, tt := range tests {
		t.Run(tt.binary, func(t *testing.T) {
			hint, notes := installHint(tt.binary, d)
			assert.Equal(t, tt.hint, hint)
			assert.Equal(t, tt.notes, notes)
		})
	}

	hint, notes := installHint("fusermount", console.Detection{})
	assert.Empty(t, hint)
	assert.Contains(t, notes, "No supported package manager detected.")
}
