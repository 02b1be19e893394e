package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/mithril/internal/runner"
	"github.com/illarion/mithril/internal/storage"
)

func TestToolArgs(t *testing.T) {
	tool := DefaultTool()

	tests := []struct {
		name  string
		flags storage.Flags
		init  []string
		mount []string
	}{
		{
			name:  "defaults",
			init:  []string{"gocryptfs", "-init", "/c"},
			mount: []string{"gocryptfs", "/c", "/m"},
		},
		{
			name:  "all flags",
			flags: storage.Flags{AllowOther: true, Reverse: true, ScryptN: 20},
			init:  []string{"gocryptfs", "-init", "-reverse", "-scryptn", "20", "/c"},
			mount: []string{"gocryptfs", "-allow_other", "-reverse", "-scryptn", "20", "/c", "/m"},
		},
		{
			name:  "bounds",
			flags: storage.Flags{ScryptN: 10},
			init:  []string{"gocryptfs", "-init", "-scryptn", "10", "/c"},
			mount: []string{"gocryptfs", "-scryptn", "10", "/c", "/m"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := storage.Volume{Flags: tt.flags}
			init, err := tool.InitArgs(v, "/c")
			require.NoError(t, err)
			assert.Equal(t, tt.init, init)
			mount, err := tool.MountArgs(v, "/c", "/m")
			require.NoError(t, err)
			assert.Equal(t, tt.mount, mount)
		})
	}
}

func TestToolArgs_InvalidScryptN(t *testing.T) {
	tool := DefaultTool()
	for _, n := range []int{-1, 9, 29, 64} {
		v := storage.Volume{Flags: storage.Flags{ScryptN: n}}
		_, err := tool.InitArgs(v, "/c")
		assert.ErrorIs(t, err, ErrInvalidCostParameter, "scryptn %d", n)
		_, err = tool.MountArgs(v, "/c", "/m")
		assert.ErrorIs(t, err, ErrInvalidCostParameter, "scryptn %d", n)
		_, err = tool.PasswdArgs(v, "/c")
		assert.ErrorIs(t, err, ErrInvalidCostParameter, "scryptn %d", n)
	}
	assert.True(t, ValidScryptN(0))
	assert.True(t, ValidScryptN(28))
}

func TestToolUnmountArgs(t *testing.T) {
	tool := DefaultTool()
	assert.Equal(t, []string{"fusermount", "-u", "/m"}, tool.UnmountArgs("/m"))

	tool.Unmount = []string{"umount"}
	assert.Equal(t, []string{"umount", "/m"}, tool.UnmountArgs("/m"))
	assert.Equal(t, []string{"umount"}, tool.Unmount, "prefix is not modified")
}

func TestMarkerPath(t *testing.T) {
	tool := DefaultTool()
	assert.Equal(t, filepath.Join("/c", "gocryptfs.conf"), tool.MarkerPath(storage.Volume{}, "/c"))
	rev := storage.Volume{Flags: storage.Flags{Reverse: true}}
	assert.Equal(t, filepath.Join("/c", ".gocryptfs.reverse.conf"), tool.MarkerPath(rev, "/c"))
}

func TestIsAuthFailure(t *testing.T) {
	tests := []struct {
		name string
		res  *runner.Result
		want bool
	}{
		{"success", &runner.Result{}, false},
		{"exit code", &runner.Result{ExitCode: 12}, true},
		{"stderr", &runner.Result{ExitCode: 1, Stderr: "Password incorrect."}, true},
		{"other failure", &runner.Result{ExitCode: 1, Stderr: "fuse: device not found"}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAuthFailure(tt.res, 12))
		})
	}
}

func TestToolError(t *testing.T) {
	err := toolError("mount", ErrProcessFailure, &runner.Result{ExitCode: 8, Stderr: "  no such file\n"})
	assert.ErrorIs(t, err, ErrProcessFailure)
	assert.Equal(t, "external tool failed: mount exited with status 8: no such file", err.Error())
}

func TestMountStateString(t *testing.T) {
	assert.Equal(t, "missing-dirs", StateMissingDirs.String())
	assert.Equal(t, "mounted", StateMounted.String())
	assert.Equal(t, "state(42)", MountState(42).String())
	assert.True(t, StateMounting.Transient())
	assert.False(t, StateMounted.Transient())
}
