package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLine(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	e := Event{
		Time:    time.Date(2024, 5, 1, 14, 30, 0, 0, loc),
		Status:  StatusRemovedTree,
		Profile: "Default",
		Volume:  "Docs",
		Path:    "/home/u/Encrypted/docs",
	}
	assert.Equal(t, "2024-05-01T12:30:00Z | removed-tree | profile=Default | volume=Docs | path=/home/u/Encrypted/docs", e.Line())

	e.Volume = "evil\nline"
	assert.NotContains(t, e.Line(), "\n")
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l := &Log{Path: path, Now: func() time.Time { return fixed }}

	require.NoError(t, l.Append(Event{Status: StatusRemovedTree, Profile: "Default", Volume: "Docs", Path: "/a"}))
	require.NoError(t, l.Append(Event{Status: StatusRemovedLink, Profile: "Default", Volume: "Docs", Path: "/b"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-01-02T03:04:05Z | removed-tree | profile=Default | volume=Docs | path=/a", lines[0])
	assert.Contains(t, lines[1], "removed-link")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestAppend_Disabled(t *testing.T) {
	var l *Log
	assert.NoError(t, l.Append(Event{}))
	assert.NoError(t, New("").Append(Event{}))
}

func TestAppend_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	l := New(filepath.Join(blocker, "audit.log"))
	assert.Error(t, l.Append(Event{Status: StatusRemovedTree}))
}
