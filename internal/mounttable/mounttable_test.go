package mounttable

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longForm = `proc on /proc type proc (rw,nosuid,nodev,noexec,relatime)
/dev/sda1 on / type ext4 (rw,relatime)
/home/u/Encrypted/docs on /home/u/Secure/docs type fuse.gocryptfs (rw,nosuid,nodev,relatime,user_id=1000,group_id=1000)
/home/u/Encrypted/My Photos on /home/u/Secure/My Photos type fuse.gocryptfs (rw,nosuid,nodev)
sshfs#host: on /mnt/remote type fuse.sshfs (rw)
`

const procForm = `sysfs /sys sysfs rw,nosuid,nodev,noexec,relatime 0 0
/home/u/Encrypted/docs /home/u/Secure/docs fuse.gocryptfs rw,nosuid,nodev,relatime,user_id=1000 0 0
/home/u/Encrypted/My\040Photos /home/u/Secure/My\040Photos fuse.gocryptfs rw 0 0
`

func TestParse_LongForm(t *testing.T) {
	table, err := Parse(strings.NewReader(longForm), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultFSType, table.FSType)
	require.Len(t, table.Entries, 2)
	assert.Equal(t, "/home/u/Encrypted/docs", table.Entries[0].Source)
	assert.Equal(t, []string{"/home/u/Secure/docs", "/home/u/Secure/My Photos"}, table.MountPoints())
}

func TestParse_ProcForm(t *testing.T) {
	table, err := Parse(strings.NewReader(procForm), DefaultFSType)
	require.NoError(t, err)
	require.Len(t, table.Entries, 2)
	assert.True(t, table.Contains("/home/u/Secure/docs"))
	assert.True(t, table.Contains("/home/u/Secure/My Photos"))
	assert.Equal(t, "/home/u/Encrypted/My Photos", table.Entries[1].Source)
}

func TestParse_OtherFSType(t *testing.T) {
	table, err := Parse(strings.NewReader(longForm), "fuse.sshfs")
	require.NoError(t, err)
	assert.Equal(t, []string{"/mnt/remote"}, table.MountPoints())
	assert.False(t, table.Contains("/home/u/Secure/docs"))
}

func TestParse_SkipsGarbage(t *testing.T) {
	table, err := Parse(strings.NewReader("\n# comment\nonly two\n"), "")
	require.NoError(t, err)
	assert.Empty(t, table.Entries)
}

func TestTable_Contains(t *testing.T) {
	table := &Table{Entries: []Entry{{MountPoint: "/home/u/Secure/docs"}}}
	assert.True(t, table.Contains("/home/u/Secure/docs/"))
	assert.True(t, table.Contains("/home/u/Secure/./docs"))
	assert.False(t, table.Contains("/home/u/Secure"))
	assert.False(t, table.Contains("/home/u/Secure/docs2"))

	var empty *Table
	assert.False(t, empty.Contains("/"))
	assert.Nil(t, empty.MountPoints())
}

func TestUnescape(t *testing.T) {
	assert.Equal(t, "a b", unescape(`a\040b`))
	assert.Equal(t, "a\tb", unescape(`a\011b`))
	assert.Equal(t, `a\b`, unescape(`a\134b`))
	assert.Equal(t, `trailing\04`, unescape(`trailing\04`))
	assert.Equal(t, "plain", unescape("plain"))
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(path, []byte(procForm), 0600))

	table, err := FileSource{Path: path}.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, table.Entries, 2)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing")}.Read(context.Background())
	assert.Error(t, err)
}

func TestLiveSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LiveSource{}.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
