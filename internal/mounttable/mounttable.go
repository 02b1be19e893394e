package mounttable

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/moby/sys/mountinfo"
)

// DefaultFSType is the filesystem type tag gocryptfs registers with FUSE.
const DefaultFSType = "fuse.gocryptfs"

// Entry is one mounted filesystem.
type Entry struct {
	Source     string
	MountPoint string
	FSType     string
}

// Table is a snapshot of the mounts relevant to one filesystem type.
type Table struct {
	FSType  string
	Entries []Entry
}

// Contains reports whether mountPoint is listed. Paths are compared after
// cleaning; symlinks are not evaluated since the kernel records real paths.
func (t *Table) Contains(mountPoint string) bool {
	if t == nil {
		return false
	}
	want := filepath.Clean(mountPoint)
	for _, e := range t.Entries {
		if filepath.Clean(e.MountPoint) == want {
			return true
		}
	}
	return false
}

// MountPoints lists the mount points in the table.
func (t *Table) MountPoints() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.Entries))
	for _, e := range t.Entries {
		out = append(out, e.MountPoint)
	}
	return out
}

// Source produces mount table snapshots.
type Source interface {
	Read(ctx context.Context) (*Table, error)
}

// LiveSource reads the kernel mount table of the current process.
type LiveSource struct {
	FSType string
}

func (s LiveSource) Read(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fsType := s.FSType
	if fsType == "" {
		fsType = DefaultFSType
	}
	infos, err := mountinfo.GetMounts(mountinfo.FSTypeFilter(fsType))
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	table := &Table{FSType: fsType, Entries: make([]Entry, 0, len(infos))}
	for _, info := range infos {
		table.Entries = append(table.Entries, Entry{
			Source:     info.Source,
			MountPoint: info.Mountpoint,
			FSType:     info.FSType,
		})
	}
	return table, nil
}

// FileSource parses a mount listing from a file, either /proc/mounts style or
// the long form printed by mount(8).
type FileSource struct {
	Path   string
	FSType string
}

func (s FileSource) Read(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	defer f.Close()
	return Parse(f, s.FSType)
}

// Parse reads a mount listing and keeps rows whose type equals fsType.
// Lines in the form "SRC on MP type T (opts)" and "SRC MP T opts ..." are
// both accepted; anything else is skipped.
func Parse(r io.Reader, fsType string) (*Table, error) {
	if fsType == "" {
		fsType = DefaultFSType
	}
	table := &Table{FSType: fsType}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry, ok := parseLine(scanner.Text())
		if !ok || entry.FSType != fsType {
			continue
		}
		table.Entries = append(table.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse mount table: %w", err)
	}
	return table, nil
}

func parseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Entry{}, false
	}

	if src, rest, ok := strings.Cut(line, " on "); ok {
		if mp, tail, ok := strings.Cut(rest, " type "); ok {
			fsType, _, _ := strings.Cut(tail, " ")
			return Entry{Source: src, MountPoint: mp, FSType: fsType}, true
		}
	}

	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Entry{}, false
	}
	return Entry{
		Source:     unescape(fields[0]),
		MountPoint: unescape(fields[1]),
		FSType:     fields[2],
	}, true
}

// unescape decodes the \ooo octal escapes used by /proc/mounts for spaces,
// tabs and backslashes.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
