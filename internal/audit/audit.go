// Package audit appends deletion events to a plain-text log.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Status of a deletion event.
type Status string

const (
	StatusRemovedTree Status = "removed-tree"
	StatusRemovedLink Status = "removed-link"
)

// Event is one audit record.
type Event struct {
	Time    time.Time
	Status  Status
	Profile string
	Volume  string
	Path    string
}

// Line renders the event as a single log line without the trailing newline.
func (e Event) Line() string {
	return fmt.Sprintf("%s | %s | profile=%s | volume=%s | path=%s",
		e.Time.UTC().Format(time.RFC3339),
		e.Status,
		oneLine(e.Profile),
		oneLine(e.Volume),
		oneLine(e.Path),
	)
}

func oneLine(s string) string {
	return strings.NewReplacer("\n", `\n`, "\r", `\r`).Replace(s)
}

// Log appends events to a file, creating it with owner-only permissions.
type Log struct {
	Path string
	Now  func() time.Time

	mu sync.Mutex
}

// New returns a Log writing to path.
func New(path string) *Log {
	return &Log{Path: path, Now: time.Now}
}

// Append writes one event. A zero Time is filled in from Now.
func (l *Log) Append(e Event) error {
	if l == nil || l.Path == "" {
		return nil
	}
	if e.Time.IsZero() {
		now := l.Now
		if now == nil {
			now = time.Now
		}
		e.Time = now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.Path), 0700); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}
	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	if _, err := f.WriteString(e.Line() + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return f.Close()
}
