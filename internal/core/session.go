package core

import (
	"context"
	"sync"

	"github.com/illarion/mithril/internal/mounttable"
	"github.com/illarion/mithril/internal/session"
)

// SessionContext is the process-wide state shared by lifecycle operations:
// the credential cache and the last mount table snapshot.
type SessionContext struct {
	creds  *session.Credentials
	source mounttable.Source

	mu    sync.RWMutex
	table *mounttable.Table
}

// NewSessionContext reads mount tables from source.
func NewSessionContext(creds *session.Credentials, source mounttable.Source) *SessionContext {
	if creds == nil {
		creds = session.New()
	}
	return &SessionContext{creds: creds, source: source}
}

// Credentials returns the credential cache.
func (s *SessionContext) Credentials() *session.Credentials {
	return s.creds
}

// RefreshMountTable re-reads the mount table. On failure the previous
// snapshot is discarded so nothing is reported as mounted from stale data.
func (s *SessionContext) RefreshMountTable(ctx context.Context) (*mounttable.Table, error) {
	table, err := s.source.Read(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.table = nil
		return nil, err
	}
	s.table = table
	return table, nil
}

// MountTable returns the last snapshot, which may be nil.
func (s *SessionContext) MountTable() *mounttable.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}
