package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/illarion/mithril/internal/audit"
	"github.com/illarion/mithril/internal/mounttable"
	"github.com/illarion/mithril/internal/prompt"
	"github.com/illarion/mithril/internal/runner"
	"github.com/illarion/mithril/internal/session"
	"github.com/illarion/mithril/internal/storage"
)

// fakeMounts is an in-memory mount table.
type fakeMounts struct {
	mu     sync.Mutex
	points map[string]bool
	err    error
}

func (f *fakeMounts) Read(ctx context.Context) (*mounttable.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &mounttable.Table{FSType: mounttable.DefaultFSType}
	for p := range f.points {
		t.Entries = append(t.Entries, mounttable.Entry{Source: "cipher", MountPoint: p, FSType: mounttable.DefaultFSType})
	}
	return t, nil
}

func (f *fakeMounts) set(path string, mounted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mounted {
		f.points[path] = true
	} else {
		delete(f.points, path)
	}
}

func (f *fakeMounts) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.points[path]
}

type call struct {
	argv  []string
	stdin string
}

// fakeTool behaves like gocryptfs and fusermount against fakeMounts.
type fakeTool struct {
	mu       sync.Mutex
	calls    []call
	mounts   *fakeMounts
	password string

	// mountResult overrides the outcome of mount calls.
	mountResult *runner.Result
	// skipTable makes successful mounts not show up in the table.
	skipTable bool
	// unmountBusy makes fusermount fail on mounted points.
	unmountBusy bool
	// stale holds disconnected endpoints that are not in the table.
	// Unmounting one removes staleLeftover from it.
	stale map[string]bool
	err   error
}

const staleLeftover = ".fuse_hidden0001"

func (f *fakeTool) isStale(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale[path]
}

func (f *fakeTool) Run(ctx context.Context, argv []string, input []byte) (*runner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{argv: append([]string(nil), argv...), stdin: string(input)})
	if f.err != nil {
		return nil, f.err
	}

	lines := strings.Split(string(input), "\n")
	last := argv[len(argv)-1]
	ok := &runner.Result{Argv: argv}
	incorrect := &runner.Result{Argv: argv, ExitCode: 12, Stderr: "Password incorrect.\n"}

	switch {
	case argv[0] == "fusermount":
		if f.stale[last] {
			delete(f.stale, last)
			os.Remove(filepath.Join(last, staleLeftover))
			return ok, nil
		}
		if !f.mounts.has(last) {
			return &runner.Result{Argv: argv, ExitCode: 1, Stderr: "fusermount: entry for " + last + " not found in /etc/mtab\n"}, nil
		}
		if f.unmountBusy {
			return &runner.Result{Argv: argv, ExitCode: 1, Stderr: "fusermount: failed to unmount " + last + ": Device or resource busy\n"}, nil
		}
		f.mounts.set(last, false)
		return ok, nil
	case contains(argv, "-init"):
		marker := "gocryptfs.conf"
		if contains(argv, "-reverse") {
			marker = ".gocryptfs.reverse.conf"
		}
		if err := os.WriteFile(filepath.Join(last, marker), []byte("{}"), 0400); err != nil {
			return &runner.Result{Argv: argv, ExitCode: 6, Stderr: err.Error()}, nil
		}
		f.password = lines[0]
		return ok, nil
	case contains(argv, "-passwd"):
		if lines[0] != f.password {
			return incorrect, nil
		}
		f.password = lines[1]
		return ok, nil
	default:
		if f.mountResult != nil {
			return f.mountResult, nil
		}
		if lines[0] != f.password {
			return incorrect, nil
		}
		if !f.skipTable {
			f.mounts.set(last, true)
		}
		return ok, nil
	}
}

func (f *fakeTool) history() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// mountCalls returns gocryptfs invocations that are neither -init nor -passwd.
func (f *fakeTool) mountCalls() []call {
	var out []call
	for _, c := range f.history() {
		if c.argv[0] == "gocryptfs" && !contains(c.argv, "-init") && !contains(c.argv, "-passwd") {
			out = append(out, c)
		}
	}
	return out
}

func contains(argv []string, s string) bool {
	for _, a := range argv {
		if a == s {
			return true
		}
	}
	return false
}

// fakePrompter answers from queues.
type fakePrompter struct {
	mu        sync.Mutex
	passwords []string
	// fallback answers password prompts once the queue is empty.
	fallback  string
	remember  bool
	confirm   bool
	tokens    []string
	requests  []prompt.PasswordRequest
	questions []string

	// gates hold password prompts for a label until the channel is closed.
	gates map[string]chan struct{}
	// held receives the label of every prompt stopped at a gate.
	held chan string
}

func (p *fakePrompter) Password(ctx context.Context, req prompt.PasswordRequest) ([]byte, bool, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	gate := p.gates[req.Label]
	p.mu.Unlock()

	if gate != nil {
		if p.held != nil {
			p.held <- req.Label
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.passwords) == 0 {
		if p.fallback != "" {
			return []byte(p.fallback), p.remember, nil
		}
		return nil, false, prompt.ErrCancelled
	}
	pw := p.passwords[0]
	p.passwords = p.passwords[1:]
	return []byte(pw), p.remember, nil
}

func (p *fakePrompter) Confirm(ctx context.Context, question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.questions = append(p.questions, question)
	return p.confirm, nil
}

func (p *fakePrompter) Token(ctx context.Context, message string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.questions = append(p.questions, message)
	if len(p.tokens) == 0 {
		return "", prompt.ErrCancelled
	}
	tok := p.tokens[0]
	p.tokens = p.tokens[1:]
	return tok, nil
}

func (p *fakePrompter) passwordRequests() []prompt.PasswordRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]prompt.PasswordRequest(nil), p.requests...)
}

type fakeEcho struct {
	mu    sync.Mutex
	lines []string
}

func (e *fakeEcho) Write(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = append(e.lines, text)
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
}

func (o *fakeOpener) Open(ctx context.Context, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	return nil
}

type fixture struct {
	t         *testing.T
	home      string
	store     *storage.Storage
	mounts    *fakeMounts
	tool      *fakeTool
	prompter  *fakePrompter
	echo      *fakeEcho
	opener    *fakeOpener
	creds     *session.Credentials
	auditPath string
	manager   *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	home, err := filepath.EvalSymlinks(home)
	require.NoError(t, err)

	state := t.TempDir()
	store, err := storage.Open(filepath.Join(state, "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		t:         t,
		home:      home,
		store:     store,
		mounts:    &fakeMounts{points: make(map[string]bool)},
		prompter:  &fakePrompter{},
		echo:      &fakeEcho{},
		opener:    &fakeOpener{},
		creds:     session.New(),
		auditPath: filepath.Join(state, "deletions.log"),
	}
	f.tool = &fakeTool{mounts: f.mounts}
	f.manager = NewManager(Options{
		Tool:         DefaultTool(),
		AllowedRoots: []string{"~"},
		Runner:       f.tool,
		Session:      NewSessionContext(f.creds, f.mounts),
		Catalog:      NewCatalog(store, storage.DefaultProfile),
		Prompter:     f.prompter,
		Opener:       f.opener,
		Echo:         f.echo,
		Audit:        audit.New(f.auditPath),
		Logger:       zerolog.Nop(),
	})
	return f
}

// addVolume stores a volume under home/vaults and home/mnt.
func (f *fixture) addVolume(label string, mutate func(v *storage.Volume)) storage.Volume {
	f.t.Helper()
	v := storage.NewVolume(label,
		filepath.Join(f.home, "vaults", label+".enc"),
		filepath.Join(f.home, "mnt", label))
	if mutate != nil {
		mutate(&v)
	}
	require.NoError(f.t, f.manager.Catalog().Add(v))
	return v
}

// prepare creates both directories and, when password is not empty, the
// marker of an initialized volume.
func (f *fixture) prepare(v storage.Volume, password string) {
	f.t.Helper()
	require.NoError(f.t, os.MkdirAll(v.CipherDir, 0700))
	require.NoError(f.t, os.MkdirAll(v.MountPoint, 0700))
	if password != "" {
		marker := DefaultTool().MarkerPath(v, v.CipherDir)
		require.NoError(f.t, os.WriteFile(marker, []byte("{}"), 0400))
		f.tool.password = password
	}
}

// storeRaw saves a volume without validation.
func (f *fixture) storeRaw(v storage.Volume) {
	f.t.Helper()
	profiles, err := f.store.Load()
	require.NoError(f.t, err)
	p, err := profiles.Get(storage.DefaultProfile)
	require.NoError(f.t, err)
	p.Volumes = append(p.Volumes, v)
	require.NoError(f.t, f.store.Save(profiles))
}
