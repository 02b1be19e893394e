package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/illarion/mithril/internal/audit"
	"github.com/illarion/mithril/internal/desktop"
	"github.com/illarion/mithril/internal/mounttable"
	"github.com/illarion/mithril/internal/prompt"
	"github.com/illarion/mithril/internal/runner"
	"github.com/illarion/mithril/internal/security"
	"github.com/illarion/mithril/internal/session"
	"github.com/illarion/mithril/internal/storage"
)

const (
	DirPermSecure = 0700 // Directory: owner rwx only

	// maxConfirmAttempts bounds re-prompting when a new password and its
	// confirmation differ.
	maxConfirmAttempts = 3
	// maxSteps bounds the transitions of one EnsureMounted call.
	maxSteps = 5
)

// Echoer receives every command line before it runs.
type Echoer interface {
	Write(text string)
}

// Auditor records deletions.
type Auditor interface {
	Append(e audit.Event) error
}

// Options wires a Manager to its collaborators. Runner, Session, Catalog and
// Prompter are required.
type Options struct {
	Tool         Tool
	AllowedRoots []string
	Runner       runner.Runner
	Session      *SessionContext
	Catalog      *Catalog
	Prompter     prompt.Prompter
	Opener       desktop.Opener
	Echo         Echoer
	Audit        Auditor
	Logger       zerolog.Logger
}

// Manager drives the lifecycle of the volumes in one profile. Operations on
// the same volume are serialized; different volumes proceed concurrently.
type Manager struct {
	tool     Tool
	roots    []string
	runner   runner.Runner
	session  *SessionContext
	catalog  *Catalog
	prompter prompt.Prompter
	opener   desktop.Opener
	echo     Echoer
	audit    Auditor
	logger   zerolog.Logger

	locks volumeLocks

	mu     sync.Mutex
	states map[string]MountState
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		tool:     opts.Tool,
		roots:    opts.AllowedRoots,
		runner:   opts.Runner,
		session:  opts.Session,
		catalog:  opts.Catalog,
		prompter: opts.Prompter,
		opener:   opts.Opener,
		echo:     opts.Echo,
		audit:    opts.Audit,
		logger:   opts.Logger,
		states:   make(map[string]MountState),
	}
	if m.echo == nil {
		m.echo = nopEcho{}
	}
	if m.audit == nil {
		m.audit = nopAudit{}
	}
	return m
}

type nopEcho struct{}

func (nopEcho) Write(string) {}

type nopAudit struct{}

func (nopAudit) Append(audit.Event) error { return nil }

// Catalog returns the volume catalog.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Session returns the shared session context.
func (m *Manager) Session() *SessionContext {
	return m.session
}

// volumeLocks hands out one single-slot semaphore per volume ID.
type volumeLocks struct {
	mu sync.Mutex
	m  map[string]chan struct{}
}

func (l *volumeLocks) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]chan struct{})
	}
	ch, ok := l.m[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.m[id] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrVolumeBusy, ctx.Err())
	}
}

func (m *Manager) record(id string, s MountState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = s
}

// observe records a probe taken outside any operation. It leaves the
// transient state of a running operation in place.
func (m *Manager) observe(id string, s MountState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[id].Transient() {
		return
	}
	m.states[id] = s
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
}

// State returns the last state recorded for a volume: a transient state while
// an operation runs, otherwise the result of the most recent probe.
func (m *Manager) State(id string) MountState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

// resolveDirs resolves both directories of v.
func resolveDirs(v storage.Volume) (cipher, mount security.ResolvedPath, err error) {
	cipher, err = security.Resolve(v.CipherDir)
	if err != nil {
		return cipher, mount, fmt.Errorf("%w: cipher_dir: %w", ErrValidation, err)
	}
	mount, err = security.Resolve(v.MountPoint)
	if err != nil {
		return cipher, mount, fmt.Errorf("%w: mount_point: %w", ErrValidation, err)
	}
	return cipher, mount, nil
}

// dirPresent treats a disconnected FUSE endpoint as present: the directory
// is there, only its stale mount is broken.
func dirPresent(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Is(err, unix.ENOTCONN)
	}
	return info.IsDir()
}

// Probe recomputes the state of a volume from the filesystem and a fresh
// mount table.
func (m *Manager) Probe(ctx context.Context, ref string) (MountState, error) {
	v, err := m.catalog.Lookup(ref)
	if err != nil {
		return StateUnknown, err
	}
	table, err := m.mountTable(ctx)
	if err != nil {
		return StateUnknown, err
	}
	state, err := m.probeWith(v, table)
	if err == nil {
		m.observe(v.ID, state)
	}
	return state, err
}

// probe is Probe for a caller holding the volume lock.
func (m *Manager) probe(ctx context.Context, v storage.Volume) (MountState, error) {
	table, err := m.mountTable(ctx)
	if err != nil {
		return StateUnknown, err
	}
	state, err := m.probeWith(v, table)
	if err == nil {
		m.record(v.ID, state)
	}
	return state, err
}

func (m *Manager) mountTable(ctx context.Context) (*mounttable.Table, error) {
	table, err := m.session.RefreshMountTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	return table, nil
}

func (m *Manager) probeWith(v storage.Volume, table *mounttable.Table) (MountState, error) {
	cipher, mount, err := resolveDirs(v)
	if err != nil {
		return StateError, err
	}
	if table.Contains(mount.Path) || table.Contains(mount.Original) {
		return StateMounted, nil
	}
	if !dirPresent(cipher.Path) || !dirPresent(mount.Path) {
		return StateMissingDirs, nil
	}
	if _, err := os.Stat(m.tool.MarkerPath(v, cipher.Path)); err != nil {
		return StateNeedsInit, nil
	}
	return StateUnmounted, nil
}

// VolumeStatus is one row of Status.
type VolumeStatus struct {
	Volume storage.Volume
	State  MountState
	Err    error
}

// Status probes every volume of the profile against one mount table read.
func (m *Manager) Status(ctx context.Context) ([]VolumeStatus, error) {
	volumes, err := m.catalog.Volumes()
	if err != nil {
		return nil, err
	}
	table, err := m.mountTable(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]VolumeStatus, 0, len(volumes))
	for _, v := range volumes {
		state, err := m.probeWith(v, table)
		if err == nil {
			m.observe(v.ID, state)
		}
		out = append(out, VolumeStatus{Volume: v, State: state, Err: err})
	}
	return out, nil
}

// mountOp carries one EnsureMounted call through its steps.
type mountOp struct {
	volume    storage.Volume
	automount bool
	log       zerolog.Logger
	// secret set by initialization, consumed by the first mount attempt.
	secret []byte
}

func (op *mountOp) wipe() {
	session.ClearBytes(op.secret)
	op.secret = nil
}

// EnsureMounted takes a volume from whatever state it is in to Mounted:
// creating missing directories (after confirmation), initializing, then
// mounting. A failure at any step ends the call; the returned state is a
// fresh probe in that case.
func (m *Manager) EnsureMounted(ctx context.Context, ref string) (MountState, error) {
	return m.ensure(ctx, ref, false)
}

func (m *Manager) ensure(ctx context.Context, ref string, automount bool) (MountState, error) {
	v, err := m.catalog.Lookup(ref)
	if err != nil {
		return StateUnknown, err
	}
	release, err := m.locks.acquire(ctx, v.ID)
	if err != nil {
		return m.State(v.ID), err
	}
	defer release()

	op := &mountOp{
		volume:    v,
		automount: automount,
		log:       m.logger.With().Str("volume", v.Label).Str("op", "mount").Logger(),
	}
	defer op.wipe()

	state, err := m.probe(ctx, v)
	for step := 0; err == nil && state != StateMounted; step++ {
		if step == maxSteps {
			err = fmt.Errorf("volume %s is stuck in state %s", v.Label, state)
			break
		}
		op.log.Debug().Stringer("state", state).Msg("step")
		switch state {
		case StateMissingDirs:
			state, err = m.createDirs(ctx, op)
		case StateNeedsInit:
			state, err = m.initialize(ctx, op)
		case StateUnmounted, StateReadyToMount:
			state, err = m.mount(ctx, op)
		default:
			err = fmt.Errorf("volume %s is in unexpected state %s", v.Label, state)
		}
	}
	if err != nil {
		return m.settle(ctx, v, err)
	}
	return StateMounted, nil
}

// settle records a fresh probe after a failure and returns cause.
func (m *Manager) settle(ctx context.Context, v storage.Volume, cause error) (MountState, error) {
	state, err := m.probe(ctx, v)
	if err != nil {
		state = StateError
		m.record(v.ID, state)
	}
	return state, cause
}

func (m *Manager) createDirs(ctx context.Context, op *mountOp) (MountState, error) {
	cipher, mount, err := resolveDirs(op.volume)
	if err != nil {
		return StateMissingDirs, err
	}
	var missing []string
	for _, p := range []string{cipher.Path, mount.Path} {
		if !dirPresent(p) {
			missing = append(missing, p)
		}
	}
	if op.automount {
		return StateMissingDirs, fmt.Errorf("%w: missing directories %v", ErrAborted, missing)
	}

	ok, err := m.prompter.Confirm(ctx, fmt.Sprintf("Create missing directories for %s: %v?", op.volume.Label, missing))
	if err != nil {
		return StateMissingDirs, err
	}
	if !ok {
		return StateMissingDirs, fmt.Errorf("%w: directories not created", ErrAborted)
	}
	for _, p := range missing {
		if err := os.MkdirAll(p, DirPermSecure); err != nil {
			return StateMissingDirs, fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
		op.log.Info().Str("path", p).Msg("created directory")
	}
	return m.probe(ctx, op.volume)
}

func (m *Manager) initialize(ctx context.Context, op *mountOp) (MountState, error) {
	v := op.volume
	if op.automount {
		return StateNeedsInit, fmt.Errorf("%w: %s", ErrNotInitialized, v.Label)
	}

	cipher, _, err := resolveDirs(v)
	if err != nil {
		return StateNeedsInit, err
	}
	argv, err := m.tool.InitArgs(v, cipher.Path)
	if err != nil {
		m.resetCost(op)
		return StateNeedsInit, err
	}

	m.record(v.ID, StateInitializing)
	secret, err := m.newSecret(ctx, v.Label)
	if err != nil {
		return StateNeedsInit, err
	}

	res, err := m.run(ctx, op.log, argv, session.Line(secret, 2))
	if err != nil {
		session.ClearBytes(secret)
		return StateNeedsInit, err
	}
	if !res.Success() {
		session.ClearBytes(secret)
		return StateNeedsInit, toolError("init", ErrInitializationFailed, res)
	}

	op.log.Info().Str("cipher_dir", cipher.Path).Msg("initialized")
	op.secret = secret
	m.record(v.ID, StateReadyToMount)
	return StateReadyToMount, nil
}

// newSecret asks for a new password and its confirmation until both match.
func (m *Manager) newSecret(ctx context.Context, label string) ([]byte, error) {
	for attempt := 1; attempt <= maxConfirmAttempts; attempt++ {
		first, _, err := m.prompter.Password(ctx, prompt.PasswordRequest{Label: label, Purpose: prompt.PurposeNew})
		if err != nil {
			return nil, err
		}
		second, _, err := m.prompter.Password(ctx, prompt.PasswordRequest{Label: label, Purpose: prompt.PurposeConfirm})
		if err != nil {
			session.ClearBytes(first)
			return nil, err
		}
		match := session.ConstantTimeCompare(first, second)
		session.ClearBytes(second)
		if match {
			return first, nil
		}
		session.ClearBytes(first)
		m.logger.Warn().Str("volume", label).Int("attempt", attempt).Msg("passwords do not match")
	}
	return nil, ErrPasswordMismatch
}

func (m *Manager) mount(ctx context.Context, op *mountOp) (MountState, error) {
	v := op.volume
	cipher, mount, err := resolveDirs(v)
	if err != nil {
		return StateUnmounted, err
	}
	argv, err := m.tool.MountArgs(v, cipher.Path, mount.Path)
	if err != nil {
		m.resetCost(op)
		return StateUnmounted, err
	}
	// A disconnected endpoint fails every check until it is unmounted.
	stale := staleEndpoint(mount.Path)
	if stale {
		m.record(v.ID, StateMounting)
		m.bestEffortUnmount(ctx, op, mount.Path)
	}
	if err := checkMountPoint(mount.Path); err != nil {
		return StateUnmounted, err
	}

	m.record(v.ID, StateMounting)
	if !stale {
		m.bestEffortUnmount(ctx, op, mount.Path)
	}

	for attempt := 0; ; attempt++ {
		retry := attempt > 0
		secret, remember, err := m.mountSecret(ctx, op, retry)
		if err != nil {
			if retry {
				return StateUnmounted, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
			}
			return StateUnmounted, err
		}

		res, err := m.run(ctx, op.log, argv, session.Line(secret, 1))
		if err != nil {
			session.ClearBytes(secret)
			return StateUnmounted, err
		}
		if res.Success() {
			if remember {
				m.session.Credentials().Set(secret, true)
			}
			session.ClearBytes(secret)
			break
		}
		session.ClearBytes(secret)

		if !isAuthFailure(res, m.tool.AuthExitCode) {
			return StateUnmounted, toolError("mount", ErrProcessFailure, res)
		}
		m.session.Credentials().Clear()
		op.log.Warn().Int("attempt", attempt+1).Msg("password rejected")
		if retry {
			return StateUnmounted, toolError("mount", ErrAuthenticationFailed, res)
		}
	}

	state, err := m.probe(ctx, v)
	if err != nil {
		return state, err
	}
	if state != StateMounted {
		return state, fmt.Errorf("%w: mount reported success but %s is not in the mount table", ErrProcessFailure, mount.Path)
	}
	op.log.Info().Str("mount_point", mount.Path).Msg("mounted")

	if v.AutoOpen && m.opener != nil {
		if err := m.opener.Open(ctx, mount.Path); err != nil {
			op.log.Warn().Err(err).Msg("failed to open mount point")
		}
	}
	return StateMounted, nil
}

// mountSecret picks the secret for a mount attempt: the one chosen during
// initialization, then the session cache, then the user. A retry always asks.
func (m *Manager) mountSecret(ctx context.Context, op *mountOp, retry bool) ([]byte, bool, error) {
	if !retry {
		if op.secret != nil {
			secret := op.secret
			op.secret = nil
			return secret, false, nil
		}
		if cached := m.session.Credentials().Get(); cached != nil {
			return cached, false, nil
		}
	}
	return m.prompter.Password(ctx, prompt.PasswordRequest{
		Label:     op.volume.Label,
		Purpose:   prompt.PurposeUnlock,
		Incorrect: retry,
	})
}

// staleEndpoint reports whether path is a FUSE mount whose daemon is gone.
var staleEndpoint = func(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, unix.ENOTCONN)
}

// checkMountPoint rejects targets that would hide or clobber existing files.
func checkMountPoint(path string) error {
	if err := unix.Access(path, unix.W_OK); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMountPointNotWritable, path, err)
	}
	if security.CountEntries(path, 0) > 0 {
		return fmt.Errorf("%w: %s", ErrMountPointNotEmpty, path)
	}
	return nil
}

// bestEffortUnmount clears a stale mount left by a crashed session.
func (m *Manager) bestEffortUnmount(ctx context.Context, op *mountOp, mountPoint string) {
	res, err := m.run(ctx, op.log, m.tool.UnmountArgs(mountPoint), nil)
	switch {
	case err != nil:
		op.log.Debug().Err(err).Msg("pre-mount unmount skipped")
	case !res.Success():
		op.log.Debug().Int("exit", res.ExitCode).Msg("nothing to unmount")
	}
}

// resetCost replaces an out-of-range scryptn in the stored volume with the
// default.
func (m *Manager) resetCost(op *mountOp) {
	bad := op.volume.Flags.ScryptN
	op.volume.Flags.ScryptN = 0
	if err := m.catalog.Update(op.volume); err != nil {
		op.log.Warn().Err(err).Msg("failed to reset scryptn")
		return
	}
	op.log.Warn().Int("scryptn", bad).Msg("invalid scryptn reset to default")
}

// Unmount unmounts a volume. No password is needed.
func (m *Manager) Unmount(ctx context.Context, ref string) (MountState, error) {
	v, err := m.catalog.Lookup(ref)
	if err != nil {
		return StateUnknown, err
	}
	release, err := m.locks.acquire(ctx, v.ID)
	if err != nil {
		return m.State(v.ID), err
	}
	defer release()

	return m.unmountLocked(ctx, v, m.logger.With().Str("volume", v.Label).Str("op", "unmount").Logger())
}

func (m *Manager) unmountLocked(ctx context.Context, v storage.Volume, log zerolog.Logger) (MountState, error) {
	_, mount, err := resolveDirs(v)
	if err != nil {
		return StateError, err
	}

	m.record(v.ID, StateUnmounting)
	res, runErr := m.run(ctx, log, m.tool.UnmountArgs(mount.Path), nil)
	if runErr == nil && !res.Success() {
		runErr = toolError("unmount", ErrProcessFailure, res)
	}

	state, err := m.probe(ctx, v)
	if err != nil {
		m.record(v.ID, StateError)
		if runErr != nil {
			return StateError, runErr
		}
		return StateError, err
	}
	if runErr != nil {
		return state, runErr
	}
	log.Info().Stringer("state", state).Msg("unmounted")
	return state, nil
}

// ChangePassword re-keys an initialized volume. An authentication failure
// clears the cached secret.
func (m *Manager) ChangePassword(ctx context.Context, ref string) error {
	v, err := m.catalog.Lookup(ref)
	if err != nil {
		return err
	}
	release, err := m.locks.acquire(ctx, v.ID)
	if err != nil {
		return err
	}
	defer release()

	op := &mountOp{volume: v, log: m.logger.With().Str("volume", v.Label).Str("op", "passwd").Logger()}

	state, err := m.probe(ctx, v)
	if err != nil {
		return err
	}
	if state == StateMissingDirs || state == StateNeedsInit {
		return fmt.Errorf("%w: %s", ErrNotInitialized, v.Label)
	}

	cipher, _, err := resolveDirs(v)
	if err != nil {
		return err
	}
	argv, err := m.tool.PasswdArgs(v, cipher.Path)
	if err != nil {
		m.resetCost(op)
		return err
	}

	creds := m.session.Credentials()
	current := creds.Get()
	fromCache := current != nil
	if current == nil {
		current, _, err = m.prompter.Password(ctx, prompt.PasswordRequest{Label: v.Label, Purpose: prompt.PurposeCurrent})
		if err != nil {
			return err
		}
	}
	defer session.ClearBytes(current)

	next, err := m.newSecret(ctx, v.Label)
	if err != nil {
		return err
	}
	defer session.ClearBytes(next)

	oldLine := session.Line(current, 1)
	newLines := session.Line(next, 2)
	input := make([]byte, 0, len(oldLine)+len(newLines))
	input = append(append(input, oldLine...), newLines...)
	session.ClearBytes(oldLine)
	session.ClearBytes(newLines)

	res, err := m.run(ctx, op.log, argv, input)
	if err != nil {
		return err
	}
	if !res.Success() {
		if isAuthFailure(res, m.tool.AuthExitCode) {
			creds.Clear()
			return toolError("passwd", ErrAuthenticationFailed, res)
		}
		return toolError("passwd", ErrProcessFailure, res)
	}
	if fromCache {
		creds.Set(next, true)
	}
	op.log.Info().Msg("password changed")
	return nil
}

// run echoes and executes argv. input is wiped afterwards.
func (m *Manager) run(ctx context.Context, log zerolog.Logger, argv []string, input []byte) (*runner.Result, error) {
	defer session.ClearBytes(input)

	line := runner.CommandLine(runner.Redact(argv, runner.DefaultSensitiveFlags))
	m.echo.Write(line)
	log.Debug().Str("cmd", line).Msg("running")

	res, err := m.runner.Run(ctx, argv, input)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("exit", res.ExitCode).Msg("finished")
	return res, nil
}
