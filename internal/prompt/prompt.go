package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/illarion/mithril/internal/session"
)

var (
	ErrCancelled     = errors.New("input cancelled")
	ErrEmptyPassword = errors.New("empty password")
	ErrEnvRejected   = errors.New("password from environment was rejected")
)

const (
	// EnvPassword supplies the password of an existing volume.
	EnvPassword = "MITHRIL_PASSWORD"
	// EnvNewPassword supplies a new password. Falls back to EnvPassword.
	EnvNewPassword = "MITHRIL_NEW_PASSWORD"
)

// Purpose says what a requested secret is for.
type Purpose int

const (
	PurposeUnlock Purpose = iota
	PurposeNew
	PurposeConfirm
	PurposeCurrent
)

// RememberPolicy controls whether unlock passwords are cached for the session.
type RememberPolicy string

const (
	RememberAsk    RememberPolicy = "ask"
	RememberAlways RememberPolicy = "always"
	RememberNever  RememberPolicy = "never"
)

// PasswordRequest describes one password prompt.
type PasswordRequest struct {
	Label   string
	Purpose Purpose
	// Incorrect is set when the previous password was rejected by the tool.
	Incorrect bool
}

func (r PasswordRequest) text() string {
	var s string
	switch r.Purpose {
	case PurposeNew:
		s = fmt.Sprintf("New password for %s: ", r.Label)
	case PurposeConfirm:
		s = fmt.Sprintf("Confirm password for %s: ", r.Label)
	case PurposeCurrent:
		s = fmt.Sprintf("Current password for %s: ", r.Label)
	default:
		s = fmt.Sprintf("Password for %s: ", r.Label)
	}
	if r.Incorrect {
		s = "Incorrect password. " + s
	}
	return s
}

// Prompter collects input from the user.
type Prompter interface {
	// Password returns the secret and whether the user wants it remembered
	// for the rest of the session. The caller owns the returned slice.
	Password(ctx context.Context, req PasswordRequest) ([]byte, bool, error)
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string) (bool, error)
	// Token asks the user to type a value back, e.g. a label or a path.
	Token(ctx context.Context, message string) (string, error)
}

// Terminal prompts on a terminal, or reads lines when input is not a TTY.
// Prompts are serialized so concurrent operations never interleave.
type Terminal struct {
	In       *os.File
	Out      io.Writer
	Remember RememberPolicy
	Getenv   func(string) string

	mu     sync.Mutex
	reader *bufio.Reader
}

// NewTerminal prompts on stdin/stderr.
func NewTerminal(remember RememberPolicy) *Terminal {
	return &Terminal{
		In:       os.Stdin,
		Out:      os.Stderr,
		Remember: remember,
		Getenv:   os.Getenv,
	}
}

func (t *Terminal) Password(ctx context.Context, req PasswordRequest) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	if secret, ok := t.fromEnv(req.Purpose); ok {
		if req.Incorrect {
			session.ClearBytes(secret)
			return nil, false, ErrEnvRejected
		}
		return secret, t.Remember == RememberAlways, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	secret, err := t.readSecret(req.text())
	if err != nil {
		return nil, false, err
	}
	if len(secret) == 0 {
		return nil, false, ErrEmptyPassword
	}

	remember := false
	if req.Purpose == PurposeUnlock {
		switch t.Remember {
		case RememberAlways:
			remember = true
		case RememberAsk:
			remember, err = t.askYesNo("Remember password for this session? [y/N]: ")
			if err != nil {
				session.ClearBytes(secret)
				return nil, false, err
			}
		}
	}
	return secret, remember, nil
}

func (t *Terminal) fromEnv(p Purpose) ([]byte, bool) {
	getenv := t.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	var v string
	if p == PurposeNew || p == PurposeConfirm {
		v = getenv(EnvNewPassword)
	}
	if v == "" {
		v = getenv(EnvPassword)
	}
	if v == "" {
		return nil, false
	}
	return []byte(v), true
}

func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.askYesNo(question + " [y/N]: ")
}

func (t *Terminal) Token(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.Out, message)
	return t.readLine()
}

func (t *Terminal) askYesNo(question string) (bool, error) {
	fmt.Fprint(t.Out, question)
	answer, err := t.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (t *Terminal) readSecret(text string) ([]byte, error) {
	fmt.Fprint(t.Out, text)
	fd := int(t.In.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(t.Out)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return secret, nil
	}
	line, err := t.readLine()
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

func (t *Terminal) readLine() (string, error) {
	if t.reader == nil {
		t.reader = bufio.NewReader(t.In)
	}
	line, err := t.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		if errors.Is(err, io.EOF) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
