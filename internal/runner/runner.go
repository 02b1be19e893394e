package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// Redacted replaces sensitive argument values in Result.Argv.
const Redacted = "<redacted>"

var ErrBinaryNotFound = errors.New("binary not found")

// BinaryNotFoundError is returned before anything is spawned when argv[0]
// cannot be resolved to an executable.
type BinaryNotFoundError struct {
	Name string
	Err  error
}

func (e *BinaryNotFoundError) Error() string {
	return fmt.Sprintf("%s: %q is not installed or not on PATH", ErrBinaryNotFound, e.Name)
}

func (e *BinaryNotFoundError) Unwrap() []error {
	return []error{ErrBinaryNotFound, e.Err}
}

// Result is the outcome of one external command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Argv is the executed argument vector with sensitive values redacted.
	Argv []string
}

// Success reports whether the command exited with status 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// CommandLine renders Argv as a copy-pasteable shell command line.
// It is only used for echoing; commands are never run through a shell.
func (r *Result) CommandLine() string {
	if r == nil {
		return ""
	}
	return CommandLine(r.Argv)
}

// CommandLine quotes argv for display.
func CommandLine(argv []string) string {
	return shellescape.QuoteCommand(argv)
}

// Runner executes external tools.
type Runner interface {
	// Run blocks until the process exits. secretInput, when non-nil, is fed to
	// the process on stdin and never appears in the argument vector.
	Run(ctx context.Context, argv []string, secretInput []byte) (*Result, error)
}

// Exec runs commands with os/exec.
type Exec struct {
	// Sensitive lists flags whose values are redacted in Result.Argv.
	Sensitive []string
	// LookPath resolves argv[0]; defaults to exec.LookPath.
	LookPath func(string) (string, error)
	// Env is the child environment; defaults to os.Environ().
	Env []string
}

// DefaultSensitiveFlags are gocryptfs flags that carry secret material or
// point at it.
var DefaultSensitiveFlags = []string{"-extpass", "-passfile", "-masterkey"}

// New returns an Exec runner with the default sensitive flag list.
func New() *Exec {
	return &Exec{Sensitive: DefaultSensitiveFlags}
}

// Lookup checks that name resolves to an executable without running it.
func (e *Exec) Lookup(name string) (string, error) {
	lookPath := e.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(name)
	if err != nil {
		return "", &BinaryNotFoundError{Name: name, Err: err}
	}
	return path, nil
}

// Run implements Runner. It does not retry and does not kill the child when
// ctx is cancelled after the process started.
func (e *Exec) Run(ctx context.Context, argv []string, secretInput []byte) (*Result, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := e.Lookup(argv[0])
	if err != nil {
		return nil, err
	}

	result := &Result{Argv: Redact(argv, e.Sensitive)}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Env = e.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if secretInput != nil {
		cmd.Stdin = bytes.NewReader(secretInput)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
		return result, fmt.Errorf("failed to run %s: %w", argv[0], err)
	}
	return result, nil
}

// Redact returns a copy of argv with the values of sensitive flags replaced.
// Both "-flag value" and "-flag=value" forms are handled.
func Redact(argv []string, sensitive []string) []string {
	out := make([]string, len(argv))
	copy(out, argv)

	isSensitive := func(arg string) bool {
		for _, s := range sensitive {
			if arg == s || arg == "-"+s {
				return true
			}
		}
		return false
	}

	for i := 0; i < len(out); i++ {
		arg := out[i]
		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") && isSensitive(name) {
			out[i] = name + "=" + Redacted
			continue
		}
		if isSensitive(arg) && i+1 < len(out) {
			out[i+1] = Redacted
			i++
		}
	}
	return out
}
