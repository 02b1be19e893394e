package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/illarion/mithril/internal/runner"
	"github.com/illarion/mithril/internal/storage"
)

var (
	// ErrValidation covers local input problems; the operation can be retried
	// with different input.
	ErrValidation            = errors.New("validation failed")
	ErrMountPointNotEmpty    = fmt.Errorf("%w: mount point is not empty", ErrValidation)
	ErrMountPointNotWritable = fmt.Errorf("%w: mount point is not writable", ErrValidation)
	ErrInvalidCostParameter  = fmt.Errorf("%w: scryptn must be between 10 and 28", ErrValidation)
	ErrPasswordMismatch      = fmt.Errorf("%w: passwords do not match", ErrValidation)
	ErrNotInitialized        = fmt.Errorf("%w: volume is not initialized", ErrValidation)

	ErrBinaryNotFound       = runner.ErrBinaryNotFound
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrProcessFailure       = errors.New("external tool failed")
	ErrInitializationFailed = errors.New("initialization failed")
	ErrPathSafetyRejected   = errors.New("path rejected by safety check")
	ErrIOFailure            = errors.New("filesystem operation failed")
	ErrAborted              = errors.New("aborted")
	ErrVolumeNotFound       = storage.ErrVolumeNotFound
	ErrVolumeBusy           = errors.New("volume is busy")
)

// ToolError is a non-zero exit of the external tool. It carries stderr
// verbatim and unwraps to Kind.
type ToolError struct {
	Op       string
	Kind     error
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s exited with status %d", e.Kind, e.Op, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Kind
}

func toolError(op string, kind error, res *runner.Result) *ToolError {
	return &ToolError{Op: op, Kind: kind, ExitCode: res.ExitCode, Stderr: res.Stderr}
}

// authFailureSignature is printed by gocryptfs on a wrong password.
const authFailureSignature = "password incorrect"

// isAuthFailure reports whether res is the tool rejecting the password.
func isAuthFailure(res *runner.Result, authExitCode int) bool {
	if res == nil || res.Success() {
		return false
	}
	if authExitCode != 0 && res.ExitCode == authExitCode {
		return true
	}
	return strings.Contains(strings.ToLower(res.Stderr), authFailureSignature)
}
