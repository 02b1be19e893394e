// Package desktop opens paths in the user's file browser.
package desktop

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// Opener opens a directory for the user.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// XDGOpener launches xdg-open (or another command) without waiting for it.
type XDGOpener struct {
	Command string
	Logger  zerolog.Logger
}

// NewXDGOpener returns an opener that uses xdg-open.
func NewXDGOpener(logger zerolog.Logger) *XDGOpener {
	return &XDGOpener{Command: "xdg-open", Logger: logger}
}

// Open starts the browser and returns once it is running. Exit status is only
// logged.
func (o *XDGOpener) Open(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := o.Command
	if name == "" {
		name = "xdg-open"
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}

	cmd := exec.Command(bin, path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			o.Logger.Warn().Err(err).Str("path", path).Msg("file browser exited with error")
		}
	}()
	return nil
}
