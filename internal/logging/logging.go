// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/illarion/mithril/internal/config"
)

// New returns a logger for cfg and a closer for any file it opened.
func New(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	out, closer, err := openOutput(cfg.Output)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02T15:04:05",
			NoColor:    closer != nil,
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if closer == nil {
		closer = nopCloser{}
	}
	return logger, closer, nil
}

// Setup builds the logger and installs it as the global zerolog logger.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	logger, closer, err := New(cfg)
	if err != nil {
		return logger, closer, err
	}
	log.Logger = logger
	return logger, closer, nil
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
