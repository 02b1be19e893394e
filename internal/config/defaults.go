package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
			Output: "stderr",
		},
		Tool: ToolConfig{
			Binary:            "gocryptfs",
			FSType:            "fuse.gocryptfs",
			ConfigFile:        "gocryptfs.conf",
			ReverseConfigFile: ".gocryptfs.reverse.conf",
			Unmount:           []string{"fusermount", "-u"},
			AuthExitCode:      12,
		},
		Storage: StorageConfig{
			Path: filepath.Join(DataDir(), "profiles.db"),
		},
		Audit: AuditConfig{
			Path: filepath.Join(StateDir(), "deletions.log"),
		},
		Deletion: DeletionConfig{
			AllowedRoots: []string{"~"},
		},
		Session: SessionConfig{
			Remember: "ask",
		},
		Automount: AutomountConfig{
			Concurrency: 4,
			Debounce:    2 * time.Second,
		},
	}
}

// ApplyDefaults fills zero values and normalizes case.
func ApplyDefaults(cfg *Config) {
	d := Default()

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = d.Logging.Output
	}

	if cfg.Tool.Binary == "" {
		cfg.Tool.Binary = d.Tool.Binary
	}
	if cfg.Tool.FSType == "" {
		cfg.Tool.FSType = d.Tool.FSType
	}
	if cfg.Tool.ConfigFile == "" {
		cfg.Tool.ConfigFile = d.Tool.ConfigFile
	}
	if cfg.Tool.ReverseConfigFile == "" {
		cfg.Tool.ReverseConfigFile = d.Tool.ReverseConfigFile
	}
	if len(cfg.Tool.Unmount) == 0 {
		cfg.Tool.Unmount = d.Tool.Unmount
	}
	if cfg.Tool.AuthExitCode == 0 {
		cfg.Tool.AuthExitCode = d.Tool.AuthExitCode
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = d.Storage.Path
	}
	if cfg.Deletion.AllowedRoots == nil {
		cfg.Deletion.AllowedRoots = d.Deletion.AllowedRoots
	}

	cfg.Session.Remember = strings.ToLower(cfg.Session.Remember)
	if cfg.Session.Remember == "" {
		cfg.Session.Remember = d.Session.Remember
	}

	if cfg.Automount.Concurrency == 0 {
		cfg.Automount.Concurrency = d.Automount.Concurrency
	}
}
