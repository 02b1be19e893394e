package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the complete mithril configuration.
//
// Sources, highest precedence first: environment variables (MITHRIL_*), the
// config file, defaults.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tool       ToolConfig       `mapstructure:"tool"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Deletion   DeletionConfig   `mapstructure:"deletion"`
	Session    SessionConfig    `mapstructure:"session"`
	Console    ConsoleConfig    `mapstructure:"console"`
	Automount  AutomountConfig  `mapstructure:"automount"`
	MountTable MountTableConfig `mapstructure:"mount_table"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	// Format is console or json.
	Format string `mapstructure:"format" validate:"required,oneof=console json"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// ToolConfig describes the external encryption tool.
type ToolConfig struct {
	Binary string `mapstructure:"binary" validate:"required"`
	FSType string `mapstructure:"fs_type" validate:"required"`
	// ConfigFile is the marker written by -init inside the cipher directory.
	ConfigFile string `mapstructure:"config_file" validate:"required,excludesall=/"`
	// ReverseConfigFile is the marker for reverse-mode volumes.
	ReverseConfigFile string `mapstructure:"reverse_config_file" validate:"required,excludesall=/"`
	// Unmount is the argv prefix; the mount point is appended.
	Unmount []string `mapstructure:"unmount" validate:"min=1,dive,required"`
	// AuthExitCode is the exit status the tool uses for a wrong password.
	AuthExitCode int `mapstructure:"auth_exit_code" validate:"gte=0,lte=255"`
}

type StorageConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type AuditConfig struct {
	// Path of the deletion log. Empty disables it.
	Path string `mapstructure:"path"`
}

type DeletionConfig struct {
	// AllowedRoots may be deleted under without typing the resolved path.
	AllowedRoots []string `mapstructure:"allowed_roots"`
}

type SessionConfig struct {
	Remember string `mapstructure:"remember" validate:"required,oneof=ask always never"`
}

type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Transcript, when set, receives echoed commands instead of the terminal.
	Transcript string `mapstructure:"transcript"`
}

type AutomountConfig struct {
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1,lte=64"`
	Debounce    time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

type MountTableConfig struct {
	// File reads mounts from a listing instead of the kernel.
	File string `mapstructure:"file"`
}

// Load reads configuration from configPath (or the default location), the
// environment and defaults, then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	ExpandPaths(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// MITHRIL_LOGGING_LEVEL=debug overrides logging.level
	v.SetEnvPrefix("MITHRIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees env values for keys viper already knows about.
	registerDefaults(v, Default())

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func registerDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("tool.binary", d.Tool.Binary)
	v.SetDefault("tool.fs_type", d.Tool.FSType)
	v.SetDefault("tool.config_file", d.Tool.ConfigFile)
	v.SetDefault("tool.reverse_config_file", d.Tool.ReverseConfigFile)
	v.SetDefault("tool.unmount", d.Tool.Unmount)
	v.SetDefault("tool.auth_exit_code", d.Tool.AuthExitCode)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("audit.path", d.Audit.Path)
	v.SetDefault("deletion.allowed_roots", d.Deletion.AllowedRoots)
	v.SetDefault("session.remember", d.Session.Remember)
	v.SetDefault("console.enabled", d.Console.Enabled)
	v.SetDefault("console.transcript", d.Console.Transcript)
	v.SetDefault("automount.concurrency", d.Automount.Concurrency)
	v.SetDefault("automount.debounce", d.Automount.Debounce)
	v.SetDefault("mount_table.file", d.MountTable.File)
}

// ConfigDir returns $XDG_CONFIG_HOME/mithril, falling back to ~/.config/mithril.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/mithril, falling back to ~/.local/share/mithril.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// StateDir returns $XDG_STATE_HOME/mithril, falling back to ~/.local/state/mithril.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "mithril")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, fallback, "mithril")
}

// DefaultConfigPath is the config file read when none is given.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ExpandPaths replaces a leading "~" in path settings.
func ExpandPaths(cfg *Config) {
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Audit.Path = expandHome(cfg.Audit.Path)
	cfg.Console.Transcript = expandHome(cfg.Console.Transcript)
	cfg.MountTable.File = expandHome(cfg.MountTable.File)
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		cfg.Logging.Output = expandHome(cfg.Logging.Output)
	}
	for i, root := range cfg.Deletion.AllowedRoots {
		cfg.Deletion.AllowedRoots[i] = expandHome(root)
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
