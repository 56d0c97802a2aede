// Package config defines the host-facing configuration surface. The
// engine itself is configured through options on the Coordinator; this
// package exists for hosts that load settings from a file or the
// environment and want defaults, validation, and clamping in one place.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dirstate/dirstate/logging"
)

// EnvPrefix is the environment variable prefix recognized by Load
// (e.g. DIRSTATE_SYNC_ENABLED overrides sync.enabled).
const EnvPrefix = "DIRSTATE"

// Bounds applied to caller-supplied intervals. Values from a config file
// are never trusted blindly; accessors clamp into these ranges.
const (
	MinPollInterval = time.Second
	MaxPollInterval = 5 * time.Minute
)

// Config represents the complete engine configuration.
type Config struct {
	Sync    SyncConfig    `mapstructure:"sync"`
	Logging LoggingConfig `mapstructure:"logging"`
	Journal JournalConfig `mapstructure:"journal"`
}

// SyncConfig controls the sync engine behavior.
type SyncConfig struct {
	// Enabled controls whether the engine syncs through the shared directory.
	// When false the host runs standalone: local operations succeed, nothing
	// touches the sync directory. (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Tag is a host-assigned role label recorded in the instance registry
	// (e.g., "primary", "worker"). Informational only.
	Tag string `mapstructure:"tag"`
	// PollIntervalSeconds is how often the reconciliation fallback runs when
	// no filesystem events arrive (default: 10, clamped to 1..300)
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// HeartbeatIntervalSeconds is how often this peer refreshes its registry
	// heartbeat (default: 10)
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds"`
	// ZombieTimeoutSeconds is how stale a peer's heartbeat may be before
	// cleanup removes its registry entry (default: 30)
	ZombieTimeoutSeconds int `mapstructure:"zombie_timeout_seconds"`
	// DebounceMs is the quiet window that collapses a burst of file events
	// into one reconciliation (default: 100)
	DebounceMs int `mapstructure:"debounce_ms"`
	// DriftToleranceSeconds is how far in the future a peer's timestamp may
	// be before it is discounted as clock drift (default: 30)
	DriftToleranceSeconds int `mapstructure:"drift_tolerance_seconds"`
}

// LoggingConfig controls debug logging behavior.
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated backups (default: false)
	Compress bool `mapstructure:"compress"`
}

// JournalConfig controls the local sync journal.
type JournalConfig struct {
	// Enabled turns on the append-only bbolt journal in the sync directory.
	// The journal is advisory; sync works identically without it. (default: false)
	Enabled bool `mapstructure:"enabled"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			Enabled:                  true,
			Tag:                      "",
			PollIntervalSeconds:      10,
			HeartbeatIntervalSeconds: 10,
			ZombieTimeoutSeconds:     30,
			DebounceMs:               100,
			DriftToleranceSeconds:    30,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Journal: JournalConfig{
			Enabled: false,
		},
	}
}

// PollInterval returns the reconciliation poll interval, clamped into
// the supported range.
func (c *SyncConfig) PollInterval() time.Duration {
	d := time.Duration(c.PollIntervalSeconds) * time.Second
	if d < MinPollInterval {
		return MinPollInterval
	}
	if d > MaxPollInterval {
		return MaxPollInterval
	}
	return d
}

// HeartbeatInterval returns the registry heartbeat interval.
func (c *SyncConfig) HeartbeatInterval() time.Duration {
	if c.HeartbeatIntervalSeconds <= 0 {
		return time.Duration(Default().Sync.HeartbeatIntervalSeconds) * time.Second
	}
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// ZombieTimeout returns the heartbeat staleness threshold.
func (c *SyncConfig) ZombieTimeout() time.Duration {
	if c.ZombieTimeoutSeconds <= 0 {
		return time.Duration(Default().Sync.ZombieTimeoutSeconds) * time.Second
	}
	return time.Duration(c.ZombieTimeoutSeconds) * time.Second
}

// Debounce returns the watcher debounce window.
func (c *SyncConfig) Debounce() time.Duration {
	if c.DebounceMs <= 0 {
		return time.Duration(Default().Sync.DebounceMs) * time.Millisecond
	}
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// DriftTolerance returns the future-timestamp rejection threshold.
func (c *SyncConfig) DriftTolerance() time.Duration {
	if c.DriftToleranceSeconds <= 0 {
		return time.Duration(Default().Sync.DriftToleranceSeconds) * time.Second
	}
	return time.Duration(c.DriftToleranceSeconds) * time.Second
}

// Rotation returns the rotation settings in the logging package's terms.
func (c *LoggingConfig) Rotation() logging.RotationConfig {
	rc := logging.DefaultRotationConfig()
	if c.MaxSizeMB > 0 {
		rc.MaxSizeMB = c.MaxSizeMB
	}
	if c.MaxBackups > 0 {
		rc.MaxBackups = c.MaxBackups
	}
	rc.Compress = c.Compress
	return rc
}

// SetDefaults registers default values with the given viper instance.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Sync defaults
	v.SetDefault("sync.enabled", defaults.Sync.Enabled)
	v.SetDefault("sync.tag", defaults.Sync.Tag)
	v.SetDefault("sync.poll_interval_seconds", defaults.Sync.PollIntervalSeconds)
	v.SetDefault("sync.heartbeat_interval_seconds", defaults.Sync.HeartbeatIntervalSeconds)
	v.SetDefault("sync.zombie_timeout_seconds", defaults.Sync.ZombieTimeoutSeconds)
	v.SetDefault("sync.debounce_ms", defaults.Sync.DebounceMs)
	v.SetDefault("sync.drift_tolerance_seconds", defaults.Sync.DriftToleranceSeconds)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)

	// Journal defaults
	v.SetDefault("journal.enabled", defaults.Journal.Enabled)
}

// Load builds a Config from defaults plus DIRSTATE_* environment
// variables, then validates it.
func Load() (*Config, error) {
	return load(viper.New(), "")
}

// LoadFrom additionally reads the YAML file at path. A missing file is
// not an error; defaults and the environment still apply.
func LoadFrom(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}
