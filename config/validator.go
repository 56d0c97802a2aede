package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config field path (e.g., "sync.poll_interval_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all
// validation errors found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSync()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateSync validates the SyncConfig.
func (c *Config) validateSync() []ValidationError {
	var errors []ValidationError

	const maxPollSeconds = int(MaxPollInterval / time.Second)
	if c.Sync.PollIntervalSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.poll_interval_seconds",
			Value:   c.Sync.PollIntervalSeconds,
			Message: "must be non-negative",
		})
	}
	if c.Sync.PollIntervalSeconds > maxPollSeconds {
		errors = append(errors, ValidationError{
			Field:   "sync.poll_interval_seconds",
			Value:   c.Sync.PollIntervalSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d seconds", maxPollSeconds),
		})
	}

	if c.Sync.HeartbeatIntervalSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.heartbeat_interval_seconds",
			Value:   c.Sync.HeartbeatIntervalSeconds,
			Message: "must be non-negative",
		})
	}

	if c.Sync.ZombieTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.zombie_timeout_seconds",
			Value:   c.Sync.ZombieTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	// A zombie timeout shorter than the heartbeat interval reaps live peers
	if c.Sync.ZombieTimeoutSeconds > 0 && c.Sync.HeartbeatIntervalSeconds > 0 &&
		c.Sync.ZombieTimeoutSeconds < c.Sync.HeartbeatIntervalSeconds {
		errors = append(errors, ValidationError{
			Field:   "sync.zombie_timeout_seconds",
			Value:   c.Sync.ZombieTimeoutSeconds,
			Message: fmt.Sprintf("must not be shorter than heartbeat_interval_seconds (%d)", c.Sync.HeartbeatIntervalSeconds),
		})
	}

	const maxDebounceMs = 10000
	if c.Sync.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.debounce_ms",
			Value:   c.Sync.DebounceMs,
			Message: "must be non-negative",
		})
	}
	if c.Sync.DebounceMs > maxDebounceMs {
		errors = append(errors, ValidationError{
			Field:   "sync.debounce_ms",
			Value:   c.Sync.DebounceMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxDebounceMs),
		})
	}

	if c.Sync.DriftToleranceSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.drift_tolerance_seconds",
			Value:   c.Sync.DriftToleranceSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig.
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" {
		valid := false
		for _, level := range ValidLogLevels() {
			if strings.EqualFold(c.Logging.Level, level) {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "logging.level",
				Value:   c.Logging.Level,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
			})
		}
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
