package config

import (
	"strings"
	"testing"
)

func TestValidate_DefaultsPass(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("expected no errors for defaults, got: %v", ValidationErrors(errs))
	}
}

func TestValidate_Sync(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "negative poll interval",
			mutate:    func(c *Config) { c.Sync.PollIntervalSeconds = -1 },
			wantField: "sync.poll_interval_seconds",
		},
		{
			name:      "poll interval above ceiling",
			mutate:    func(c *Config) { c.Sync.PollIntervalSeconds = 301 },
			wantField: "sync.poll_interval_seconds",
		},
		{
			name:      "negative heartbeat interval",
			mutate:    func(c *Config) { c.Sync.HeartbeatIntervalSeconds = -1 },
			wantField: "sync.heartbeat_interval_seconds",
		},
		{
			name:      "negative zombie timeout",
			mutate:    func(c *Config) { c.Sync.ZombieTimeoutSeconds = -1 },
			wantField: "sync.zombie_timeout_seconds",
		},
		{
			name: "zombie timeout shorter than heartbeat",
			mutate: func(c *Config) {
				c.Sync.HeartbeatIntervalSeconds = 30
				c.Sync.ZombieTimeoutSeconds = 10
			},
			wantField: "sync.zombie_timeout_seconds",
		},
		{
			name:      "negative debounce",
			mutate:    func(c *Config) { c.Sync.DebounceMs = -1 },
			wantField: "sync.debounce_ms",
		},
		{
			name:      "debounce above ceiling",
			mutate:    func(c *Config) { c.Sync.DebounceMs = 20000 },
			wantField: "sync.debounce_ms",
		},
		{
			name:      "negative drift tolerance",
			mutate:    func(c *Config) { c.Sync.DriftToleranceSeconds = -1 },
			wantField: "sync.drift_tolerance_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("expected a validation error, got none")
			}

			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error on %s, got: %v", tt.wantField, ValidationErrors(errs))
			}
		})
	}
}

func TestValidate_LoggingLevel(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"INFO", true}, // case insensitive
		{"", true},     // empty means default
		{"verbose", false},
		{"trace", false},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			cfg := Default()
			cfg.Logging.Level = tt.level

			errs := cfg.Validate()
			if tt.valid && len(errs) > 0 {
				t.Errorf("level %q should be valid, got: %v", tt.level, ValidationErrors(errs))
			}
			if !tt.valid && len(errs) == 0 {
				t.Errorf("level %q should be rejected", tt.level)
			}
		})
	}
}

func TestValidate_LoggingSizes(t *testing.T) {
	cfg := Default()
	cfg.Logging.MaxSizeMB = -1
	cfg.Logging.MaxBackups = -2

	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(errs), ValidationErrors(errs))
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{
		Field:   "sync.debounce_ms",
		Value:   -1,
		Message: "must be non-negative",
	}

	got := e.Error()
	if !strings.Contains(got, "sync.debounce_ms") || !strings.Contains(got, "-1") {
		t.Errorf("Error() = %q, missing field or value", got)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	if got := (ValidationErrors{}).Error(); got != "" {
		t.Errorf("empty ValidationErrors.Error() = %q, want empty", got)
	}

	single := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
	if got := single.Error(); strings.Contains(got, "validation errors") {
		t.Errorf("single error should not use the multi-error header: %q", got)
	}

	multi := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	got := multi.Error()
	if !strings.Contains(got, "2 validation errors") {
		t.Errorf("multi error header missing: %q", got)
	}
	if !strings.Contains(got, "a:") || !strings.Contains(got, "b:") {
		t.Errorf("multi error should list each failure: %q", got)
	}
}

func TestValidLogLevels(t *testing.T) {
	levels := ValidLogLevels()

	expected := []string{"debug", "info", "warn", "error"}
	if len(levels) != len(expected) {
		t.Fatalf("ValidLogLevels() length = %d, want %d", len(levels), len(expected))
	}
	for i, level := range expected {
		if levels[i] != level {
			t.Errorf("ValidLogLevels()[%d] = %q, want %q", i, levels[i], level)
		}
	}
}
