package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in directory", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		logPath := filepath.Join(dir, LogFileName)
		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", logPath)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.out != nil {
			t.Error("expected out to be nil when dir is empty")
		}
	})

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested")

		logger, err := NewLogger(dir, LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(dir); err != nil {
			t.Errorf("expected directory to be created: %v", err)
		}
	})

	t.Run("defaults to INFO level for invalid level string", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, "invalid")
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.logger == nil {
			t.Error("expected logger to be created")
		}
	})
}

func TestLogLevels(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")

	logger.Close()

	content, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d", len(lines))
	}

	expectedLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	expectedMsgs := []string{"debug message", "info message", "warn message", "error message"}

	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
			continue
		}

		if entry["level"] != expectedLevels[i] {
			t.Errorf("line %d: expected level %s, got %v", i, expectedLevels[i], entry["level"])
		}
		if entry["msg"] != expectedMsgs[i] {
			t.Errorf("line %d: expected msg %s, got %v", i, expectedMsgs[i], entry["msg"])
		}
		if entry["key"] != "value" {
			t.Errorf("line %d: expected key=value, got key=%v", i, entry["key"])
		}
	}
}

func TestLogLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	logger.Close()

	content, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines at WARN level, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "warn message") {
		t.Errorf("expected first line to be the warn entry, got %s", lines[0])
	}
}

func TestChildLoggers(t *testing.T) {
	t.Run("WithPeer adds peer_id to entries", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}

		logger.WithPeer("peer-123").Info("hello")
		logger.Close()

		content, _ := os.ReadFile(filepath.Join(dir, LogFileName))
		var entry map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if entry["peer_id"] != "peer-123" {
			t.Errorf("peer_id = %v, want peer-123", entry["peer_id"])
		}
	})

	t.Run("attributes accumulate across children", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}

		logger.WithPeer("peer-123").WithComponent("store").Info("write done")
		logger.Close()

		content, _ := os.ReadFile(filepath.Join(dir, LogFileName))
		var entry map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if entry["peer_id"] != "peer-123" {
			t.Errorf("peer_id = %v, want peer-123", entry["peer_id"])
		}
		if entry["component"] != "store" {
			t.Errorf("component = %v, want store", entry["component"])
		}
	})

	t.Run("parent logger is unchanged by child", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}

		_ = logger.WithComponent("watcher")
		logger.Info("plain entry")
		logger.Close()

		content, _ := os.ReadFile(filepath.Join(dir, LogFileName))
		var entry map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if _, ok := entry["component"]; ok {
			t.Error("parent logger should not carry the child's attribute")
		}
	})

	t.Run("With accepts arbitrary pairs", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}

		logger.With("dir", "/shared", "attempt", 2).Info("retrying")
		logger.Close()

		content, _ := os.ReadFile(filepath.Join(dir, LogFileName))
		var entry map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if entry["dir"] != "/shared" {
			t.Errorf("dir = %v, want /shared", entry["dir"])
		}
	})
}

func TestLoggerClose(t *testing.T) {
	t.Run("close is safe to call twice", func(t *testing.T) {
		logger, err := NewLogger(t.TempDir(), LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}

		if err := logger.Close(); err != nil {
			t.Errorf("first Close failed: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("second Close failed: %v", err)
		}
	})

	t.Run("stderr logger close is a no-op", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()

	// Must not panic or write anywhere
	logger.Debug("discarded")
	logger.WithPeer("p").WithComponent("c").Info("discarded")

	if err := logger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"DEBUG", LevelDebug},
		{"debug", LevelDebug},
		{"Info", LevelInfo},
		{"WARN", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidLevels(t *testing.T) {
	levels := ValidLevels()
	if len(levels) != 4 {
		t.Fatalf("expected 4 levels, got %d", len(levels))
	}
}
