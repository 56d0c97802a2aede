// Package logging provides structured logging for the sync engine.
//
// This package wraps Go's log/slog to produce JSON-formatted logs that
// can be filtered after the fact. A peer process participating in a
// shared directory leaves a self-contained trail of what it saw and
// wrote, which is usually the only way to reconstruct a multi-process
// interleaving.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (peer id, component)
//   - Log rotation with configurable size limits
//   - Optional gzip compression for rotated logs
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The [Logger]
// type uses slog internally which is designed for concurrent access. The
// [RotatingWriter] type uses a mutex to protect file operations during
// rotation. Child loggers created via With* methods share the underlying
// writer safely.
//
// # Basic Usage
//
// Create a logger for a directory:
//
//	logger, err := logging.NewLogger("/path/to/dir", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("state adopted", "remote_peer", peerID)
//	logger.Error("write failed", "error", err.Error())
//
// # Context Propagation
//
// Create child loggers with persistent attributes:
//
//	peerLogger := logger.WithPeer("9f4c...")
//	storeLogger := peerLogger.WithComponent("store")
//
//	// Entries from storeLogger include peer_id and component
//	storeLogger.Debug("record replaced", "version", 12)
//
// # Log Rotation
//
// For long-running hosts, use rotation to prevent unbounded growth:
//
//	config := logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	}
//	logger, err := logging.NewLoggerWithRotation("/path/to/dir", "INFO", config)
//
// Rotated files are named debug.log.1, debug.log.2, and so on, where .1
// is the most recent backup (.1.gz when compression is enabled).
//
// # Testing
//
// Use [NopLogger] to discard all output:
//
//	func TestSomething(t *testing.T) {
//	    logger := logging.NopLogger()
//	    // ...
//	}
package logging
