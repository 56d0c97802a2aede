// Package fsatomic implements crash-safe file replacement for the small
// JSON records the engine keeps in the shared directory. Writers never
// touch the target file directly: data goes to a temp file in the same
// directory which is then renamed over the target, so readers observe
// either the old content or the new content, never a partial write.
package fsatomic

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	// renameRetries bounds how many times a failed rename is retried.
	// Renames over a live target can transiently fail on Windows when
	// antivirus or indexing services hold the file open.
	renameRetries = 3

	renameRetryDelay = 25 * time.Millisecond
)

// TempPrefix returns the temp-file name prefix used for writes targeting
// path. Recovery scans use it to identify orphans left by crashed writers.
func TempPrefix(path string) string {
	return ".tmp-" + filepath.Base(path) + "-"
}

// WriteFile atomically replaces path with data. The temp file is created
// in the target's directory (renames across filesystems are not atomic),
// synced, closed, chmodded to perm, and renamed into place. On any
// failure the temp file is removed and the previous target content is
// left intact.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, TempPrefix(path)+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up the temp file on any failure
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	rename := func() error {
		return os.Rename(tmpPath, path)
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(renameRetryDelay), renameRetries)
	if err := backoff.Retry(rename, policy); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// CleanTemps removes orphaned temp files targeting path that are older
// than minAge. Young temp files are skipped because they may belong to a
// write in flight in another process. Returns the number removed.
func CleanTemps(path string, minAge time.Duration) (int, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read directory: %w", err)
	}

	prefix := TempPrefix(path)
	cutoff := time.Now().Add(-minAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}
