// Package statestore persists the shared-state record other peers in the
// directory read. Writes are atomic (temp file + rename), so a reader
// never sees a half-written record, and any record that fails to parse
// is reported as missing rather than surfaced as corruption. A crashed
// writer can at worst leave the previous record in place plus a stray
// temp file for Recover to sweep.
package statestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dirstate/dirstate/internal/fsatomic"
	"github.com/dirstate/dirstate/logging"
)

// recoverTempAge is how old an orphaned temp file must be before Recover
// deletes it. Younger temps may belong to a write in flight elsewhere.
const recoverTempAge = time.Minute

// Store reads and writes the shared-state record at a fixed path.
// It is safe for concurrent use by multiple goroutines; cross-process
// safety comes from the atomic write protocol.
type Store struct {
	path     string
	log      *logging.Logger
	validate func(*SharedState) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger. Defaults to a nop logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log.WithComponent("store")
		}
	}
}

// WithValidator installs a host check run on every record read. A record
// the validator rejects reads as not found, exactly like a corrupt one.
// Hosts use this to require a discriminant field in the payload.
func WithValidator(fn func(*SharedState) error) Option {
	return func(s *Store) {
		s.validate = fn
	}
}

// New creates a Store for the record at path. The file need not exist.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path: path,
		log:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the record's location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a non-empty record file is present. It does not
// parse the file; a corrupt record still "exists" until Recover removes
// it.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Size() > 0
}

// Read returns the current record. It returns ErrNotFound when the file
// is missing, empty, unparseable, missing its stamp fields, or rejected
// by the validator. Only genuine I/O failures (permissions, bad disk)
// surface as other errors.
func (s *Store) Read() (*SharedState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNotFound
	}

	var st SharedState
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn("state file is not valid JSON, treating as missing", "error", err.Error())
		return nil, ErrNotFound
	}

	if !st.valid() {
		s.log.Warn("state file is missing required fields, treating as missing")
		return nil, ErrNotFound
	}

	if s.validate != nil {
		if err := s.validate(&st); err != nil {
			s.log.Warn("state file rejected by validator, treating as missing", "error", err.Error())
			return nil, ErrNotFound
		}
	}

	return &st, nil
}

// Write atomically replaces the record. A failure leaves the previous
// record intact.
func (s *Store) Write(st *SharedState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := fsatomic.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	s.log.Debug("state written",
		"version", st.Version,
		"last_modified", st.LastModified,
		"last_modified_by", st.LastModifiedBy)
	return nil
}

// Recover cleans residue left by crashed writers: a record file Read
// would refuse (unparseable, missing required fields, or rejected by the
// validator) is deleted so the next write starts clean, and orphaned
// temp files older than a grace age are removed. Valid records are left
// untouched. Reports whether anything was actually cleaned.
func (s *Store) Recover() (bool, error) {
	cleaned := false

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		// Nothing to heal
	case err != nil:
		return false, fmt.Errorf("failed to read state file: %w", err)
	default:
		if !s.usable(data) {
			if removeErr := os.Remove(s.path); removeErr != nil && !os.IsNotExist(removeErr) {
				return false, fmt.Errorf("failed to remove corrupt state file: %w", removeErr)
			}
			s.log.Info("removed corrupt state file", "path", s.path)
			cleaned = true
		}
	}

	removed, err := fsatomic.CleanTemps(s.path, recoverTempAge)
	if err != nil {
		return cleaned, fmt.Errorf("failed to clean temp files: %w", err)
	}
	if removed > 0 {
		s.log.Info("removed orphaned temp files", "count", removed)
		cleaned = true
	}
	return cleaned, nil
}

// usable reports whether raw record bytes would pass Read: well-formed
// JSON, required fields present, validator satisfied.
func (s *Store) usable(data []byte) bool {
	var st SharedState
	if err := json.Unmarshal(data, &st); err != nil {
		return false
	}
	if !st.valid() {
		return false
	}
	return s.validate == nil || s.validate(&st) == nil
}
