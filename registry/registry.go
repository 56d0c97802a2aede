package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dirstate/dirstate/internal/fsatomic"
	"github.com/dirstate/dirstate/internal/procutil"
	"github.com/dirstate/dirstate/logging"
)

// DefaultZombieTimeout is how stale a heartbeat may grow before the
// entry is reaped even when its process still exists.
const DefaultZombieTimeout = 30 * time.Second

// Registry tracks the processes sharing a directory. The instance list
// lives in a single JSON file; every mutation is a whole-file
// read-modify-write under the directory mutex, so concurrent processes
// never interleave partial updates. A missing or corrupt file reads as
// an empty list and is rewritten whole by the next mutation.
type Registry struct {
	mu    sync.Mutex // serializes this process's mutations
	path  string
	mutex *DirMutex
	log   *logging.Logger

	zombieTimeout time.Duration
	mutexOpts     []MutexOption
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger attaches a logger. Defaults to a nop logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log.WithComponent("registry")
		}
	}
}

// WithZombieTimeout overrides how stale a heartbeat may grow before
// Cleanup reaps the entry.
func WithZombieTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.zombieTimeout = d
		}
	}
}

// WithMutexOptions forwards options to the directory mutex.
func WithMutexOptions(opts ...MutexOption) Option {
	return func(r *Registry) {
		r.mutexOpts = append(r.mutexOpts, opts...)
	}
}

// New creates a Registry stored in dir. The directory is created on the
// first mutation if it does not exist.
func New(dir string, opts ...Option) *Registry {
	r := &Registry{
		path:          filepath.Join(dir, DefaultFileName),
		log:           logging.NopLogger(),
		zombieTimeout: DefaultZombieTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.mutex = NewDirMutex(filepath.Join(dir, LockFileName), r.mutexOpts...)
	return r
}

// Path returns the registry file's location.
func (r *Registry) Path() string {
	return r.path
}

// Register upserts the peer's entry: any stale entry with the same id is
// replaced. Typically called once at startup with a fresh PeerInfo.
func (r *Registry) Register(p PeerInfo) error {
	return r.mutate(func(f *registryFile) bool {
		f.Instances = append(removePeer(f.Instances, p.ID), p)
		return true
	})
}

// UpdateHeartbeat stamps the peer's entry with a fresh proof of life. If
// the entry vanished (reaped by a peer, or the file was reset), it is
// re-added so a transiently unlucky process heals itself.
func (r *Registry) UpdateHeartbeat(p PeerInfo) error {
	return r.mutate(func(f *registryFile) bool {
		now := time.Now().UnixMilli()
		for i := range f.Instances {
			if f.Instances[i].ID == p.ID {
				f.Instances[i].LastHeartbeat = now
				return true
			}
		}
		p.LastHeartbeat = now
		f.Instances = append(f.Instances, p)
		return true
	})
}

// Unregister removes the peer's entry. A missing file or entry is
// success; shutdown must not fail over bookkeeping.
func (r *Registry) Unregister(id string) error {
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil
	}
	return r.mutate(func(f *registryFile) bool {
		trimmed := removePeer(f.Instances, id)
		if len(trimmed) == len(f.Instances) {
			return false
		}
		f.Instances = trimmed
		return true
	})
}

// Cleanup reaps zombie entries: peers whose process no longer exists or
// whose heartbeat is older than the zombie timeout. The entry identified
// by selfID is never reaped (it heals via UpdateHeartbeat). Returns the
// number of entries removed.
func (r *Registry) Cleanup(selfID string) (int, error) {
	reaped := 0
	err := r.mutate(func(f *registryFile) bool {
		cutoff := time.Now().UnixMilli() - r.zombieTimeout.Milliseconds()
		kept := f.Instances[:0]
		for _, p := range f.Instances {
			if p.ID == selfID || (procutil.Alive(p.PID) && p.LastHeartbeat >= cutoff) {
				kept = append(kept, p)
				continue
			}
			r.log.Info("reaping zombie peer",
				"peer_id", p.ID,
				"pid", p.PID,
				"last_heartbeat", p.LastHeartbeat)
			reaped++
		}
		f.Instances = kept
		return reaped > 0
	})
	if err != nil {
		return 0, err
	}
	return reaped, nil
}

// List returns the current entries without taking the directory mutex;
// reads are safe against the atomic whole-file writes.
func (r *Registry) List() ([]PeerInfo, error) {
	f, err := r.read()
	if err != nil {
		return nil, err
	}
	return f.Instances, nil
}

// HasOtherPeers reports whether any entry besides selfID is registered.
// Zombies count until Cleanup reaps them; callers wanting a live answer
// should run Cleanup first.
func (r *Registry) HasOtherPeers(selfID string) (bool, error) {
	peers, err := r.List()
	if err != nil {
		return false, err
	}
	for _, p := range peers {
		if p.ID != selfID {
			return true, nil
		}
	}
	return false, nil
}

// mutate runs one read-modify-write cycle under the directory mutex.
// The callback returns false to skip the write-back.
func (r *Registry) mutate(fn func(*registryFile) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	if err := r.mutex.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := r.mutex.Release(); err != nil {
			r.log.Warn("failed to release directory mutex", "error", err.Error())
		}
	}()

	f, err := r.read()
	if err != nil {
		return err
	}
	if !fn(f) {
		return nil
	}
	return r.write(f)
}

// read loads the registry file. Missing, corrupt, or unrecognized
// content reads as an empty list.
func (r *Registry) read() (*registryFile, error) {
	empty := &registryFile{SchemaVersion: SchemaVersion}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var f registryFile
	if err := json.Unmarshal(data, &f); err != nil {
		r.log.Warn("registry file corrupt, treating as empty", "error", err.Error())
		return empty, nil
	}
	if f.SchemaVersion > SchemaVersion {
		r.log.Warn("registry schema is newer than this engine, treating as empty",
			"file_schema", f.SchemaVersion)
		return empty, nil
	}
	f.SchemaVersion = SchemaVersion
	return &f, nil
}

func (r *Registry) write(f *registryFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := fsatomic.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func removePeer(instances []PeerInfo, id string) []PeerInfo {
	kept := make([]PeerInfo, 0, len(instances))
	for _, p := range instances {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	return kept
}
