package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dirstate/dirstate/internal/procutil"
	"github.com/dirstate/dirstate/logging"
)

// Directory mutex defaults. The mutex only guards short read-modify-write
// cycles on the registry file, so holders measured in seconds are broken.
const (
	DefaultAcquireTimeout = 5 * time.Second
	DefaultRetryInterval  = 50 * time.Millisecond
	DefaultStaleAge       = 30 * time.Second
)

// sentinelInfo is written into the sentinel file so other processes can
// see who holds the mutex and decide whether the holder is gone.
type sentinelInfo struct {
	PID        int    `json:"pid"`
	Hostname   string `json:"hostname"`
	AcquiredAt int64  `json:"acquiredAt"` // epoch milliseconds
}

// DirMutex is a cross-process mutex backed by exclusive creation of a
// sentinel file. Acquisition polls until the sentinel can be created,
// taking over sentinels whose holder has died or whose age exceeds the
// staleness threshold, and gives up with ErrMutexTimeout at a deadline.
//
// It is not reentrant. Ownership is tracked by pid, so within one
// process only the goroutine that acquired may call Release; the
// Registry serializes its own callers for this reason.
type DirMutex struct {
	path           string
	acquireTimeout time.Duration
	retryInterval  time.Duration
	staleAge       time.Duration
	log            *logging.Logger
}

// MutexOption configures a DirMutex.
type MutexOption func(*DirMutex)

// WithAcquireTimeout bounds how long Acquire waits before failing.
func WithAcquireTimeout(d time.Duration) MutexOption {
	return func(m *DirMutex) {
		if d > 0 {
			m.acquireTimeout = d
		}
	}
}

// WithRetryInterval sets the sleep between acquisition attempts.
func WithRetryInterval(d time.Duration) MutexOption {
	return func(m *DirMutex) {
		if d > 0 {
			m.retryInterval = d
		}
	}
}

// WithStaleAge sets how old a sentinel may grow before takeover.
func WithStaleAge(d time.Duration) MutexOption {
	return func(m *DirMutex) {
		if d > 0 {
			m.staleAge = d
		}
	}
}

// WithMutexLogger attaches a logger. Defaults to a nop logger.
func WithMutexLogger(log *logging.Logger) MutexOption {
	return func(m *DirMutex) {
		if log != nil {
			m.log = log.WithComponent("dirmutex")
		}
	}
}

// NewDirMutex creates a mutex over the sentinel file at path.
func NewDirMutex(path string, opts ...MutexOption) *DirMutex {
	m := &DirMutex{
		path:           path,
		acquireTimeout: DefaultAcquireTimeout,
		retryInterval:  DefaultRetryInterval,
		staleAge:       DefaultStaleAge,
		log:            logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire blocks until the sentinel is created exclusively or the
// acquire timeout elapses, in which case it returns ErrMutexTimeout.
// Crashed holders are taken over: a sentinel whose pid is dead or whose
// age exceeds the staleness threshold is removed and the acquisition
// retried. Concurrent removals are benign; the next exclusive create
// settles the winner.
func (m *DirMutex) Acquire() error {
	deadline := time.Now().Add(m.acquireTimeout)

	for {
		created, err := m.tryCreate()
		if err != nil {
			return err
		}
		if created {
			return nil
		}

		if m.breakStale() {
			continue
		}

		if time.Now().After(deadline) {
			if info, err := m.readSentinel(); err == nil {
				return fmt.Errorf("%w: held by PID %d on %s", ErrMutexTimeout, info.PID, info.Hostname)
			}
			return ErrMutexTimeout
		}

		time.Sleep(m.retryInterval)
	}
}

// tryCreate attempts the exclusive create. Returns (false, nil) when the
// sentinel already exists.
func (m *DirMutex) tryCreate() (bool, error) {
	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create sentinel file: %w", err)
	}
	defer func() { _ = f.Close() }()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	info := sentinelInfo{
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now().UnixMilli(),
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		_ = os.Remove(m.path)
		return false, fmt.Errorf("failed to marshal sentinel: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = os.Remove(m.path)
		return false, fmt.Errorf("failed to write sentinel file: %w", err)
	}

	return true, nil
}

// breakStale removes the sentinel if its holder is provably gone or it
// has outlived the staleness threshold. Reports whether it removed one.
func (m *DirMutex) breakStale() bool {
	if info, err := m.readSentinel(); err == nil && !procutil.Alive(info.PID) {
		if err := os.Remove(m.path); err == nil || os.IsNotExist(err) {
			m.log.Warn("took over sentinel from dead process", "old_pid", info.PID)
			return true
		}
		return false
	}

	// Sentinel unreadable or holder alive: fall back to age. An unreadable
	// sentinel usually means its writer crashed mid-write.
	stat, err := os.Stat(m.path)
	if err != nil {
		// Gone already, the next create attempt settles it
		return os.IsNotExist(err)
	}
	if time.Since(stat.ModTime()) < m.staleAge {
		return false
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return false
	}
	m.log.Warn("took over stale sentinel", "age", time.Since(stat.ModTime()).String())
	return true
}

// Release removes the sentinel. Releasing a mutex this process no longer
// holds (taken over after a stall) is a no-op, as is releasing twice.
func (m *DirMutex) Release() error {
	info, err := m.readSentinel()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Unreadable sentinel with unknown owner: leave takeover to age
		return nil
	}
	if info.PID != os.Getpid() {
		return nil
	}

	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove sentinel file: %w", err)
	}
	return nil
}

// Path returns the sentinel file's location.
func (m *DirMutex) Path() string {
	return m.path
}

func (m *DirMutex) readSentinel() (*sentinelInfo, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	var info sentinelInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse sentinel file: %w", err)
	}
	return &info, nil
}
