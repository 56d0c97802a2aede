package registry

import (
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is written into every registry file. Readers that
// encounter a newer schema treat the file as empty rather than guessing.
const SchemaVersion = 1

// File names inside the sync directory.
const (
	// DefaultFileName is the registry file's name.
	DefaultFileName = "registry.json"
	// LockFileName is the directory-mutex sentinel's name.
	LockFileName = "registry.lock"
)

// ErrMutexTimeout is returned when the directory mutex cannot be acquired
// before the configured deadline.
var ErrMutexTimeout = errors.New("timed out acquiring directory mutex")

// PeerInfo describes one process participating in the shared directory.
// Field names are a compatibility surface; they must not change.
type PeerInfo struct {
	// ID is the peer's UUID, generated once per coordinator lifetime.
	ID string `json:"id"`

	// PID is the peer's OS process id, used for liveness probes.
	PID int `json:"pid"`

	// Tag is a host-assigned role label ("agent", "cli", ...).
	Tag string `json:"tag"`

	// RegisteredAt is when the peer joined, epoch milliseconds.
	RegisteredAt int64 `json:"registeredAt"`

	// LastHeartbeat is the peer's most recent proof of life, epoch
	// milliseconds.
	LastHeartbeat int64 `json:"lastHeartbeat"`

	// Version is the host application's version string.
	Version string `json:"version"`
}

// registryFile is the on-disk shape of the registry.
type registryFile struct {
	SchemaVersion int        `json:"schemaVersion"`
	Instances     []PeerInfo `json:"instances"`
}

// NewPeerID returns a fresh peer UUID.
func NewPeerID() string {
	return uuid.NewString()
}

// NewPeerInfo builds the calling process's registry entry, stamped now.
func NewPeerInfo(id, tag, version string) PeerInfo {
	now := time.Now().UnixMilli()
	return PeerInfo{
		ID:            id,
		PID:           os.Getpid(),
		Tag:           tag,
		RegisteredAt:  now,
		LastHeartbeat: now,
		Version:       version,
	}
}
