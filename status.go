package dirstate

import "time"

// State describes where the Coordinator is in its lifecycle.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Status is a point-in-time snapshot of the engine, safe to hand to a UI.
type Status struct {
	// State is the lifecycle state.
	State State
	// PeerID is this process's identity in the shared directory.
	PeerID string
	// Enabled reports whether syncing was enabled at construction.
	Enabled bool
	// Running is a convenience for State == StateRunning.
	Running bool
	// LastSyncAt is when the engine last completed a successful write or
	// reconciliation. Zero until the first one.
	LastSyncAt time.Time
	// LastError holds the most recent background failure, empty after the
	// next successful cycle. Background failures never stop the engine.
	LastError string
	// ActivePeers is the registry entry count from the last registry read.
	ActivePeers int
	// Version is this peer's local write counter. It is advisory and
	// never compared across peers.
	Version uint64
}
