// Package event defines the engine's notification types and the bus that
// delivers them. Hosts subscribe to learn about adopted remote state,
// resolved conflicts, peer churn, and lifecycle transitions without
// holding references into the engine's internals.
//
// Event payloads carry primitives and raw JSON rather than engine types
// so that subscribing code does not pick up dependencies on the packages
// that produce the events.
package event

import (
	"encoding/json"
	"time"
)

// Event type identifiers, named "category.action".
const (
	// TypeRemoteChange indicates a remote peer's state was adopted locally.
	TypeRemoteChange = "sync.remote_change"
	// TypeConflictResolved indicates two peers disagreed and a winner was chosen.
	TypeConflictResolved = "sync.conflict_resolved"
	// TypeStateChanged indicates the coordinator moved between lifecycle states.
	TypeStateChanged = "sync.state_changed"
	// TypeSyncError indicates a background operation failed and will be retried.
	TypeSyncError = "sync.error"
	// TypePeerRegistered indicates this process joined the shared directory.
	TypePeerRegistered = "peer.registered"
	// TypePeerUnregistered indicates this process left the shared directory.
	TypePeerUnregistered = "peer.unregistered"
	// TypeZombiesReaped indicates dead peer entries were pruned from the registry.
	TypeZombiesReaped = "peer.zombies_reaped"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns the "category.action" identifier for this event.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Sync Events
// -----------------------------------------------------------------------------

// RemoteChangeEvent is emitted when a remote peer's snapshot is adopted
// as the local state. The payload is the adopted blob, untouched.
type RemoteChangeEvent struct {
	baseEvent
	Payload    json.RawMessage // Adopted payload blob
	PeerID     string          // Peer that wrote the adopted state
	ModifiedAt int64           // Writer's wall-clock stamp, epoch milliseconds
	Version    uint64          // Writer-local version counter, advisory
}

// NewRemoteChangeEvent creates a RemoteChangeEvent.
func NewRemoteChangeEvent(payload json.RawMessage, peerID string, modifiedAt int64, version uint64) RemoteChangeEvent {
	return RemoteChangeEvent{
		baseEvent:  newBaseEvent(TypeRemoteChange),
		Payload:    payload,
		PeerID:     peerID,
		ModifiedAt: modifiedAt,
		Version:    version,
	}
}

// ConflictResolvedEvent is emitted when two peers' snapshots disagreed
// and the resolver picked a winner. Field values are copied from the
// resolver's conflict record.
type ConflictResolvedEvent struct {
	baseEvent
	LocalModifiedAt  int64  // Local side's stamp, epoch milliseconds
	RemoteModifiedAt int64  // Remote side's stamp, epoch milliseconds
	LocalPeerID      string // Local writer
	RemotePeerID     string // Remote writer
	Kind             string // "simultaneous" or "stale"
	Winner           string // "local" or "remote"
}

// NewConflictResolvedEvent creates a ConflictResolvedEvent.
func NewConflictResolvedEvent(localModifiedAt, remoteModifiedAt int64, localPeerID, remotePeerID, kind, winner string) ConflictResolvedEvent {
	return ConflictResolvedEvent{
		baseEvent:        newBaseEvent(TypeConflictResolved),
		LocalModifiedAt:  localModifiedAt,
		RemoteModifiedAt: remoteModifiedAt,
		LocalPeerID:      localPeerID,
		RemotePeerID:     remotePeerID,
		Kind:             kind,
		Winner:           winner,
	}
}

// StateChangedEvent is emitted when the coordinator transitions between
// lifecycle states ("stopped", "starting", "running", "stopping").
type StateChangedEvent struct {
	baseEvent
	Previous string // State before the transition
	Current  string // State after the transition
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(previous, current string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(TypeStateChanged),
		Previous:  previous,
		Current:   current,
	}
}

// SyncErrorEvent is emitted when a background operation fails. The engine
// keeps running; the next timer tick retries.
type SyncErrorEvent struct {
	baseEvent
	Op    string // Operation that failed (e.g. "reconcile", "heartbeat")
	Error string // Error message
}

// NewSyncErrorEvent creates a SyncErrorEvent.
func NewSyncErrorEvent(op, errMsg string) SyncErrorEvent {
	return SyncErrorEvent{
		baseEvent: newBaseEvent(TypeSyncError),
		Op:        op,
		Error:     errMsg,
	}
}

// -----------------------------------------------------------------------------
// Peer Events
// -----------------------------------------------------------------------------

// PeerRegisteredEvent is emitted after this process registers itself in
// the shared directory's registry.
type PeerRegisteredEvent struct {
	baseEvent
	PeerID string // UUID of the registered peer
	PID    int    // OS process id
	Tag    string // Host-assigned role label
}

// NewPeerRegisteredEvent creates a PeerRegisteredEvent.
func NewPeerRegisteredEvent(peerID string, pid int, tag string) PeerRegisteredEvent {
	return PeerRegisteredEvent{
		baseEvent: newBaseEvent(TypePeerRegistered),
		PeerID:    peerID,
		PID:       pid,
		Tag:       tag,
	}
}

// PeerUnregisteredEvent is emitted after this process removes itself from
// the registry during shutdown.
type PeerUnregisteredEvent struct {
	baseEvent
	PeerID string // UUID of the departed peer
}

// NewPeerUnregisteredEvent creates a PeerUnregisteredEvent.
func NewPeerUnregisteredEvent(peerID string) PeerUnregisteredEvent {
	return PeerUnregisteredEvent{
		baseEvent: newBaseEvent(TypePeerUnregistered),
		PeerID:    peerID,
	}
}

// ZombiesReapedEvent is emitted when registry cleanup pruned entries
// whose process died or whose heartbeat went stale.
type ZombiesReapedEvent struct {
	baseEvent
	Count int // Number of entries pruned
}

// NewZombiesReapedEvent creates a ZombiesReapedEvent.
func NewZombiesReapedEvent(count int) ZombiesReapedEvent {
	return ZombiesReapedEvent{
		baseEvent: newBaseEvent(TypeZombiesReaped),
		Count:     count,
	}
}
