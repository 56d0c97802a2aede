// Package resolver decides which of two snapshots of the shared state
// survives when peers disagree. Resolution is last-write-wins on the
// writers' wall-clock stamps with a deterministic tie-break, so every
// peer running the same comparison converges on the same winner without
// any coordination.
//
// Version counters are writer-local and never compared across peers;
// only the modification stamps order snapshots.
package resolver

import (
	"encoding/json"
	"time"
)

// DefaultDriftTolerance bounds how far ahead of the local clock a stamp
// may be before it stops being trusted.
const DefaultDriftTolerance = 30 * time.Second

// Side identifies which snapshot won a resolution.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// ConflictKind classifies a disagreement between two peers.
type ConflictKind string

const (
	// KindSimultaneous marks snapshots stamped at the same millisecond.
	KindSimultaneous ConflictKind = "simultaneous"
	// KindStale marks snapshots where one side's stamp lags the other's.
	KindStale ConflictKind = "stale"
)

// Snapshot is one peer's view of the shared state at a moment in time.
type Snapshot struct {
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
	PeerID    string          `json:"peerId"`
	Version   uint64          `json:"version"` // writer-local, advisory
}

// ConflictRecord describes a resolved disagreement between two peers.
type ConflictRecord struct {
	LocalTimestamp  int64        `json:"localTimestamp"`
	RemoteTimestamp int64        `json:"remoteTimestamp"`
	LocalPeerID     string       `json:"localPeerId"`
	RemotePeerID    string       `json:"remotePeerId"`
	Kind            ConflictKind `json:"kind"`
}

// Result carries the outcome of a resolution. Record is nil when both
// snapshots were written by the same peer.
type Result struct {
	Winner Side
	Record *ConflictRecord
}

// Resolver compares snapshots. The zero value is not usable; construct
// with New.
type Resolver struct {
	driftTolerance time.Duration
	now            func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDriftTolerance overrides the future-stamp rejection window.
func WithDriftTolerance(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.driftTolerance = d
		}
	}
}

// WithClock overrides the time source. Tests pin it for deterministic
// future-stamp checks.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Resolver with DefaultDriftTolerance unless overridden.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		driftTolerance: DefaultDriftTolerance,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DriftTolerance returns the configured future-stamp rejection window.
func (r *Resolver) DriftTolerance() time.Duration {
	return r.driftTolerance
}

// Resolve compares the local and remote snapshots and picks a winner:
//
//  1. A stamp further in the future than the drift tolerance is not
//     trusted. When exactly one side carries such a stamp the other
//     side wins unconditionally; when both do, the comparison falls
//     through to rule 2.
//  2. Otherwise the later stamp wins.
//  3. On a tie the remote side wins. Each peer sees the other as
//     "remote", so both sides of a simultaneous write converge on the
//     same snapshot.
//
// A ConflictRecord is produced iff the snapshots come from different
// peers: Kind is "simultaneous" on a stamp tie and "stale" otherwise.
// Resolve performs no I/O and reads no state besides the injected clock.
func (r *Resolver) Resolve(local, remote Snapshot) Result {
	localFuture := r.fromFuture(local.Timestamp)
	remoteFuture := r.fromFuture(remote.Timestamp)

	var winner Side
	switch {
	case remoteFuture && !localFuture:
		winner = SideLocal
	case localFuture && !remoteFuture:
		winner = SideRemote
	case remote.Timestamp > local.Timestamp:
		winner = SideRemote
	case remote.Timestamp < local.Timestamp:
		winner = SideLocal
	default:
		winner = SideRemote
	}

	var record *ConflictRecord
	if local.PeerID != remote.PeerID {
		kind := KindStale
		if local.Timestamp == remote.Timestamp {
			kind = KindSimultaneous
		}
		record = &ConflictRecord{
			LocalTimestamp:  local.Timestamp,
			RemoteTimestamp: remote.Timestamp,
			LocalPeerID:     local.PeerID,
			RemotePeerID:    remote.PeerID,
			Kind:            kind,
		}
	}

	return Result{Winner: winner, Record: record}
}

// fromFuture reports whether a stamp is beyond the tolerated clock drift.
func (r *Resolver) fromFuture(timestamp int64) bool {
	limit := r.now().UnixMilli() + r.driftTolerance.Milliseconds()
	return timestamp > limit
}
