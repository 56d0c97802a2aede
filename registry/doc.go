// Package registry tracks which processes currently share a directory.
//
// Every participating process registers a [PeerInfo] entry (uuid, pid,
// role tag, heartbeat stamp) in a single JSON file, refreshes its
// heartbeat while running, and removes itself on shutdown. Peers that
// crash are reaped by whichever survivor runs cleanup next, keyed on a
// dead pid or a stale heartbeat.
//
// # Architecture
//
// The registry file is only ever rewritten whole: each mutation reads
// the file, edits the instance list in memory, and writes it back
// atomically. Mutations across processes are serialized by [DirMutex],
// a sentinel-file mutex acquired by exclusive create. A crashed mutex
// holder is taken over once its pid dies or the sentinel outlives the
// staleness threshold, so no operator intervention is needed.
//
// A corrupt registry file is treated as empty; the next mutation
// rewrites it whole and running peers re-add themselves on their next
// heartbeat.
//
// # Basic Usage
//
//	reg := registry.New(syncDir)
//	self := registry.NewPeerInfo(registry.NewPeerID(), "agent", "1.4.0")
//
//	if err := reg.Register(self); err != nil { ... }
//	defer reg.Unregister(self.ID)
//
//	// Periodically:
//	_ = reg.UpdateHeartbeat(self)
//	reaped, _ := reg.Cleanup(self.ID)
//
//	peers, _ := reg.List()
//
// # Thread Safety
//
// All [Registry] methods are safe for concurrent use. An internal mutex
// serializes this process's mutations; the directory mutex serializes
// mutations across processes.
package registry
