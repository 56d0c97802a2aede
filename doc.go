// Package dirstate synchronizes application state between processes that
// share a directory, with no server, no sockets, and no daemon.
//
// Each participating process embeds a [Coordinator]. The coordinator
// registers the process in a shared peer registry, mirrors the host's
// state into a single JSON record under <root>/sync, and notices other
// peers' writes through a debounced file watcher backed by a polling
// timer. Divergent writes resolve last-write-wins on the writers' clock
// stamps; the losing side adopts the winner and the host hears about it
// on the event bus.
//
// # Architecture
//
// The root package wires five subsystems together:
//
//   - [statestore.Store]: the shared record, written atomically via
//     temp-file rename so readers never see a partial write.
//   - [registry.Registry]: who is participating, guarded by a
//     directory mutex and pruned of dead peers by PID liveness checks.
//   - [watcher.Watcher]: debounced change notifications for the store
//     file. Watch failures degrade to polling, never to an error.
//   - [resolver.Resolver]: pure last-write-wins comparison with a
//     clock-drift guard and conflict classification.
//   - [journal.Journal]: optional append-only history of sync activity
//     for troubleshooting.
//
// The coordinator's background loop drives heartbeats, zombie cleanup,
// and periodic reconciliation. Every error on that loop is absorbed
// into [Status].LastError and a sync-error event; the loop only exits
// on [Coordinator.Stop] or context cancellation.
//
// # Basic Usage
//
//	c, err := dirstate.New(filepath.Join(home, ".myapp"),
//	    dirstate.WithTag("agent"),
//	    dirstate.WithAppVersion(version),
//	    dirstate.WithLogger(log),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	defer c.Stop()
//
//	// Push local changes to peers.
//	c.NotifyChange(payload)
//
//	// Hear about peers' changes.
//	c.Bus().Subscribe(event.TypeRemoteChange, func(e event.Event) {
//	    rc := e.(event.RemoteChangeEvent)
//	    apply(rc.Payload)
//	})
//
// Hosts that load settings from a file or the environment can build the
// option list with [FromConfig]:
//
//	cfg, err := config.LoadFrom(path)
//	if err != nil {
//	    return err
//	}
//	c, err := dirstate.New(root, dirstate.FromConfig(cfg)...)
//
// # Standalone Mode
//
// A coordinator built with WithEnabled(false) never touches the
// filesystem: Start and Stop are no-ops, NotifyChange advances only the
// in-memory version counter, and TriggerSync does nothing. Hosts keep
// one code path whether or not syncing is on.
//
// # Thread Safety
//
// All [Coordinator] methods are safe for concurrent use.
package dirstate
