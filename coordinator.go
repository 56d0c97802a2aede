package dirstate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dirstate/dirstate/config"
	"github.com/dirstate/dirstate/event"
	"github.com/dirstate/dirstate/journal"
	"github.com/dirstate/dirstate/logging"
	"github.com/dirstate/dirstate/registry"
	"github.com/dirstate/dirstate/resolver"
	"github.com/dirstate/dirstate/statestore"
	"github.com/dirstate/dirstate/watcher"
)

// SyncDirName is the subdirectory created under the base directory for
// all engine files.
const SyncDirName = "sync"

// Timer defaults. The zombie-cleanup pass runs once per zombie timeout.
const (
	DefaultPollInterval      = 10 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
)

var (
	// ErrAlreadyStarted is returned by Start when the engine is not stopped.
	ErrAlreadyStarted = errors.New("sync already started")
	// ErrNotRunning is returned by operations that need a running engine.
	ErrNotRunning = errors.New("sync not running")
)

// Coordinator synchronizes host state across processes sharing a
// directory. It owns a peer identity, registers it in the instance
// registry, watches the shared store for other peers' writes, and
// reconciles divergence with last-write-wins resolution. All methods
// are safe for concurrent use.
type Coordinator struct {
	baseDir string
	syncDir string

	enabled        bool
	tag            string
	appVersion     string
	journalEnabled bool

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	zombieTimeout     time.Duration
	debounce          time.Duration
	driftTolerance    time.Duration

	peerID   string
	now      func() time.Time
	baseLog  *logging.Logger
	log      *logging.Logger
	bus      *event.Bus
	validate func(*statestore.SharedState) error

	store   *statestore.Store
	reg     *registry.Registry
	watch   *watcher.Watcher
	resolve *resolver.Resolver

	// reconcileMu serializes reconciliation passes and host writes so a
	// reconcile's read-decide-write window never interleaves with a
	// NotifyChange. Always acquired before mu.
	reconcileMu sync.Mutex

	mu          sync.Mutex
	state       State
	version     uint64
	baseline    *resolver.Snapshot
	diagnostic  json.RawMessage
	lastSyncAt  time.Time
	lastError   string
	activePeers int
	jrnl        *journal.Journal

	self       registry.PeerInfo
	stopFunc   context.CancelFunc
	stoppedCh  chan struct{}
	watchSubID int
}

// New creates a Coordinator rooted at the given base directory. Nothing
// touches the filesystem until Start.
func New(root string, opts ...Option) (*Coordinator, error) {
	if root == "" {
		return nil, fmt.Errorf("base directory required")
	}

	c := &Coordinator{
		baseDir:           root,
		syncDir:           filepath.Join(root, SyncDirName),
		enabled:           true,
		pollInterval:      DefaultPollInterval,
		heartbeatInterval: DefaultHeartbeatInterval,
		zombieTimeout:     registry.DefaultZombieTimeout,
		debounce:          watcher.DefaultDebounce,
		driftTolerance:    resolver.DefaultDriftTolerance,
		peerID:            registry.NewPeerID(),
		now:               time.Now,
		baseLog:           logging.NopLogger(),
		state:             StateStopped,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.pollInterval < config.MinPollInterval {
		c.pollInterval = config.MinPollInterval
	}
	if c.pollInterval > config.MaxPollInterval {
		c.pollInterval = config.MaxPollInterval
	}
	if c.bus == nil {
		c.bus = event.NewBus()
	}
	c.log = c.baseLog.WithComponent("coordinator")

	storeOpts := []statestore.Option{statestore.WithLogger(c.baseLog)}
	if c.validate != nil {
		storeOpts = append(storeOpts, statestore.WithValidator(c.validate))
	}
	c.store = statestore.New(filepath.Join(c.syncDir, statestore.DefaultFileName), storeOpts...)

	c.reg = registry.New(c.syncDir,
		registry.WithLogger(c.baseLog),
		registry.WithZombieTimeout(c.zombieTimeout))

	c.watch = watcher.New(c.store.Path(),
		watcher.WithDebounce(c.debounce),
		watcher.WithLogger(c.baseLog))

	c.resolve = resolver.New(
		resolver.WithDriftTolerance(c.driftTolerance),
		resolver.WithClock(c.now))

	return c, nil
}

// BaseDir returns the host-supplied base directory.
func (c *Coordinator) BaseDir() string {
	return c.baseDir
}

// Bus returns the event bus engine notifications are published on.
// Handlers run synchronously on the publishing goroutine; a handler
// must not call TriggerSync, NotifyChange, or Stop.
func (c *Coordinator) Bus() *event.Bus {
	return c.bus
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the engine for display or monitoring.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:       c.state,
		PeerID:      c.peerID,
		Enabled:     c.enabled,
		Running:     c.state == StateRunning,
		LastSyncAt:  c.lastSyncAt,
		LastError:   c.lastError,
		ActivePeers: c.activePeers,
		Version:     c.version,
	}
}

// Peers returns the current registry entries, including this peer.
func (c *Coordinator) Peers() ([]registry.PeerInfo, error) {
	return c.reg.List()
}

// Start brings the engine up: recover the store, register this peer,
// load the local baseline, start the watcher, and run the background
// loop until Stop or ctx cancellation. When syncing is disabled Start
// returns nil without doing any of that.
//
// Registration failure aborts Start and leaves the engine stopped; the
// caller may retry. Cancelling ctx halts background work but does not
// unregister; call Stop for an orderly shutdown.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if !c.enabled {
		c.mu.Unlock()
		c.log.Debug("sync disabled, running standalone")
		return nil
	}
	c.state = StateStarting
	c.mu.Unlock()
	c.publishStateChange(StateStopped, StateStarting)

	if err := os.MkdirAll(c.syncDir, 0o755); err != nil {
		return c.abortStart(fmt.Errorf("failed to create sync directory: %w", err))
	}

	if cleaned, err := c.store.Recover(); err != nil {
		c.log.Warn("store recovery incomplete", "error", err.Error())
	} else if cleaned {
		c.log.Info("store recovery cleaned residue")
	}

	if c.journalEnabled {
		jrnl, err := journal.Open(filepath.Join(c.syncDir, journal.DefaultFileName),
			journal.WithLogger(c.baseLog))
		if err != nil {
			// Another peer may hold the journal; sync works without it
			c.log.Warn("journal unavailable", "error", err.Error())
		} else {
			c.mu.Lock()
			c.jrnl = jrnl
			c.mu.Unlock()
		}
	}

	self := registry.NewPeerInfo(c.peerID, c.tag, c.appVersion)
	if err := c.reg.Register(self); err != nil {
		c.closeJournal()
		return c.abortStart(fmt.Errorf("failed to register instance: %w", err))
	}
	c.self = self
	c.bus.Publish(event.NewPeerRegisteredEvent(self.ID, self.PID, self.Tag))

	if st, err := c.store.Read(); err == nil {
		c.mu.Lock()
		c.baseline = snapshotOf(st)
		c.diagnostic = st.Diagnostic
		if st.LastModifiedBy == c.peerID && st.Version > c.version {
			c.version = st.Version
		}
		c.mu.Unlock()
	} else if !errors.Is(err, statestore.ErrNotFound) {
		c.log.Warn("failed to load baseline", "error", err.Error())
	}

	runCtx, cancel := context.WithCancel(ctx)
	syncCh := make(chan struct{}, 1)
	stopped := make(chan struct{})
	c.stopFunc = cancel
	c.stoppedCh = stopped

	if err := c.watch.Start(); err != nil {
		c.log.Warn("file watching unavailable, relying on polling", "error", err.Error())
	} else {
		c.watchSubID = c.watch.Subscribe(func() {
			select {
			case syncCh <- struct{}{}:
			default:
			}
		})
	}

	go c.run(runCtx, syncCh, stopped)

	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	c.publishStateChange(StateStarting, StateRunning)

	c.refreshActivePeers()

	c.log.Info("sync started",
		"dir", c.syncDir,
		"peer_id", c.peerID,
		"tag", c.tag,
		"poll_interval", c.pollInterval.String())
	return nil
}

// Stop shuts the engine down: join the background loop, stop the
// watcher, unregister, close the journal, and clear the local baseline.
// Safe to call twice and before Start.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	c.mu.Unlock()
	c.publishStateChange(StateRunning, StateStopping)

	c.stopFunc()
	<-c.stoppedCh
	c.stopFunc = nil
	c.stoppedCh = nil

	if c.watchSubID != 0 {
		c.watch.Unsubscribe(c.watchSubID)
		c.watchSubID = 0
	}
	c.watch.Stop()

	if err := c.reg.Unregister(c.peerID); err != nil {
		c.log.Warn("failed to unregister", "error", err.Error())
	} else {
		c.bus.Publish(event.NewPeerUnregisteredEvent(c.peerID))
	}

	c.closeJournal()

	c.mu.Lock()
	c.baseline = nil
	c.diagnostic = nil
	c.state = StateStopped
	c.mu.Unlock()
	c.publishStateChange(StateStopping, StateStopped)

	c.log.Info("sync stopped", "peer_id", c.peerID)
	return nil
}

// NotifyChange records a new host payload: bump the local version,
// stamp a snapshot with this peer's identity and clock, and write it to
// the shared store. In standalone mode only in-memory state advances.
func (c *Coordinator) NotifyChange(payload json.RawMessage) error {
	if !c.enabled {
		c.advanceLocal(payload, nil, false)
		return nil
	}
	if c.State() != StateRunning {
		return ErrNotRunning
	}

	c.reconcileMu.Lock()
	defer c.reconcileMu.Unlock()

	c.mu.Lock()
	diag := c.diagnostic
	c.mu.Unlock()

	return c.writeLocal(payload, diag, journal.KindLocalWrite)
}

// NotifyDiagnostic replaces the record's optional diagnostic blob while
// keeping the current payload.
func (c *Coordinator) NotifyDiagnostic(diag json.RawMessage) error {
	if !c.enabled {
		c.advanceLocal(nil, diag, true)
		return nil
	}
	if c.State() != StateRunning {
		return ErrNotRunning
	}

	c.reconcileMu.Lock()
	defer c.reconcileMu.Unlock()

	c.mu.Lock()
	var payload json.RawMessage
	if c.baseline != nil {
		payload = c.baseline.Payload
	}
	c.mu.Unlock()

	return c.writeLocal(payload, diag, journal.KindLocalWrite)
}

// TriggerSync runs one reconciliation pass now, the same pass the poll
// timer and the watcher drive. No-op when disabled.
func (c *Coordinator) TriggerSync() error {
	if !c.enabled {
		return nil
	}
	if c.State() != StateRunning {
		return ErrNotRunning
	}
	return c.reconcile()
}

// run is the background loop. It owns the heartbeat, cleanup, and poll
// timers and drains debounced watcher wakeups. Errors never break the
// loop; the next tick retries.
func (c *Coordinator) run(ctx context.Context, syncCh <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	heartbeat := time.NewTicker(c.heartbeatInterval)
	defer heartbeat.Stop()
	cleanup := time.NewTicker(c.zombieTimeout)
	defer cleanup.Stop()
	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.heartbeatTick()
		case <-cleanup.C:
			c.cleanupTick()
		case <-poll.C:
			_ = c.reconcile()
		case <-syncCh:
			_ = c.reconcile()
		}
	}
}

func (c *Coordinator) heartbeatTick() {
	if err := c.reg.UpdateHeartbeat(c.self); err != nil {
		c.syncFailed("heartbeat", err)
		return
	}
	c.refreshActivePeers()
}

func (c *Coordinator) cleanupTick() {
	reaped, err := c.reg.Cleanup(c.peerID)
	if err != nil {
		c.syncFailed("cleanup", err)
		return
	}
	if reaped > 0 {
		c.log.Info("reaped zombie peers", "count", reaped)
		c.bus.Publish(event.NewZombiesReapedEvent(reaped))
		c.journalEntry(journal.KindPeersReaped, struct {
			Count int `json:"count"`
		}{reaped})
	}
	c.refreshActivePeers()
}

// reconcile is the convergence pass: read the shared store, decide
// whether its record supersedes the local baseline, and either adopt
// the remote snapshot or re-assert the local one.
func (c *Coordinator) reconcile() error {
	c.reconcileMu.Lock()
	defer c.reconcileMu.Unlock()

	st, err := c.store.Read()
	if err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			return c.reassertMissing()
		}
		return c.syncFailed("reconcile", err)
	}

	remote := *snapshotOf(st)

	if st.LastModifiedBy == c.peerID {
		// Our own write round-tripped back
		c.mu.Lock()
		c.baseline = &remote
		c.diagnostic = st.Diagnostic
		c.markSyncedLocked()
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	baseline := c.baseline
	c.mu.Unlock()

	if baseline == nil {
		c.adopt(remote, st.Diagnostic, nil)
		return nil
	}

	if remote.Timestamp == baseline.Timestamp &&
		remote.PeerID == baseline.PeerID &&
		remote.Version == baseline.Version {
		// Already converged on this record; re-adopting it would spam
		// remote-change events on every poll
		c.mu.Lock()
		c.markSyncedLocked()
		c.mu.Unlock()
		return nil
	}

	res := c.resolve.Resolve(*baseline, remote)
	if res.Winner == resolver.SideRemote {
		c.adopt(remote, st.Diagnostic, res.Record)
		return nil
	}

	if !jsonEqual(baseline.Payload, remote.Payload) {
		// Local wins but the store carries the loser; write the winner
		// back so peers converge toward it
		c.log.Info("re-asserting local state over stale remote",
			"remote_peer", remote.PeerID,
			"remote_modified_at", remote.Timestamp)
		c.mu.Lock()
		payload, diag := baseline.Payload, c.diagnostic
		c.mu.Unlock()
		return c.writeLocal(payload, diag, journal.KindReassert)
	}

	c.mu.Lock()
	c.markSyncedLocked()
	c.mu.Unlock()
	return nil
}

// reassertMissing handles an absent store record: if a baseline exists,
// write it back so peers recover the record.
func (c *Coordinator) reassertMissing() error {
	c.mu.Lock()
	baseline := c.baseline
	diag := c.diagnostic
	c.mu.Unlock()

	if baseline == nil {
		return nil
	}
	c.log.Info("state file missing, re-asserting local baseline")
	return c.writeLocal(baseline.Payload, diag, journal.KindReassert)
}

// adopt makes the remote snapshot the local baseline and notifies
// subscribers, journaling any conflict that resolution reported.
func (c *Coordinator) adopt(remote resolver.Snapshot, diag json.RawMessage, rec *resolver.ConflictRecord) {
	c.mu.Lock()
	snap := remote
	c.baseline = &snap
	c.diagnostic = diag
	c.markSyncedLocked()
	c.mu.Unlock()

	c.log.Info("adopted remote state",
		"peer_id", remote.PeerID,
		"modified_at", remote.Timestamp)

	c.bus.Publish(event.NewRemoteChangeEvent(remote.Payload, remote.PeerID, remote.Timestamp, remote.Version))
	c.journalEntry(journal.KindRemoteApply, struct {
		Peer string `json:"peer"`
		At   int64  `json:"at"`
	}{remote.PeerID, remote.Timestamp})

	if rec != nil {
		c.log.Warn("conflict resolved",
			"kind", string(rec.Kind),
			"winner", string(resolver.SideRemote),
			"local_peer", rec.LocalPeerID,
			"remote_peer", rec.RemotePeerID)
		c.bus.Publish(event.NewConflictResolvedEvent(
			rec.LocalTimestamp, rec.RemoteTimestamp,
			rec.LocalPeerID, rec.RemotePeerID,
			string(rec.Kind), string(resolver.SideRemote)))
		c.journalEntry(journal.KindConflict, rec)
	}
}

// writeLocal stamps and writes a record owned by this peer, then makes
// it the baseline.
func (c *Coordinator) writeLocal(payload, diag json.RawMessage, kind string) error {
	c.mu.Lock()
	c.version++
	st := &statestore.SharedState{
		Version:        c.version,
		LastModified:   c.now().UnixMilli(),
		LastModifiedBy: c.peerID,
		Payload:        payload,
		Diagnostic:     diag,
	}
	c.mu.Unlock()

	if err := c.store.Write(st); err != nil {
		return c.syncFailed("write", err)
	}

	c.mu.Lock()
	c.baseline = snapshotOf(st)
	c.diagnostic = diag
	c.markSyncedLocked()
	c.mu.Unlock()

	c.journalEntry(kind, struct {
		Version uint64 `json:"version"`
		At      int64  `json:"at"`
	}{st.Version, st.LastModified})
	return nil
}

// advanceLocal is the standalone-mode write path: no filesystem, no
// events, just the in-memory baseline and counter.
func (c *Coordinator) advanceLocal(payload, diag json.RawMessage, diagOnly bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.version++
	if diagOnly {
		if c.baseline != nil {
			payload = c.baseline.Payload
		}
	} else {
		diag = c.diagnostic
	}
	c.baseline = &resolver.Snapshot{
		Payload:   payload,
		Timestamp: c.now().UnixMilli(),
		PeerID:    c.peerID,
		Version:   c.version,
	}
	c.diagnostic = diag
}

// syncFailed records a background failure in status, logs it, and
// publishes a sync-error event. The error is returned for direct
// callers; loop callers ignore it and keep ticking.
func (c *Coordinator) syncFailed(op string, err error) error {
	c.log.Error("sync operation failed", "op", op, "error", err.Error())
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()
	c.bus.Publish(event.NewSyncErrorEvent(op, err.Error()))
	return err
}

func (c *Coordinator) markSyncedLocked() {
	c.lastSyncAt = c.now()
	c.lastError = ""
}

func (c *Coordinator) refreshActivePeers() {
	peers, err := c.reg.List()
	if err != nil {
		return
	}
	c.mu.Lock()
	c.activePeers = len(peers)
	c.mu.Unlock()
}

func (c *Coordinator) publishStateChange(previous, current State) {
	c.log.Debug("state changed", "previous", string(previous), "current", string(current))
	c.bus.Publish(event.NewStateChangedEvent(string(previous), string(current)))
}

func (c *Coordinator) abortStart(err error) error {
	c.mu.Lock()
	c.state = StateStopped
	c.lastError = err.Error()
	c.mu.Unlock()
	c.publishStateChange(StateStarting, StateStopped)
	return err
}

func (c *Coordinator) journalEntry(kind string, detail any) {
	c.mu.Lock()
	jrnl := c.jrnl
	c.mu.Unlock()
	if jrnl == nil {
		return
	}

	var raw json.RawMessage
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			c.log.Warn("failed to encode journal detail", "kind", kind, "error", err.Error())
		} else {
			raw = data
		}
	}
	if err := jrnl.Append(kind, c.peerID, raw); err != nil {
		c.log.Warn("journal append failed", "kind", kind, "error", err.Error())
	}
}

func (c *Coordinator) closeJournal() {
	c.mu.Lock()
	jrnl := c.jrnl
	c.jrnl = nil
	c.mu.Unlock()
	if jrnl == nil {
		return
	}
	if err := jrnl.Close(); err != nil {
		c.log.Warn("failed to close journal", "error", err.Error())
	}
}

func snapshotOf(st *statestore.SharedState) *resolver.Snapshot {
	return &resolver.Snapshot{
		Payload:   st.Payload,
		Timestamp: st.LastModified,
		PeerID:    st.LastModifiedBy,
		Version:   st.Version,
	}
}

// jsonEqual compares two blobs after compaction. The store file is
// indented on disk while host-supplied payloads usually are not, so a
// byte comparison would see every round-trip as a change.
func jsonEqual(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
