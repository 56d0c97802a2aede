package dirstate

import (
	"time"

	"github.com/dirstate/dirstate/config"
	"github.com/dirstate/dirstate/event"
	"github.com/dirstate/dirstate/logging"
	"github.com/dirstate/dirstate/statestore"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEnabled turns syncing on or off. A disabled coordinator runs
// standalone: Start succeeds without touching the shared directory and
// local operations only advance in-memory state.
func WithEnabled(enabled bool) Option {
	return func(c *Coordinator) {
		c.enabled = enabled
	}
}

// WithTag sets the role label recorded in this peer's registry entry.
func WithTag(tag string) Option {
	return func(c *Coordinator) {
		c.tag = tag
	}
}

// WithAppVersion sets the host application version recorded in this
// peer's registry entry.
func WithAppVersion(version string) Option {
	return func(c *Coordinator) {
		c.appVersion = version
	}
}

// WithPollInterval sets the reconciliation poll interval. Values are
// clamped into the range config.MinPollInterval..config.MaxPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithHeartbeatInterval sets how often this peer refreshes its registry
// heartbeat.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

// WithZombieTimeout sets how stale a peer's heartbeat may be before the
// cleanup pass removes its registry entry.
func WithZombieTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.zombieTimeout = d
		}
	}
}

// WithDebounce sets the watcher's burst-coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithDriftTolerance sets how far in the future a peer's timestamp may
// be before resolution discounts it as clock drift.
func WithDriftTolerance(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.driftTolerance = d
		}
	}
}

// WithLogger attaches a logger. Defaults to a nop logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.baseLog = log
		}
	}
}

// WithBus supplies an external event bus. By default each Coordinator
// creates its own.
func WithBus(bus *event.Bus) Option {
	return func(c *Coordinator) {
		if bus != nil {
			c.bus = bus
		}
	}
}

// WithJournal enables the append-only activity journal in the sync
// directory. The journal is advisory; failure to open it degrades to
// journal-less operation.
func WithJournal(enabled bool) Option {
	return func(c *Coordinator) {
		c.journalEnabled = enabled
	}
}

// WithValidator installs a host-supplied check applied to records read
// from the shared store. Records the validator rejects are treated as
// absent.
func WithValidator(fn func(*statestore.SharedState) error) Option {
	return func(c *Coordinator) {
		c.validate = fn
	}
}

// WithPeerID overrides the generated peer identity. Intended for tests.
func WithPeerID(id string) Option {
	return func(c *Coordinator) {
		if id != "" {
			c.peerID = id
		}
	}
}

// WithClock overrides the timestamp source for writes and resolution.
// Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// FromConfig translates a loaded configuration into options. Logging is
// not covered here: the host builds its logger from config.LoggingConfig
// and passes it through WithLogger.
func FromConfig(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithEnabled(cfg.Sync.Enabled),
		WithTag(cfg.Sync.Tag),
		WithPollInterval(cfg.Sync.PollInterval()),
		WithHeartbeatInterval(cfg.Sync.HeartbeatInterval()),
		WithZombieTimeout(cfg.Sync.ZombieTimeout()),
		WithDebounce(cfg.Sync.Debounce()),
		WithDriftTolerance(cfg.Sync.DriftTolerance()),
		WithJournal(cfg.Journal.Enabled),
	}
}
