// Package journal keeps a local append-only record of sync activity in a
// bbolt file. It exists for troubleshooting: every local write, adopted
// remote change, conflict resolution, re-assertion, and zombie sweep can
// be inspected after the fact with Recent.
//
// The journal is advisory. bbolt holds an exclusive lock on the file, so
// when several peers share a directory only one of them gets the journal;
// callers treat Open failure as a degraded mode, never a sync failure.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dirstate/dirstate/logging"
)

// DefaultFileName is the journal file name inside the sync directory.
const DefaultFileName = "journal.db"

// Entry kinds.
const (
	KindLocalWrite  = "local_write"
	KindRemoteApply = "remote_apply"
	KindConflict    = "conflict"
	KindReassert    = "reassert"
	KindPeersReaped = "peers_reaped"
)

// openTimeout bounds how long Open waits for another holder's file lock.
const openTimeout = time.Second

var bucketEntries = []byte("entries")

// Entry is one journaled sync action.
type Entry struct {
	Seq    uint64          `json:"seq"`
	At     int64           `json:"at"`
	Kind   string          `json:"kind"`
	PeerID string          `json:"peerId"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// Journal is an append-only log backed by a single bbolt bucket.
// It is safe for concurrent use.
type Journal struct {
	path string
	db   *bolt.DB
	log  *logging.Logger
	now  func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger attaches a logger. Defaults to a nop logger.
func WithLogger(log *logging.Logger) Option {
	return func(j *Journal) {
		if log != nil {
			j.log = log.WithComponent("journal")
		}
	}
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

// Open opens (creating if needed) the journal at path. The wait for
// another process's file lock is bounded; callers should degrade rather
// than fail when Open errors.
func Open(path string, opts ...Option) (*Journal, error) {
	j := &Journal{
		path: path,
		log:  logging.NopLogger(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	j.db = db
	return j, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Close releases the underlying database. Further appends fail.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records one action. Seq and At are assigned here.
func (j *Journal) Append(kind, peerID string, detail json.RawMessage) error {
	at := j.now().UnixMilli()

	err := j.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketEntries)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		e := Entry{
			Seq:    seq,
			At:     at,
			Kind:   kind,
			PeerID: peerID,
			Detail: detail,
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	j.log.Debug("journaled", "kind", kind, "peer_id", peerID)
	return nil
}

// Recent returns up to n entries, newest first. An empty journal yields
// an empty slice.
func (j *Journal) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	var out []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				j.log.Warn("skipping unreadable journal entry", "error", err.Error())
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return out, nil
}
