package statestore

import (
	"encoding/json"
	"errors"
)

// DefaultFileName is the record's file name inside the sync directory.
const DefaultFileName = "state.json"

// ErrNotFound is returned by Read when no usable record exists: the file
// is missing, empty, unparseable, or fails validation. Callers cannot
// distinguish these cases; the next successful Write heals all of them.
var ErrNotFound = errors.New("shared state not found")

// SharedState is the single JSON record all peers read and write. Field
// names are a compatibility surface shared with every process version
// that touches the directory; they must not change.
type SharedState struct {
	// Version counts this writer's updates. It is advisory and local to
	// the writer; resolution never compares versions across peers.
	Version uint64 `json:"version"`

	// LastModified is the writer's wall clock in epoch milliseconds.
	LastModified int64 `json:"lastModified"`

	// LastModifiedBy is the UUID of the peer that wrote the record.
	LastModifiedBy string `json:"lastModifiedBy"`

	// Payload is the host-defined blob being synchronized.
	Payload json.RawMessage `json:"payload"`

	// Diagnostic is an optional free-form blob riding alongside the
	// payload, typically troubleshooting state.
	Diagnostic json.RawMessage `json:"diagnostic,omitempty"`
}

// valid reports whether the record carries the required fields: version,
// stamp, writer, and a payload. Records missing any of them read as not
// found. Whether the payload itself is well-formed for the host is the
// installed validator's call.
func (s *SharedState) valid() bool {
	return s.Version > 0 &&
		s.LastModified > 0 &&
		s.LastModifiedBy != "" &&
		len(s.Payload) > 0
}
