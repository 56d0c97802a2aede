package journal

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T, opts ...Option) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), DefaultFileName), opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := openTestJournal(t)

	kinds := []string{KindLocalWrite, KindRemoteApply, KindConflict}
	for _, kind := range kinds {
		if err := j.Append(kind, "peer-1", nil); err != nil {
			t.Fatalf("Append(%s) failed: %v", kind, err)
		}
	}

	entries, err := j.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != KindConflict || entries[1].Kind != KindRemoteApply {
		t.Errorf("expected newest first, got %q then %q", entries[0].Kind, entries[1].Kind)
	}
	if entries[0].Seq != 3 || entries[1].Seq != 2 {
		t.Errorf("expected seqs 3,2, got %d,%d", entries[0].Seq, entries[1].Seq)
	}

	all, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected all 3 entries, got %d", len(all))
	}
}

func TestAppendStampsClockAndPeer(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	j := openTestJournal(t, WithClock(func() time.Time { return fixed }))

	detail := json.RawMessage(`{"winner":"remote"}`)
	if err := j.Append(KindConflict, "peer-9", detail); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	entries, err := j.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	e := entries[0]
	if e.At != 1700000000000 {
		t.Errorf("expected pinned timestamp, got %d", e.At)
	}
	if e.PeerID != "peer-9" {
		t.Errorf("expected peer-9, got %q", e.PeerID)
	}
	if string(e.Detail) != `{"winner":"remote"}` {
		t.Errorf("detail did not round-trip: %s", e.Detail)
	}
}

func TestRecentEmptyJournal(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.Recent(5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}

	if entries, _ = j.Recent(0); entries != nil {
		t.Errorf("Recent(0) should return nil, got %v", entries)
	}
}

func TestJournalPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := j.Append(KindLocalWrite, "peer-1", nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer j2.Close()

	if err := j2.Append(KindReassert, "peer-1", nil); err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}

	entries, err := j2.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries across reopen, got %d", len(entries))
	}
	if entries[0].Seq != 2 || entries[0].Kind != KindReassert {
		t.Errorf("sequence did not continue across reopen: %+v", entries[0])
	}
	if entries[1].Seq != 1 || entries[1].Kind != KindLocalWrite {
		t.Errorf("first entry lost across reopen: %+v", entries[1])
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync", DefaultFileName)

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	if j.Path() != path {
		t.Errorf("Path() = %q, want %q", j.Path(), path)
	}
	if err := j.Append(KindPeersReaped, "peer-1", json.RawMessage(`{"count":2}`)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := j.Append(KindLocalWrite, "peer-1", nil); err == nil {
		t.Error("expected Append on a closed journal to fail")
	}
}
