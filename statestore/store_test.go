package statestore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dirstate/dirstate/internal/fsatomic"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), DefaultFileName))
}

func sampleState() *SharedState {
	return &SharedState{
		Version:        3,
		LastModified:   1700000000000,
		LastModifiedBy: "peer-a",
		Payload:        json.RawMessage(`{"mode":"manual","url":"http://p1:8080"}`),
	}
}

func TestStore_WriteRead_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	want := sampleState()
	if err := store.Write(want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := store.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if got.Version != want.Version {
		t.Errorf("Version = %d, want %d", got.Version, want.Version)
	}
	if got.LastModified != want.LastModified {
		t.Errorf("LastModified = %d, want %d", got.LastModified, want.LastModified)
	}
	if got.LastModifiedBy != want.LastModifiedBy {
		t.Errorf("LastModifiedBy = %q, want %q", got.LastModifiedBy, want.LastModifiedBy)
	}

	var payload map[string]string
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload did not round-trip as JSON: %v", err)
	}
	if payload["mode"] != "manual" || payload["url"] != "http://p1:8080" {
		t.Errorf("payload = %v", payload)
	}
}

func TestStore_RoundTripDiagnostic(t *testing.T) {
	store := newTestStore(t)

	st := sampleState()
	st.Diagnostic = json.RawMessage(`{"note":"trace"}`)
	if err := store.Write(st); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := store.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var diag map[string]string
	if err := json.Unmarshal(got.Diagnostic, &diag); err != nil {
		t.Fatalf("diagnostic did not round-trip: %v", err)
	}
	if diag["note"] != "trace" {
		t.Errorf("diagnostic = %v", diag)
	}
}

func TestStore_DiagnosticOmittedWhenEmpty(t *testing.T) {
	store := newTestStore(t)

	if err := store.Write(sampleState()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	raw, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.Contains(string(raw), "diagnostic") {
		t.Error("empty diagnostic should be omitted from the record")
	}
}

func TestStore_Read_Missing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Read(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read on missing file = %v, want ErrNotFound", err)
	}
}

func TestStore_Read_CorruptionReadsAsMissing(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"whitespace only", "  \n\t"},
		{"not JSON", "!!! not json at all"},
		{"truncated JSON", `{"version":1,"lastModified":170`},
		{"wrong shape", `[1,2,3]`},
		{"missing stamp fields", `{"version":1,"payload":{}}`},
		{"missing version", `{"lastModified":1700000000000,"lastModifiedBy":"peer-a","payload":{"mode":"manual"}}`},
		{"missing payload", `{"version":1,"lastModified":1700000000000,"lastModifiedBy":"peer-a"}`},
		{"stamps only", `{"lastModified":1700000000000,"lastModifiedBy":"peer-a"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, DefaultFileName)
			if err := os.WriteFile(path, []byte(tc.content), 0644); err != nil {
				t.Fatalf("setup failed: %v", err)
			}

			store := New(path)
			if _, err := store.Read(); !errors.Is(err, ErrNotFound) {
				t.Errorf("Read = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_WriteHealsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	store := New(path)
	if _, err := store.Read(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read = %v, want ErrNotFound before heal", err)
	}

	if err := store.Write(sampleState()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := store.Read(); err != nil {
		t.Errorf("Read after healing write failed: %v", err)
	}
}

func TestStore_Validator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)

	store := New(path, WithValidator(func(st *SharedState) error {
		var payload struct {
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal(st.Payload, &payload); err != nil {
			return err
		}
		if payload.Mode == "" {
			return errors.New("payload missing mode")
		}
		return nil
	}))

	good := sampleState()
	if err := store.Write(good); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := store.Read(); err != nil {
		t.Fatalf("Read of valid record failed: %v", err)
	}

	bad := sampleState()
	bad.Payload = json.RawMessage(`{"other":"field"}`)
	if err := store.Write(bad); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := store.Read(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read of rejected record = %v, want ErrNotFound", err)
	}
}

func TestStore_Recover(t *testing.T) {
	t.Run("removes corrupt record", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, DefaultFileName)
		if err := os.WriteFile(path, []byte("corrupt"), 0644); err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		store := New(path)
		cleaned, err := store.Recover()
		if err != nil {
			t.Fatalf("Recover failed: %v", err)
		}
		if !cleaned {
			t.Error("Recover should report the corrupt record as cleaned")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("expected corrupt record to be deleted")
		}

		if err := store.Write(sampleState()); err != nil {
			t.Fatalf("Write after Recover failed: %v", err)
		}
		if _, err := store.Read(); err != nil {
			t.Errorf("Read after Recover + Write failed: %v", err)
		}
	})

	t.Run("keeps valid record", func(t *testing.T) {
		store := newTestStore(t)
		if err := store.Write(sampleState()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		cleaned, err := store.Recover()
		if err != nil {
			t.Fatalf("Recover failed: %v", err)
		}
		if cleaned {
			t.Error("Recover reported cleanup for a valid record")
		}
		if _, err := store.Read(); err != nil {
			t.Errorf("valid record should survive Recover: %v", err)
		}
	})

	t.Run("removes validator-rejected record", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, DefaultFileName)
		store := New(path, WithValidator(func(st *SharedState) error {
			if !strings.Contains(string(st.Payload), "mode") {
				return errors.New("payload missing mode")
			}
			return nil
		}))

		bad := sampleState()
		bad.Payload = json.RawMessage(`{"other":"field"}`)
		if err := store.Write(bad); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		cleaned, err := store.Recover()
		if err != nil {
			t.Fatalf("Recover failed: %v", err)
		}
		if !cleaned {
			t.Error("Recover should remove a record the validator rejects")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("expected rejected record to be deleted")
		}
	})

	t.Run("sweeps old orphan temps", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, DefaultFileName)
		store := New(path)

		orphan := filepath.Join(dir, fsatomic.TempPrefix(path)+"999")
		if err := os.WriteFile(orphan, []byte("partial"), 0644); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		old := time.Now().Add(-2 * time.Minute)
		if err := os.Chtimes(orphan, old, old); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}

		cleaned, err := store.Recover()
		if err != nil {
			t.Fatalf("Recover failed: %v", err)
		}
		if !cleaned {
			t.Error("Recover should report the swept orphan")
		}
		if _, err := os.Stat(orphan); !os.IsNotExist(err) {
			t.Error("expected orphan temp to be swept")
		}
	})

	t.Run("no-op on missing file", func(t *testing.T) {
		cleaned, err := newTestStore(t).Recover()
		if err != nil {
			t.Errorf("Recover on missing file failed: %v", err)
		}
		if cleaned {
			t.Error("Recover reported cleanup with nothing present")
		}
	})
}

func TestStore_Exists(t *testing.T) {
	store := newTestStore(t)

	if store.Exists() {
		t.Error("Exists() = true before any write")
	}
	if err := store.Write(sampleState()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !store.Exists() {
		t.Error("Exists() = false after write")
	}

	if err := os.WriteFile(store.Path(), nil, 0644); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	if store.Exists() {
		t.Error("Exists() = true for a zero-byte file")
	}
}

func TestStore_WriteCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync", DefaultFileName)

	store := New(path)
	if err := store.Write(sampleState()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := store.Read(); err != nil {
		t.Errorf("Read failed: %v", err)
	}
}

func TestStore_LastRenameWins(t *testing.T) {
	store := newTestStore(t)

	first := sampleState()
	second := sampleState()
	second.Version = 4
	second.LastModified = first.LastModified + 50
	second.Payload = json.RawMessage(`{"mode":"auto"}`)

	if err := store.Write(first); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if err := store.Write(second); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	got, err := store.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Version != 4 {
		t.Errorf("Version = %d, want 4", got.Version)
	}
}
