package deflick

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := store.Load("abc"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v, want absent", ok, err)
	}

	cp := Checkpoint{Fingerprint: "abc", LastBatch: 3, Mode: "balanced", UpdatedAt: time.Now().UTC()}
	if err := store.Commit(cp); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.Load("abc")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected checkpoint after commit")
	}
	if got.LastBatch != 3 || got.Mode != "balanced" || got.Fingerprint != "abc" {
		t.Fatalf("unexpected checkpoint: %+v", got)
	}

	cp.LastBatch = 4
	if err := store.Commit(cp); err != nil {
		t.Fatal(err)
	}
	got, ok, _ = store.Load("abc")
	if !ok || got.LastBatch != 4 {
		t.Fatalf("expected updated checkpoint, got ok=%v %+v", ok, got)
	}
}

func TestFileStoreCorruptRecordTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a torn write: half a JSON document on disk.
	path := filepath.Join(dir, "abc.checkpoint.json")
	if err := os.WriteFile(path, []byte(`{"fingerprint":"abc","lastBa`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := store.Load("abc"); err != nil || ok {
		t.Fatalf("corrupt checkpoint: ok=%v err=%v, want treated as absent without error", ok, err)
	}
}

func TestFileStoreIgnoresForeignFingerprint(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Commit(Checkpoint{Fingerprint: "abc", LastBatch: 1}); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := store.Load("def"); ok {
		t.Fatal("checkpoint for a different fingerprint must not load")
	}
}

func TestFileStoreCommitLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Commit(Checkpoint{Fingerprint: "abc", LastBatch: 0}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "abc.checkpoint.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected directory contents: %v", names)
	}
}

func TestFileStoreClear(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Commit(Checkpoint{Fingerprint: "abc", LastBatch: 0}); err != nil {
		t.Fatal(err)
	}

	if err := store.Clear("abc"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Load("abc"); ok {
		t.Fatal("checkpoint should be gone after Clear")
	}

	// Clearing an absent checkpoint is not an error.
	if err := store.Clear("abc"); err != nil {
		t.Fatal(err)
	}
}
