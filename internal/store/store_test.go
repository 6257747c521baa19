package store

import (
	"os"
	"testing"

	"github.com/klauern/memsync/internal/model"
)

func testState() *model.MemoryState {
	return &model.MemoryState{
		Entries: map[string]model.MemoryEntry{
			"e1": {ID: "e1", Tier: model.TierSession, Type: model.TypeFact, Content: "hello", Importance: 5},
		},
		Checksum: "abc123",
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Save("conv-1", "sess-1", testState()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, ok, err := s.Load("conv-1", "sess-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatal("expected a persisted baseline")
	}
	if loaded.Checksum != "abc123" || loaded.Size() != 1 {
		t.Errorf("unexpected loaded state: %+v", loaded)
	}
	if loaded.Entries["e1"].Content != "hello" {
		t.Errorf("entry content = %q, want hello", loaded.Entries["e1"].Content)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, ok, err := s.Load("conv-1", "sess-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Error("expected no baseline for an unknown identity")
	}
}

func TestStore_CorruptedSnapshotTreatedAsAbsent(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := os.WriteFile(s.Path("conv-1", "sess-1"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to corrupt snapshot: %v", err)
	}

	_, ok, err := s.Load("conv-1", "sess-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Error("corrupted snapshot should be treated as absent")
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Save("conv-1", "sess-1", testState()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	updated := testState()
	updated.Checksum = "def456"
	if err := s.Save("conv-1", "sess-1", updated); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, ok, err := s.Load("conv-1", "sess-1")
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if loaded.Checksum != "def456" {
		t.Errorf("checksum = %s, want the overwritten value", loaded.Checksum)
	}
}

func TestStore_Clear(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Save("conv-1", "sess-1", testState()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Clear("conv-1", "sess-1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok, _ := s.Load("conv-1", "sess-1"); ok {
		t.Error("expected baseline removed")
	}

	// Clearing a missing baseline is not an error.
	if err := s.Clear("conv-1", "sess-1"); err != nil {
		t.Errorf("Clear() on missing baseline error = %v", err)
	}
}
