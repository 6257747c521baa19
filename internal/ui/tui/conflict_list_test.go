package tui

import (
	"testing"

	"github.com/klauern/memsync/internal/model"
	"github.com/klauern/memsync/internal/sync"
)

func makeConflicts() []*sync.Conflict {
	return []*sync.Conflict{
		{
			ID:     "e1",
			Local:  model.MemoryEntry{ID: "e1", Tier: model.TierSession, Content: "local one"},
			Remote: model.MemoryEntry{ID: "e1", Tier: model.TierSession, Content: "remote one"},
			Diff:   sync.ConflictDiff{ContentChanged: true},
		},
		{
			ID:     "e2",
			Local:  model.MemoryEntry{ID: "e2", Tier: model.TierArchival, Content: "local two", Importance: 3},
			Remote: model.MemoryEntry{ID: "e2", Tier: model.TierArchival, Content: "local two", Importance: 8},
			Diff:   sync.ConflictDiff{ImportanceChanged: true},
		},
	}
}

func TestConflictListModel_ResolveTracking(t *testing.T) {
	m := NewConflictListModel(makeConflicts())

	if m.allResolved() {
		t.Error("nothing resolved yet")
	}

	m.resolveConflictAt(0, sync.StrategyPreferLocal)
	if m.allResolved() {
		t.Error("only one of two conflicts resolved")
	}

	m.resolveConflictAt(1, resolutionSkip)
	if !m.allResolved() {
		t.Error("expected all conflicts handled")
	}

	// Out-of-range indices are ignored.
	m.resolveConflictAt(5, sync.StrategyMerge)
	m.resolveConflictAt(-1, sync.StrategyMerge)
	if len(m.resolutions) != 2 {
		t.Errorf("expected 2 recorded resolutions, got %d", len(m.resolutions))
	}
}

func TestConflictListModel_BuildResolutionsDropsSkipped(t *testing.T) {
	m := NewConflictListModel(makeConflicts())
	m.resolveConflictAt(0, sync.StrategyMerge)
	m.resolveConflictAt(1, resolutionSkip)

	resolutions := m.buildResolutions()

	if len(resolutions) != 1 {
		t.Fatalf("expected 1 resolution, got %d", len(resolutions))
	}
	if resolutions[0].ID != "e1" || resolutions[0].Strategy != sync.StrategyMerge {
		t.Errorf("unexpected resolution: %+v", resolutions[0])
	}
}

func TestConflictListModel_EmptyListNeverAllResolved(t *testing.T) {
	m := NewConflictListModel(nil)
	if m.allResolved() {
		t.Error("an empty conflict list must not count as resolved")
	}
}

func TestBuildConflictRow(t *testing.T) {
	c := makeConflicts()[0]

	unresolved := buildConflictRow(c, "")
	if unresolved[0] != "○" || unresolved[4] != "-" {
		t.Errorf("unexpected unresolved row: %v", unresolved)
	}

	resolved := buildConflictRow(c, "merge")
	if resolved[0] != "✓" || resolved[4] != "merge" {
		t.Errorf("unexpected resolved row: %v", resolved)
	}
	if resolved[3] != "content" {
		t.Errorf("changes column = %q, want content", resolved[3])
	}
}
