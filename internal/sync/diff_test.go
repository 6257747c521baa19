package sync

import (
	"slices"
	"testing"

	"github.com/klauern/memsync/internal/model"
)

func TestCalculator_Diff_Partition(t *testing.T) {
	calc := NewCalculator()

	unchanged := makeEntry("keep", "stays the same", 5)
	modified := makeEntry("edit", "old content", 5)
	modifiedNew := makeEntry("edit", "new content", 5)
	added := makeEntry("new", "brand new", 3)
	removed := makeEntry("gone", "to be deleted", 1)

	previous := model.EntriesByID([]model.MemoryEntry{unchanged, modified, removed})
	current := model.EntriesByID([]model.MemoryEntry{unchanged, modifiedNew, added})

	d := calc.Diff(current, previous, "")

	if len(d.Added) != 1 || d.Added[0].ID != "new" {
		t.Errorf("expected added [new], got %v", d.Added)
	}
	if len(d.Modified) != 1 || d.Modified[0].Entry.ID != "edit" {
		t.Errorf("expected modified [edit], got %v", d.Modified)
	}
	if len(d.Deleted) != 1 || d.Deleted[0] != "gone" {
		t.Errorf("expected deleted [gone], got %v", d.Deleted)
	}
	if d.Unchanged != 1 {
		t.Errorf("expected 1 unchanged, got %d", d.Unchanged)
	}
	if d.TotalChanges != 3 {
		t.Errorf("expected 3 total changes, got %d", d.TotalChanges)
	}
	if d.TransferSize <= 0 {
		t.Error("expected positive transfer size estimate")
	}

	// Modified entries carry the previous version.
	if d.Modified[0].Previous.Content != "old content" {
		t.Errorf("expected previous content preserved, got %q", d.Modified[0].Previous.Content)
	}
}

func TestCalculator_Diff_Idempotent(t *testing.T) {
	calc := NewCalculator()
	entries := model.EntriesByID([]model.MemoryEntry{
		makeEntry("a", "first", 1),
		makeEntry("b", "second", 2),
	})

	d := calc.Diff(entries, entries, "")

	if !d.Empty() {
		t.Errorf("diffing a state against itself should be empty, got %d changes", d.TotalChanges)
	}
	if d.Unchanged != 2 {
		t.Errorf("expected 2 unchanged, got %d", d.Unchanged)
	}
}

func TestCalculator_Diff_EmptyInputs(t *testing.T) {
	calc := NewCalculator()

	d := calc.Diff(nil, nil, "")
	if !d.Empty() {
		t.Error("diff of two empty states should be empty")
	}

	onlyCurrent := calc.Diff(model.EntriesByID([]model.MemoryEntry{makeEntry("a", "x", 1)}), nil, "")
	if len(onlyCurrent.Added) != 1 {
		t.Errorf("expected everything added against empty previous, got %d", len(onlyCurrent.Added))
	}

	onlyPrevious := calc.Diff(nil, model.EntriesByID([]model.MemoryEntry{makeEntry("a", "x", 1)}), "")
	if len(onlyPrevious.Deleted) != 1 {
		t.Errorf("expected everything deleted against empty current, got %d", len(onlyPrevious.Deleted))
	}
}

func TestCalculator_Diff_MetadataOnlyIsUnchanged(t *testing.T) {
	calc := NewCalculator()

	before := makeEntry("e1", "content", 5)
	after := makeEntry("e1", "content", 5)
	after.Metadata = model.Metadata{Tags: []string{"pinned"}}

	d := calc.Diff(
		model.EntriesByID([]model.MemoryEntry{after}),
		model.EntriesByID([]model.MemoryEntry{before}),
		"",
	)

	if !d.Empty() {
		t.Errorf("metadata-only change should not count as modified, got %d changes", d.TotalChanges)
	}
	if d.Unchanged != 1 {
		t.Errorf("expected 1 unchanged, got %d", d.Unchanged)
	}
}

func TestClassifyChange(t *testing.T) {
	base := makeEntry("e1", "content", 5)

	tests := []struct {
		name   string
		mutate func(model.MemoryEntry) model.MemoryEntry
		want   ChangeType
	}{
		{
			name: "content only",
			mutate: func(e model.MemoryEntry) model.MemoryEntry {
				e.Content = "different"
				return e
			},
			want: ChangeContent,
		},
		{
			name: "importance only",
			mutate: func(e model.MemoryEntry) model.MemoryEntry {
				e.Importance = 9
				return e
			},
			want: ChangeImportance,
		},
		{
			name: "metadata only",
			mutate: func(e model.MemoryEntry) model.MemoryEntry {
				e.Metadata = model.Metadata{Tags: []string{"x"}}
				return e
			},
			want: ChangeMetadata,
		},
		{
			name: "content and importance",
			mutate: func(e model.MemoryEntry) model.MemoryEntry {
				e.Content = "different"
				e.Importance = 9
				return e
			},
			want: ChangeMultiple,
		},
		{
			name: "tier move only",
			mutate: func(e model.MemoryEntry) model.MemoryEntry {
				e.Tier = model.TierArchival
				return e
			},
			want: ChangeMultiple,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyChange(tt.mutate(base), base); got != tt.want {
				t.Errorf("classifyChange() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCalculator_HasChanges(t *testing.T) {
	calc := NewCalculator()
	entries := []model.MemoryEntry{makeEntry("a", "first", 1)}

	same := calc.NewState(entries, "")
	alsoSame := calc.NewState(entries, "")
	different := calc.NewState([]model.MemoryEntry{makeEntry("a", "edited", 1)}, "")

	if calc.HasChanges(same, alsoSame) {
		t.Error("identical states should report no changes")
	}
	if !calc.HasChanges(same, different) {
		t.Error("different states should report changes")
	}
	if !calc.HasChanges(nil, same) {
		t.Error("nil state should report changes")
	}
}

func TestDiff_ChangedIDs(t *testing.T) {
	calc := NewCalculator()

	previous := model.EntriesByID([]model.MemoryEntry{
		makeEntry("b-edit", "old", 1),
		makeEntry("c-gone", "bye", 1),
	})
	current := model.EntriesByID([]model.MemoryEntry{
		makeEntry("b-edit", "new", 1),
		makeEntry("a-new", "hi", 1),
	})

	d := calc.Diff(current, previous, "")

	got := d.ChangedIDs()
	want := []string{"a-new", "b-edit", "c-gone"}
	if !slices.Equal(got, want) {
		t.Errorf("ChangedIDs() = %v, want %v", got, want)
	}
}
