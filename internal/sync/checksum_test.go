package sync

import (
	"testing"
	"time"

	"github.com/klauern/memsync/internal/model"
)

var testBase = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// makeEntry builds a session-tier fact entry for tests.
func makeEntry(id, content string, importance float64) model.MemoryEntry {
	return model.MemoryEntry{
		ID:         id,
		Tier:       model.TierSession,
		Type:       model.TypeFact,
		Content:    content,
		Importance: importance,
		CreatedAt:  testBase,
	}
}

func touchedAt(e model.MemoryEntry, at time.Time) model.MemoryEntry {
	e.AccessedAt = at
	return e
}

func TestCalculator_EntryChecksum_Deterministic(t *testing.T) {
	calc := NewCalculator()
	e := makeEntry("e1", "remember this", 5)

	first := calc.EntryChecksum(e)
	second := calc.EntryChecksum(e)

	if first == "" {
		t.Fatal("expected non-empty checksum")
	}
	if first != second {
		t.Errorf("checksum not deterministic: %s != %s", first, second)
	}
	if calc.CacheSize() != 1 {
		t.Errorf("expected 1 cached checksum, got %d", calc.CacheSize())
	}
}

func TestCalculator_EntryChecksum_SensitiveToContent(t *testing.T) {
	calc := NewCalculator()
	a := makeEntry("e1", "original", 5)
	b := touchedAt(makeEntry("e1", "changed", 5), testBase.Add(time.Minute))

	if calc.EntryChecksum(a) == calc.EntryChecksum(b) {
		t.Error("expected different checksums for different content")
	}
}

func TestCalculator_EntryChecksum_IgnoresMetadata(t *testing.T) {
	calc := NewCalculator()
	a := makeEntry("e1", "same", 5)
	b := makeEntry("e2", "same", 5)
	b.ID = a.ID
	b.Metadata = model.Metadata{Tags: []string{"pinned"}}

	if calc.EntryChecksum(a) != calc.EntryChecksum(b) {
		t.Error("expected metadata to be excluded from the checksum")
	}
}

func TestCalculator_StateChecksum_OrderIndependent(t *testing.T) {
	calc := NewCalculator()
	a := makeEntry("a", "first", 1)
	b := makeEntry("b", "second", 2)
	c := makeEntry("c", "third", 3)

	forward := calc.StateChecksum([]model.MemoryEntry{a, b, c})
	reversed := calc.StateChecksum([]model.MemoryEntry{c, b, a})

	if forward != reversed {
		t.Errorf("state checksum depends on input order: %s != %s", forward, reversed)
	}
}

func TestCalculator_StateChecksum_SensitiveToEntrySet(t *testing.T) {
	calc := NewCalculator()
	a := makeEntry("a", "first", 1)
	b := makeEntry("b", "second", 2)

	with := calc.StateChecksum([]model.MemoryEntry{a, b})
	without := calc.StateChecksum([]model.MemoryEntry{a})

	if with == without {
		t.Error("expected different state checksums for different entry sets")
	}
}

func TestCalculator_EntriesEqual(t *testing.T) {
	calc := NewCalculator()

	tests := []struct {
		name  string
		a     model.MemoryEntry
		b     model.MemoryEntry
		equal bool
	}{
		{
			name:  "identical entries",
			a:     makeEntry("e1", "content", 5),
			b:     makeEntry("e1", "content", 5),
			equal: true,
		},
		{
			name:  "different content",
			a:     makeEntry("e1", "content", 5),
			b:     makeEntry("e1", "other", 5),
			equal: false,
		},
		{
			name:  "different importance",
			a:     makeEntry("e1", "content", 5),
			b:     makeEntry("e1", "content", 6),
			equal: false,
		},
		{
			name: "metadata only difference is equal",
			a:    makeEntry("e1", "content", 5),
			b: func() model.MemoryEntry {
				e := makeEntry("e1", "content", 5)
				e.Metadata = model.Metadata{Tags: []string{"x"}}
				return e
			}(),
			equal: true,
		},
		{
			name: "different tier",
			a:    makeEntry("e1", "content", 5),
			b: func() model.MemoryEntry {
				e := makeEntry("e1", "content", 5)
				e.Tier = model.TierArchival
				return e
			}(),
			equal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calc.EntriesEqual(tt.a, tt.b); got != tt.equal {
				t.Errorf("EntriesEqual() = %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestCalculator_CacheInvalidation(t *testing.T) {
	calc := NewCalculator()
	e := makeEntry("e1", "original", 5)

	before := calc.EntryChecksum(e)

	// A changed last-touched time invalidates the cached digest.
	updated := touchedAt(e, testBase.Add(time.Hour))
	updated.Content = "changed"
	after := calc.EntryChecksum(updated)

	if before == after {
		t.Error("expected checksum to change after entry was touched")
	}

	calc.ClearCache()
	if calc.CacheSize() != 0 {
		t.Errorf("expected empty cache after clear, got %d", calc.CacheSize())
	}
}

func TestCalculator_NewState(t *testing.T) {
	calc := NewCalculator()
	entries := []model.MemoryEntry{
		makeEntry("a", "first", 1),
		makeEntry("b", "second", 2),
	}

	state := calc.NewState(entries, model.TierSession)

	if state.Size() != 2 {
		t.Errorf("expected 2 entries, got %d", state.Size())
	}
	if state.Checksum != calc.StateChecksum(entries) {
		t.Error("state checksum does not match StateChecksum")
	}
	if state.Tier != model.TierSession {
		t.Errorf("expected session tier, got %s", state.Tier)
	}
	if state.Timestamp.IsZero() {
		t.Error("expected non-zero snapshot timestamp")
	}
}
