package model

import (
	"sort"
	"time"
)

// MemoryState is an immutable-by-convention snapshot of a set of entries.
// Checksum is a deterministic digest over the entry set, reproducible
// regardless of insertion order. Tier optionally scopes the snapshot; empty
// means all tiers.
type MemoryState struct {
	Entries   map[string]MemoryEntry `json:"entries"`
	Checksum  string                 `json:"checksum"`
	Timestamp time.Time              `json:"timestamp"`
	Tier      Tier                   `json:"tier,omitempty"`
}

// EmptyState returns a snapshot with no entries, used as the baseline for a
// first sync.
func EmptyState() *MemoryState {
	return &MemoryState{
		Entries:   make(map[string]MemoryEntry),
		Timestamp: time.Now(),
	}
}

// Size returns the number of entries in the snapshot.
func (s *MemoryState) Size() int {
	return len(s.Entries)
}

// IDs returns the entry ids in sorted order.
func (s *MemoryState) IDs() []string {
	ids := make([]string, 0, len(s.Entries))
	for id := range s.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EntryList returns the entries ordered by id.
func (s *MemoryState) EntryList() []MemoryEntry {
	entries := make([]MemoryEntry, 0, len(s.Entries))
	for _, id := range s.IDs() {
		entries = append(entries, s.Entries[id])
	}
	return entries
}
