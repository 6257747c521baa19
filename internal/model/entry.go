// Package model defines the memory entry and state types shared across memsync.
package model

import (
	"slices"
	"time"
)

// Metadata holds open key/value annotations on an entry. Tags is reserved
// and explicitly typed because merge resolution takes the set union of both
// sides' tags.
type Metadata struct {
	Tags   []string          `json:"tags,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	out := Metadata{}
	if m.Tags != nil {
		out.Tags = slices.Clone(m.Tags)
	}
	if m.Fields != nil {
		out.Fields = make(map[string]string, len(m.Fields))
		for k, v := range m.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Equal reports whether two metadata values carry the same tags and fields.
func (m Metadata) Equal(other Metadata) bool {
	if !slices.Equal(m.Tags, other.Tags) {
		return false
	}
	if len(m.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range m.Fields {
		if ov, ok := other.Fields[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// HasTag returns true if the tag is present.
func (m Metadata) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// MemoryEntry is a single unit of remembered information. Entries are value
// objects: the sync engine never mutates one in place, resolution produces
// new entry values.
type MemoryEntry struct {
	ID         string    `json:"id"`
	Tier       Tier      `json:"tier"`
	Type       EntryType `json:"type"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	// AccessedAt is the last-touched time. Zero means never accessed
	// after creation.
	AccessedAt time.Time `json:"accessed_at,omitempty"`
}

// LastTouched returns the recency timestamp used for conflict resolution:
// AccessedAt when set, otherwise CreatedAt.
func (e MemoryEntry) LastTouched() time.Time {
	if !e.AccessedAt.IsZero() {
		return e.AccessedAt
	}
	return e.CreatedAt
}

// Clone returns a deep copy of the entry.
func (e MemoryEntry) Clone() MemoryEntry {
	out := e
	out.Metadata = e.Metadata.Clone()
	return out
}

// EntriesByID builds an id-keyed map from a slice of entries. Later
// duplicates win, matching last-writer semantics for caller-supplied input.
func EntriesByID(entries []MemoryEntry) map[string]MemoryEntry {
	m := make(map[string]MemoryEntry, len(entries))
	for _, e := range entries {
		m[e.ID] = e
	}
	return m
}
