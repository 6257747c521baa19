package sync

import (
	"sort"

	"github.com/klauern/memsync/internal/logging"
	"github.com/klauern/memsync/internal/model"
)

// ChangeType classifies what changed on a modified entry.
type ChangeType string

const (
	// ChangeContent indicates only the content changed.
	ChangeContent ChangeType = "content"

	// ChangeImportance indicates only the importance changed.
	ChangeImportance ChangeType = "importance"

	// ChangeMetadata indicates only the metadata changed.
	ChangeMetadata ChangeType = "metadata"

	// ChangeMultiple indicates more than one attribute changed.
	ChangeMultiple ChangeType = "multiple"
)

// ModifiedEntry pairs the current version of a changed entry with the
// previous version it replaced and a classification of the change.
type ModifiedEntry struct {
	Entry    model.MemoryEntry `json:"entry"`
	Previous model.MemoryEntry `json:"previous"`
	Change   ChangeType        `json:"change"`
}

// Diff is the set-difference between two memory state snapshots. The three
// buckets partition the union of current and previous ids with no overlap.
type Diff struct {
	// Added holds entries present in current but absent from previous.
	Added []model.MemoryEntry `json:"added"`

	// Modified holds entries present in both but unequal.
	Modified []ModifiedEntry `json:"modified"`

	// Deleted holds ids present in previous but absent from current.
	Deleted []string `json:"deleted"`

	// Unchanged counts entries present and equal in both snapshots.
	Unchanged int `json:"unchanged"`

	// TotalChanges is len(Added) + len(Modified) + len(Deleted).
	TotalChanges int `json:"total_changes"`

	// TransferSize estimates the bytes needed to apply the diff.
	TransferSize int64 `json:"transfer_size"`

	// Tier is the scope the diff was computed for, empty for all tiers.
	Tier model.Tier `json:"tier,omitempty"`
}

// deletedIDOverhead approximates the wire cost of propagating a deletion.
const deletedIDOverhead = 64

// Diff computes the set-difference between current and previous entry maps.
// Both inputs may be empty; the result is then an empty diff. Iteration is
// over sorted ids so the bucket ordering is deterministic.
func (c *Calculator) Diff(current, previous map[string]model.MemoryEntry, tier model.Tier) *Diff {
	defer logging.Timer("calculate_diff")()

	d := &Diff{
		Added:    make([]model.MemoryEntry, 0),
		Modified: make([]ModifiedEntry, 0),
		Deleted:  make([]string, 0),
		Tier:     tier,
	}

	currentIDs := sortedIDs(current)
	for _, id := range currentIDs {
		cur := current[id]
		prev, exists := previous[id]
		switch {
		case !exists:
			d.Added = append(d.Added, cur)
			d.TransferSize += entrySize(cur)
		case !c.EntriesEqual(cur, prev):
			d.Modified = append(d.Modified, ModifiedEntry{
				Entry:    cur,
				Previous: prev,
				Change:   classifyChange(cur, prev),
			})
			d.TransferSize += entrySize(cur)
		default:
			d.Unchanged++
		}
	}

	for _, id := range sortedIDs(previous) {
		if _, exists := current[id]; !exists {
			d.Deleted = append(d.Deleted, id)
			d.TransferSize += deletedIDOverhead
		}
	}

	d.TotalChanges = len(d.Added) + len(d.Modified) + len(d.Deleted)

	logging.Debug("diff calculated",
		logging.Operation("calculate_diff"),
		logging.Count(d.TotalChanges),
	)

	return d
}

// HasChanges is an O(1) fast path comparing snapshot checksums and sizes
// only. It must not substitute for Diff when the exact change set is
// required.
func (c *Calculator) HasChanges(current, previous *model.MemoryState) bool {
	if current == nil || previous == nil {
		return true
	}
	return current.Checksum != previous.Checksum || current.Size() != previous.Size()
}

// ChangedIDs returns the union of added, modified and deleted ids, each id
// appearing once, in sorted order.
func (d *Diff) ChangedIDs() []string {
	seen := make(map[string]struct{}, d.TotalChanges)
	ids := make([]string, 0, d.TotalChanges)

	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	for _, e := range d.Added {
		add(e.ID)
	}
	for _, m := range d.Modified {
		add(m.Entry.ID)
	}
	for _, id := range d.Deleted {
		add(id)
	}

	sort.Strings(ids)
	return ids
}

// Empty returns true if the diff contains no changes.
func (d *Diff) Empty() bool {
	return d.TotalChanges == 0
}

// classifyChange distinguishes content-only, importance-only, metadata-only
// and multi-attribute changes between two versions of an entry.
func classifyChange(cur, prev model.MemoryEntry) ChangeType {
	changed := make([]ChangeType, 0, 3)
	if cur.Content != prev.Content {
		changed = append(changed, ChangeContent)
	}
	if cur.Importance != prev.Importance {
		changed = append(changed, ChangeImportance)
	}
	if !cur.Metadata.Equal(prev.Metadata) {
		changed = append(changed, ChangeMetadata)
	}

	switch len(changed) {
	case 0:
		// Tier or type moved; no single-attribute bucket fits.
		return ChangeMultiple
	case 1:
		return changed[0]
	default:
		return ChangeMultiple
	}
}

func sortedIDs(entries map[string]model.MemoryEntry) []string {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func entrySize(e model.MemoryEntry) int64 {
	size := int64(len(e.ID) + len(e.Content))
	for _, tag := range e.Metadata.Tags {
		size += int64(len(tag))
	}
	for k, v := range e.Metadata.Fields {
		size += int64(len(k) + len(v))
	}
	// Fixed overhead for timestamps, importance, tier and type.
	return size + 48
}
