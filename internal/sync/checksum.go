package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	stdsync "sync"
	"time"

	"github.com/klauern/memsync/internal/model"
)

// Calculator computes content-addressed checksums and diffs between memory
// state snapshots. Entry checksums are cached keyed by (id, last-touched
// time) so repeated calls on an unchanged entry are O(1); a changed
// AccessedAt or CreatedAt invalidates the cached digest.
type Calculator struct {
	mu    stdsync.Mutex
	cache map[string]checksumCacheEntry
}

type checksumCacheEntry struct {
	touched time.Time
	sum     string
}

// NewCalculator creates a calculator with an empty checksum cache.
func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[string]checksumCacheEntry),
	}
}

// EntryChecksum returns a deterministic digest over the entry's content,
// importance, tier and type. Metadata is intentionally excluded, matching
// the equality rule used for diffing.
func (c *Calculator) EntryChecksum(e model.MemoryEntry) string {
	touched := e.LastTouched()

	c.mu.Lock()
	if cached, ok := c.cache[e.ID]; ok && cached.touched.Equal(touched) {
		c.mu.Unlock()
		return cached.sum
	}
	c.mu.Unlock()

	var b strings.Builder
	b.WriteString(e.Content)
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(e.Importance, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(string(e.Tier))
	b.WriteByte('|')
	b.WriteString(string(e.Type))

	digest := sha256.Sum256([]byte(b.String()))
	sum := hex.EncodeToString(digest[:])

	c.mu.Lock()
	c.cache[e.ID] = checksumCacheEntry{touched: touched, sum: sum}
	c.mu.Unlock()

	return sum
}

// StateChecksum returns a deterministic digest over the whole entry set.
// Entry ids are sorted first, so the result does not depend on input order.
func (c *Calculator) StateChecksum(entries []model.MemoryEntry) string {
	sums := make(map[string]string, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := sums[e.ID]; !ok {
			ids = append(ids, e.ID)
		}
		sums[e.ID] = c.EntryChecksum(e)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte(':')
		b.WriteString(sums[id])
		b.WriteByte('\n')
	}

	digest := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(digest[:])
}

// EntriesEqual reports whether two entries are equal for diffing purposes:
// importance, tier, type and content all match. Metadata differences do not
// make entries unequal.
func (c *Calculator) EntriesEqual(a, b model.MemoryEntry) bool {
	return a.Importance == b.Importance &&
		a.Tier == b.Tier &&
		a.Type == b.Type &&
		a.Content == b.Content
}

// NewState builds a MemoryState snapshot for the given entries with a
// computed checksum. An empty tier means the snapshot is unscoped.
func (c *Calculator) NewState(entries []model.MemoryEntry, tier model.Tier) *model.MemoryState {
	return &model.MemoryState{
		Entries:   model.EntriesByID(entries),
		Checksum:  c.StateChecksum(entries),
		Timestamp: time.Now(),
		Tier:      tier,
	}
}

// CacheSize returns the number of cached entry checksums.
func (c *Calculator) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// ClearCache drops all cached entry checksums.
func (c *Calculator) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]checksumCacheEntry)
}
