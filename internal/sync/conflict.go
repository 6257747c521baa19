package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/klauern/memsync/internal/logging"
	"github.com/klauern/memsync/internal/model"
)

// ResolutionStrategy defines how a conflicting entry pair is reconciled.
type ResolutionStrategy string

const (
	// StrategyLastWriteWins picks whichever side was touched more recently.
	StrategyLastWriteWins ResolutionStrategy = "last-write-wins"

	// StrategyFirstWriteWins picks the older side.
	StrategyFirstWriteWins ResolutionStrategy = "first-write-wins"

	// StrategyPreferLocal always keeps the local version.
	StrategyPreferLocal ResolutionStrategy = "prefer-local"

	// StrategyPreferRemote always keeps the remote version.
	StrategyPreferRemote ResolutionStrategy = "prefer-remote"

	// StrategyMerge combines both sides: newer side as base, max importance,
	// tag set union, local metadata fields winning on key collision.
	StrategyMerge ResolutionStrategy = "merge"

	// StrategyManual requires the caller to supply a resolved entry.
	StrategyManual ResolutionStrategy = "manual"
)

// IsValid returns true if the strategy is recognized.
func (s ResolutionStrategy) IsValid() bool {
	switch s {
	case StrategyLastWriteWins, StrategyFirstWriteWins, StrategyPreferLocal,
		StrategyPreferRemote, StrategyMerge, StrategyManual:
		return true
	default:
		return false
	}
}

// AllStrategies returns all supported resolution strategies.
func AllStrategies() []ResolutionStrategy {
	return []ResolutionStrategy{
		StrategyLastWriteWins, StrategyFirstWriteWins, StrategyPreferLocal,
		StrategyPreferRemote, StrategyMerge, StrategyManual,
	}
}

// String returns the string representation of the strategy.
func (s ResolutionStrategy) String() string {
	return string(s)
}

// Description returns a human-readable description of the strategy.
func (s ResolutionStrategy) Description() string {
	switch s {
	case StrategyLastWriteWins:
		return "Keep whichever side was touched most recently"
	case StrategyFirstWriteWins:
		return "Keep whichever side was touched first"
	case StrategyPreferLocal:
		return "Always keep the local version"
	case StrategyPreferRemote:
		return "Always keep the remote version"
	case StrategyMerge:
		return "Merge both sides (newer base, max importance, tag union)"
	case StrategyManual:
		return "Require an explicitly supplied resolved entry"
	default:
		return "Unknown strategy"
	}
}

// ErrManualResolutionRequired is returned when a targeted resolve is asked
// to apply the manual strategy; the caller must supply a resolved entry via
// ManualResolve instead.
var ErrManualResolutionRequired = errors.New("conflict requires manual resolution")

// ErrConflictNotFound is returned when the referenced conflict is not pending.
var ErrConflictNotFound = errors.New("conflict not found")

// ConflictDiff describes how the two sides of a conflict differ.
type ConflictDiff struct {
	ContentChanged    bool `json:"content_changed"`
	ImportanceChanged bool `json:"importance_changed"`
	MetadataChanged   bool `json:"metadata_changed"`

	// LocalNewer is true when the local side was touched more recently.
	LocalNewer bool `json:"local_newer"`

	// TimeDelta is local last-touched minus remote last-touched.
	TimeDelta time.Duration `json:"time_delta"`
}

// Conflict records an entry id present in both compared snapshots whose
// content or importance differ. Created by detection, consumed by
// resolution.
type Conflict struct {
	ID     string            `json:"id"`
	Local  model.MemoryEntry `json:"local"`
	Remote model.MemoryEntry `json:"remote"`
	Diff   ConflictDiff      `json:"diff"`

	DetectedAt time.Time `json:"detected_at"`

	// AutoResolvable is true when one side is decisively newer or the
	// difference does not touch content or importance.
	AutoResolvable bool `json:"auto_resolvable"`

	// SuggestedResolution is the strategy detection recommends.
	SuggestedResolution ResolutionStrategy `json:"suggested_resolution"`
}

// Summary returns a brief description of the conflict.
func (c *Conflict) Summary() string {
	var desc string
	switch {
	case c.Diff.ContentChanged && c.Diff.ImportanceChanged:
		desc = "content and importance differ"
	case c.Diff.ContentChanged:
		desc = "content differs"
	case c.Diff.ImportanceChanged:
		desc = "importance differs"
	default:
		desc = "metadata differs"
	}
	return fmt.Sprintf("%s: %s", c.ID, desc)
}

// Resolution records how a conflict was settled.
type Resolution struct {
	Conflict Conflict           `json:"conflict"`
	Strategy ResolutionStrategy `json:"strategy"`
	Resolved model.MemoryEntry  `json:"resolved"`

	// Auto is false only when the resolved entry was supplied by the caller.
	Auto bool `json:"auto"`

	ResolvedAt time.Time `json:"resolved_at"`
}

// ResolverOptions configures conflict detection and resolution.
type ResolverOptions struct {
	// DefaultStrategy applies when no override is given. Defaults to
	// last-write-wins.
	DefaultStrategy ResolutionStrategy

	// AutoResolveThreshold is the recency gap beyond which one side is
	// considered decisively newer. Defaults to one minute.
	AutoResolveThreshold time.Duration

	// HistoryLimit bounds the resolution history. Defaults to 100.
	HistoryLimit int
}

// DefaultResolverOptions returns the default resolver configuration.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		DefaultStrategy:      StrategyLastWriteWins,
		AutoResolveThreshold: time.Minute,
		HistoryLimit:         100,
	}
}

// Resolver detects conflicts between two id-keyed entry maps and resolves
// them via configurable strategies. It owns the pending-conflict set and a
// bounded, most-recent-first resolution history.
type Resolver struct {
	opts    ResolverOptions
	pending map[string]*Conflict
	history []Resolution

	autoResolved   int
	manualResolved int
	byStrategy     map[ResolutionStrategy]int
}

// NewResolver creates a resolver with the given options; zero values fall
// back to defaults.
func NewResolver(opts ResolverOptions) *Resolver {
	def := DefaultResolverOptions()
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = def.DefaultStrategy
	}
	if opts.AutoResolveThreshold <= 0 {
		opts.AutoResolveThreshold = def.AutoResolveThreshold
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = def.HistoryLimit
	}
	return &Resolver{
		opts:       opts,
		pending:    make(map[string]*Conflict),
		byStrategy: make(map[ResolutionStrategy]int),
	}
}

// EntriesConflict reports whether two versions of an entry genuinely
// conflict: true unless content and importance are both equal. Metadata
// differences alone do not constitute a conflict.
func (r *Resolver) EntriesConflict(local, remote model.MemoryEntry) bool {
	return local.Content != remote.Content || local.Importance != remote.Importance
}

// Detect finds conflicting ids present in both maps and registers them as
// pending. Local-only or remote-only ids are plain additions, never
// conflicts. Returns the newly detected conflicts in id order.
func (r *Resolver) Detect(local, remote map[string]model.MemoryEntry) []*Conflict {
	defer logging.Timer("detect_conflicts")()

	conflicts := make([]*Conflict, 0)
	for _, id := range sortedIDs(local) {
		localEntry := local[id]
		remoteEntry, exists := remote[id]
		if !exists || !r.EntriesConflict(localEntry, remoteEntry) {
			continue
		}

		c := r.buildConflict(localEntry, remoteEntry)
		r.pending[id] = c
		conflicts = append(conflicts, c)

		logging.Debug("conflict detected",
			logging.Entry(id),
			logging.Operation("detect_conflicts"),
			slog.Bool("auto_resolvable", c.AutoResolvable),
			logging.Strategy(string(c.SuggestedResolution)),
		)
	}

	return conflicts
}

// buildConflict constructs the conflict record for a differing entry pair.
func (r *Resolver) buildConflict(local, remote model.MemoryEntry) *Conflict {
	delta := local.LastTouched().Sub(remote.LastTouched())
	diff := ConflictDiff{
		ContentChanged:    local.Content != remote.Content,
		ImportanceChanged: local.Importance != remote.Importance,
		MetadataChanged:   !local.Metadata.Equal(remote.Metadata),
		LocalNewer:        delta > 0,
		TimeDelta:         delta,
	}

	c := &Conflict{
		ID:         local.ID,
		Local:      local,
		Remote:     remote,
		Diff:       diff,
		DetectedAt: time.Now(),
	}

	decisivelyNewer := delta > r.opts.AutoResolveThreshold || -delta > r.opts.AutoResolveThreshold
	switch {
	case decisivelyNewer, !diff.ContentChanged && !diff.ImportanceChanged:
		c.AutoResolvable = true
		if diff.LocalNewer {
			c.SuggestedResolution = StrategyPreferLocal
		} else {
			c.SuggestedResolution = StrategyPreferRemote
		}
	case diff.ContentChanged && diff.ImportanceChanged:
		c.SuggestedResolution = StrategyManual
	default:
		c.SuggestedResolution = r.opts.DefaultStrategy
	}

	return c
}

// Resolve applies exactly one strategy to the pending conflict with the
// given id, removes it from the pending set and records the resolution. An
// empty strategy uses the resolver's configured default. The manual strategy
// always fails; use ManualResolve to supply an explicit entry.
func (r *Resolver) Resolve(id string, strategy ResolutionStrategy) (model.MemoryEntry, error) {
	c, ok := r.pending[id]
	if !ok {
		return model.MemoryEntry{}, fmt.Errorf("%w: %s", ErrConflictNotFound, id)
	}

	if strategy == "" {
		strategy = r.opts.DefaultStrategy
	}
	if !strategy.IsValid() {
		return model.MemoryEntry{}, fmt.Errorf("invalid resolution strategy: %q", strategy)
	}
	if strategy == StrategyManual {
		return model.MemoryEntry{}, fmt.Errorf("%w: %s", ErrManualResolutionRequired, id)
	}

	resolved := r.applyStrategy(c, strategy)
	r.record(c, strategy, resolved, true)

	logging.Debug("conflict resolved",
		logging.Entry(id),
		logging.Strategy(string(strategy)),
	)

	return resolved, nil
}

// ResolveAll resolves every pending conflict using the given strategy (or
// the resolver default when empty). When the effective strategy is manual,
// conflicts that are not auto-resolvable are skipped and left pending
// instead of raising: bulk operations never block on manual conflicts.
// Returns the resolved entries in id order.
func (r *Resolver) ResolveAll(strategy ResolutionStrategy) []model.MemoryEntry {
	defer logging.Timer("resolve_all")()

	effective := strategy
	if effective == "" {
		effective = r.opts.DefaultStrategy
	}

	resolved := make([]model.MemoryEntry, 0, len(r.pending))
	for _, id := range r.pendingIDs() {
		c := r.pending[id]
		apply := effective
		if apply == StrategyManual {
			if !c.AutoResolvable {
				logging.Debug("skipping conflict pending manual resolution",
					logging.Entry(id),
				)
				continue
			}
			apply = c.SuggestedResolution
		}

		entry := r.applyStrategy(c, apply)
		r.record(c, apply, entry, true)
		resolved = append(resolved, entry)
	}

	return resolved
}

// AutoResolve resolves only the conflicts flagged auto-resolvable, each with
// its own suggested resolution. Returns the resolved entries in id order.
func (r *Resolver) AutoResolve() []model.MemoryEntry {
	resolved := make([]model.MemoryEntry, 0)
	for _, id := range r.pendingIDs() {
		c := r.pending[id]
		if !c.AutoResolvable {
			continue
		}
		entry := r.applyStrategy(c, c.SuggestedResolution)
		r.record(c, c.SuggestedResolution, entry, true)
		resolved = append(resolved, entry)
	}
	return resolved
}

// ManualResolve settles a conflict with a caller-supplied entry, bypassing
// strategy logic entirely.
func (r *Resolver) ManualResolve(id string, entry model.MemoryEntry) error {
	c, ok := r.pending[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConflictNotFound, id)
	}
	r.record(c, StrategyManual, entry.Clone(), false)

	logging.Debug("conflict resolved manually",
		logging.Entry(id),
	)

	return nil
}

// Pending returns the pending conflicts in id order.
func (r *Resolver) Pending() []*Conflict {
	out := make([]*Conflict, 0, len(r.pending))
	for _, id := range r.pendingIDs() {
		out = append(out, r.pending[id])
	}
	return out
}

// PendingCount returns the number of unresolved conflicts.
func (r *Resolver) PendingCount() int {
	return len(r.pending)
}

// Get returns the pending conflict for the given id.
func (r *Resolver) Get(id string) (*Conflict, bool) {
	c, ok := r.pending[id]
	return c, ok
}

// History returns the resolution history, most recent first.
func (r *Resolver) History() []Resolution {
	out := make([]Resolution, len(r.history))
	copy(out, r.history)
	return out
}

// Stats summarizes resolver activity.
type ResolverStats struct {
	Pending        int                        `json:"pending"`
	Resolved       int                        `json:"resolved"`
	AutoResolved   int                        `json:"auto_resolved"`
	ManualResolved int                        `json:"manual_resolved"`
	ByStrategy     map[ResolutionStrategy]int `json:"by_strategy"`
}

// Stats returns counters for pending, resolved, auto- vs manually-resolved
// conflicts and a per-strategy histogram.
func (r *Resolver) Stats() ResolverStats {
	byStrategy := make(map[ResolutionStrategy]int, len(r.byStrategy))
	for k, v := range r.byStrategy {
		byStrategy[k] = v
	}
	return ResolverStats{
		Pending:        len(r.pending),
		Resolved:       r.autoResolved + r.manualResolved,
		AutoResolved:   r.autoResolved,
		ManualResolved: r.manualResolved,
		ByStrategy:     byStrategy,
	}
}

// applyStrategy produces the resolved entry for a non-manual strategy.
func (r *Resolver) applyStrategy(c *Conflict, strategy ResolutionStrategy) model.MemoryEntry {
	switch strategy {
	case StrategyLastWriteWins:
		if c.Diff.LocalNewer {
			return c.Local.Clone()
		}
		return c.Remote.Clone()
	case StrategyFirstWriteWins:
		if c.Diff.LocalNewer {
			return c.Remote.Clone()
		}
		return c.Local.Clone()
	case StrategyPreferLocal:
		return c.Local.Clone()
	case StrategyPreferRemote:
		return c.Remote.Clone()
	case StrategyMerge:
		return mergeEntries(c.Local, c.Remote, c.Diff.LocalNewer)
	default:
		return c.Local.Clone()
	}
}

// mergeEntries combines both sides of a conflict: the newer side supplies
// the base values, importance becomes the max of both, tags become the set
// union, and local metadata fields win on key collision. AccessedAt is
// refreshed to now.
func mergeEntries(local, remote model.MemoryEntry, localNewer bool) model.MemoryEntry {
	base := remote
	if localNewer {
		base = local
	}
	merged := base.Clone()

	merged.Importance = max(local.Importance, remote.Importance)
	merged.Metadata.Tags = unionTags(local.Metadata.Tags, remote.Metadata.Tags)

	fields := make(map[string]string, len(local.Metadata.Fields)+len(remote.Metadata.Fields))
	for k, v := range remote.Metadata.Fields {
		fields[k] = v
	}
	for k, v := range local.Metadata.Fields {
		fields[k] = v
	}
	if len(fields) > 0 {
		merged.Metadata.Fields = fields
	}

	merged.AccessedAt = time.Now()
	return merged
}

// unionTags returns the set union of both tag lists, preserving first-seen
// order (local tags first).
func unionTags(local, remote []string) []string {
	if len(local) == 0 && len(remote) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(local)+len(remote))
	union := make([]string, 0, len(local)+len(remote))
	for _, tag := range local {
		if _, ok := seen[tag]; !ok {
			seen[tag] = struct{}{}
			union = append(union, tag)
		}
	}
	for _, tag := range remote {
		if _, ok := seen[tag]; !ok {
			seen[tag] = struct{}{}
			union = append(union, tag)
		}
	}
	return union
}

// record removes a conflict from the pending set and prepends the resolution
// to the bounded history.
func (r *Resolver) record(c *Conflict, strategy ResolutionStrategy, resolved model.MemoryEntry, auto bool) {
	delete(r.pending, c.ID)

	res := Resolution{
		Conflict:   *c,
		Strategy:   strategy,
		Resolved:   resolved,
		Auto:       auto,
		ResolvedAt: time.Now(),
	}
	r.history = append([]Resolution{res}, r.history...)
	if len(r.history) > r.opts.HistoryLimit {
		r.history = r.history[:r.opts.HistoryLimit]
	}

	if auto {
		r.autoResolved++
	} else {
		r.manualResolved++
	}
	r.byStrategy[strategy]++
}

func (r *Resolver) pendingIDs() []string {
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
