package sync

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/klauern/memsync/internal/logging"
	"github.com/klauern/memsync/internal/model"
)

// Mode selects the policy governing which diff changes are applied and in
// what order.
type Mode string

const (
	// ModeFull applies every addition, modification and deletion.
	ModeFull Mode = "full"

	// ModeIncremental applies changes by descending importance, optionally
	// capped by MaxEntries.
	ModeIncremental Mode = "incremental"

	// ModeTierSpecific applies only changes whose entries belong to the
	// requested tiers. Deletions are not tier-filtered.
	ModeTierSpecific Mode = "tier-specific"
)

// IsValid returns true if the mode is recognized.
func (m Mode) IsValid() bool {
	switch m {
	case ModeFull, ModeIncremental, ModeTierSpecific:
		return true
	default:
		return false
	}
}

// AllModes returns all supported sync modes.
func AllModes() []Mode {
	return []Mode{ModeFull, ModeIncremental, ModeTierSpecific}
}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m Mode) Description() string {
	switch m {
	case ModeFull:
		return "Apply every addition, modification and deletion"
	case ModeIncremental:
		return "Apply changes by descending importance, optionally capped"
	case ModeTierSpecific:
		return "Apply only changes in the selected tiers"
	default:
		return "Unknown mode"
	}
}

// ErrUnknownMode is returned by NewApplier for an unrecognized mode. This is
// a configuration error surfaced at construction, never deferred to apply
// time.
var ErrUnknownMode = errors.New("unknown sync mode")

// ChangeKind identifies the kind of change applied to the target state.
type ChangeKind string

const (
	// ChangeAdd introduces a new entry.
	ChangeAdd ChangeKind = "add"

	// ChangeUpdate replaces an existing entry.
	ChangeUpdate ChangeKind = "update"

	// ChangeDelete removes an entry by id.
	ChangeDelete ChangeKind = "delete"
)

// Change is one applied unit of work from a diff.
type Change struct {
	Kind ChangeKind `json:"kind"`
	ID   string     `json:"id"`
	Tier model.Tier `json:"tier,omitempty"`

	// Entry is the applied value; zero for deletions.
	Entry model.MemoryEntry `json:"entry,omitempty"`
}

// ApplyFunc is the per-change sink invoked for each applied change. A nil
// sink records changes without side effects. Errors are collected per
// entry and never abort the remaining changes.
type ApplyFunc func(change Change) error

// ApplyOptions configures one application pass over a diff.
type ApplyOptions struct {
	// DryRun short-circuits before any mutation: everything the pass would
	// have applied is reported as skipped instead.
	DryRun bool

	// MaxEntries caps the number of changes applied by the incremental
	// mode. Zero means unlimited.
	MaxEntries int

	// Tiers restricts the tier-specific mode to entries in these tiers.
	Tiers []model.Tier

	// Apply is the per-change sink.
	Apply ApplyFunc

	// OnProgress is invoked after each applied change with the number of
	// changes processed so far and the total to process.
	OnProgress func(processed, total int)
}

// ApplyError records a per-entry application failure.
type ApplyError struct {
	ID   string     `json:"id"`
	Tier model.Tier `json:"tier,omitempty"`
	Err  error      `json:"error"`
}

func (e ApplyError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e ApplyError) Unwrap() error {
	return e.Err
}

// ApplyResult is the outcome of one application pass.
type ApplyResult struct {
	EntriesSynced  int           `json:"entries_synced"`
	EntriesSkipped int           `json:"entries_skipped"`
	Applied        []Change      `json:"applied"`
	Errors         []ApplyError  `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// applyFunc is the signature shared by all mode implementations.
type applyFunc func(diff *Diff, opts ApplyOptions) *ApplyResult

// appliers maps each mode to its implementation. Modes are dispatched
// through this table instead of a type hierarchy so adding a mode is one
// function plus one registration.
var appliers = map[Mode]applyFunc{
	ModeFull:         applyFull,
	ModeIncremental:  applyIncremental,
	ModeTierSpecific: applyTierSpecific,
}

// Applier applies diffs under a fixed mode.
type Applier struct {
	mode Mode
	fn   applyFunc
}

// NewApplier returns the applier for the given mode, or ErrUnknownMode for
// an unrecognized one.
func NewApplier(mode Mode) (*Applier, error) {
	fn, ok := appliers[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return &Applier{mode: mode, fn: fn}, nil
}

// Mode returns the applier's mode.
func (a *Applier) Mode() Mode {
	return a.mode
}

// Apply runs the mode's policy over the diff.
func (a *Applier) Apply(diff *Diff, opts ApplyOptions) *ApplyResult {
	defer logging.Timer("apply_" + string(a.mode))()
	return a.fn(diff, opts)
}

// applyFull applies every addition, modification and deletion in the diff
// unconditionally. Individual failures are recorded and the loop continues.
func applyFull(diff *Diff, opts ApplyOptions) *ApplyResult {
	start := time.Now()
	result := &ApplyResult{Applied: make([]Change, 0, diff.TotalChanges)}

	if opts.DryRun {
		result.EntriesSkipped = diff.TotalChanges
		result.Duration = time.Since(start)
		return result
	}

	total := diff.TotalChanges
	for _, e := range diff.Added {
		applyChange(result, opts, Change{Kind: ChangeAdd, ID: e.ID, Tier: e.Tier, Entry: e}, total)
	}
	for _, m := range diff.Modified {
		applyChange(result, opts, Change{Kind: ChangeUpdate, ID: m.Entry.ID, Tier: m.Entry.Tier, Entry: m.Entry}, total)
	}
	for _, id := range diff.Deleted {
		applyChange(result, opts, Change{Kind: ChangeDelete, ID: id}, total)
	}

	result.Duration = time.Since(start)
	return result
}

// applyIncremental applies additions and modifications in descending
// importance order (stable on input order for ties), then deletions, sharing
// an optional MaxEntries cap across all three in that priority order. The
// remainder is reported as skipped.
func applyIncremental(diff *Diff, opts ApplyOptions) *ApplyResult {
	start := time.Now()
	result := &ApplyResult{Applied: make([]Change, 0, diff.TotalChanges)}

	if opts.DryRun {
		result.EntriesSkipped = diff.TotalChanges
		result.Duration = time.Since(start)
		return result
	}

	added := byDescendingImportance(diff.Added)
	modified := make([]model.MemoryEntry, 0, len(diff.Modified))
	for _, m := range diff.Modified {
		modified = append(modified, m.Entry)
	}
	modified = byDescendingImportance(modified)

	budget := opts.MaxEntries
	if budget <= 0 {
		budget = diff.TotalChanges
	}

	total := min(budget, diff.TotalChanges)
	for _, e := range added {
		if budget == 0 {
			result.EntriesSkipped++
			continue
		}
		budget--
		applyChange(result, opts, Change{Kind: ChangeAdd, ID: e.ID, Tier: e.Tier, Entry: e}, total)
	}
	for _, e := range modified {
		if budget == 0 {
			result.EntriesSkipped++
			continue
		}
		budget--
		applyChange(result, opts, Change{Kind: ChangeUpdate, ID: e.ID, Tier: e.Tier, Entry: e}, total)
	}
	for _, id := range diff.Deleted {
		if budget == 0 {
			result.EntriesSkipped++
			continue
		}
		budget--
		applyChange(result, opts, Change{Kind: ChangeDelete, ID: id}, total)
	}

	result.Duration = time.Since(start)
	return result
}

// applyTierSpecific filters additions and modifications to the requested
// tiers before applying. Deletions are applied unfiltered; scoping deletions
// is the caller's responsibility because a bare id carries no tier.
func applyTierSpecific(diff *Diff, opts ApplyOptions) *ApplyResult {
	start := time.Now()
	result := &ApplyResult{Applied: make([]Change, 0, diff.TotalChanges)}

	wanted := make(map[model.Tier]struct{}, len(opts.Tiers))
	for _, t := range opts.Tiers {
		wanted[t] = struct{}{}
	}
	inScope := func(t model.Tier) bool {
		_, ok := wanted[t]
		return ok
	}

	total := len(diff.Deleted)
	for _, e := range diff.Added {
		if inScope(e.Tier) {
			total++
		}
	}
	for _, m := range diff.Modified {
		if inScope(m.Entry.Tier) {
			total++
		}
	}

	if opts.DryRun {
		result.EntriesSkipped = total
		result.Duration = time.Since(start)
		return result
	}

	for _, e := range diff.Added {
		if !inScope(e.Tier) {
			result.EntriesSkipped++
			continue
		}
		applyChange(result, opts, Change{Kind: ChangeAdd, ID: e.ID, Tier: e.Tier, Entry: e}, total)
	}
	for _, m := range diff.Modified {
		if !inScope(m.Entry.Tier) {
			result.EntriesSkipped++
			continue
		}
		applyChange(result, opts, Change{Kind: ChangeUpdate, ID: m.Entry.ID, Tier: m.Entry.Tier, Entry: m.Entry}, total)
	}
	for _, id := range diff.Deleted {
		applyChange(result, opts, Change{Kind: ChangeDelete, ID: id}, total)
	}

	result.Duration = time.Since(start)
	return result
}

// applyChange pushes one change through the sink and records the outcome.
func applyChange(result *ApplyResult, opts ApplyOptions, change Change, total int) {
	if opts.Apply != nil {
		if err := opts.Apply(change); err != nil {
			result.Errors = append(result.Errors, ApplyError{
				ID:   change.ID,
				Tier: change.Tier,
				Err:  err,
			})
			logging.Warn("change application failed",
				logging.Entry(change.ID),
				logging.Tier(string(change.Tier)),
				logging.Err(err),
			)
			return
		}
	}

	result.Applied = append(result.Applied, change)
	result.EntriesSynced++

	if opts.OnProgress != nil {
		opts.OnProgress(result.EntriesSynced+len(result.Errors), total)
	}
}

// byDescendingImportance returns the entries sorted by importance, highest
// first, preserving input order for equal importance.
func byDescendingImportance(entries []model.MemoryEntry) []model.MemoryEntry {
	out := make([]model.MemoryEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	return out
}
