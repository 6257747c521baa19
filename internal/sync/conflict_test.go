package sync

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/klauern/memsync/internal/model"
)

func TestResolver_Detect(t *testing.T) {
	tests := []struct {
		name      string
		local     model.MemoryEntry
		remote    model.MemoryEntry
		conflicts bool
	}{
		{
			name:      "identical entries do not conflict",
			local:     makeEntry("e1", "same", 5),
			remote:    makeEntry("e1", "same", 5),
			conflicts: false,
		},
		{
			name:      "different content conflicts",
			local:     makeEntry("e1", "local version", 5),
			remote:    makeEntry("e1", "remote version", 5),
			conflicts: true,
		},
		{
			name:      "different importance conflicts",
			local:     makeEntry("e1", "same", 5),
			remote:    makeEntry("e1", "same", 8),
			conflicts: true,
		},
		{
			name:  "metadata only difference does not conflict",
			local: makeEntry("e1", "same", 5),
			remote: func() model.MemoryEntry {
				e := makeEntry("e1", "same", 5)
				e.Metadata = model.Metadata{Tags: []string{"x"}}
				return e
			}(),
			conflicts: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(ResolverOptions{})
			got := r.Detect(
				model.EntriesByID([]model.MemoryEntry{tt.local}),
				model.EntriesByID([]model.MemoryEntry{tt.remote}),
			)

			if tt.conflicts && len(got) != 1 {
				t.Fatalf("expected 1 conflict, got %d", len(got))
			}
			if !tt.conflicts && len(got) != 0 {
				t.Fatalf("expected no conflicts, got %d", len(got))
			}
			if r.PendingCount() != len(got) {
				t.Errorf("pending count %d does not match detected %d", r.PendingCount(), len(got))
			}
		})
	}
}

func TestResolver_Detect_OneSidedIDsAreNotConflicts(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	local := model.EntriesByID([]model.MemoryEntry{makeEntry("only-local", "x", 1)})
	remote := model.EntriesByID([]model.MemoryEntry{makeEntry("only-remote", "y", 1)})

	if got := r.Detect(local, remote); len(got) != 0 {
		t.Errorf("one-sided ids should never conflict, got %d", len(got))
	}
}

func TestResolver_AutoResolvable(t *testing.T) {
	tests := []struct {
		name      string
		localAt   time.Time
		remoteAt  time.Time
		localImp  float64
		remoteImp float64
		auto      bool
		suggested ResolutionStrategy
	}{
		{
			name:      "local decisively newer",
			localAt:   testBase.Add(120 * time.Second),
			remoteAt:  testBase,
			localImp:  5,
			remoteImp: 5,
			auto:      true,
			suggested: StrategyPreferLocal,
		},
		{
			name:      "remote decisively newer",
			localAt:   testBase,
			remoteAt:  testBase.Add(120 * time.Second),
			localImp:  5,
			remoteImp: 5,
			auto:      true,
			suggested: StrategyPreferRemote,
		},
		{
			name:      "within threshold content only suggests default",
			localAt:   testBase.Add(10 * time.Second),
			remoteAt:  testBase,
			localImp:  5,
			remoteImp: 5,
			auto:      false,
			suggested: StrategyLastWriteWins,
		},
		{
			name:      "within threshold content and importance suggests manual",
			localAt:   testBase.Add(10 * time.Second),
			remoteAt:  testBase,
			localImp:  5,
			remoteImp: 8,
			auto:      false,
			suggested: StrategyManual,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(ResolverOptions{AutoResolveThreshold: time.Minute})

			local := touchedAt(makeEntry("e1", "local version", tt.localImp), tt.localAt)
			remote := touchedAt(makeEntry("e1", "remote version", tt.remoteImp), tt.remoteAt)

			got := r.Detect(
				model.EntriesByID([]model.MemoryEntry{local}),
				model.EntriesByID([]model.MemoryEntry{remote}),
			)
			if len(got) != 1 {
				t.Fatalf("expected 1 conflict, got %d", len(got))
			}

			c := got[0]
			if c.AutoResolvable != tt.auto {
				t.Errorf("AutoResolvable = %v, want %v", c.AutoResolvable, tt.auto)
			}
			if c.SuggestedResolution != tt.suggested {
				t.Errorf("SuggestedResolution = %s, want %s", c.SuggestedResolution, tt.suggested)
			}
		})
	}
}

func detectOne(t *testing.T, r *Resolver, local, remote model.MemoryEntry) *Conflict {
	t.Helper()
	got := r.Detect(
		model.EntriesByID([]model.MemoryEntry{local}),
		model.EntriesByID([]model.MemoryEntry{remote}),
	)
	if len(got) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(got))
	}
	return got[0]
}

func TestResolver_Resolve_Strategies(t *testing.T) {
	local := touchedAt(makeEntry("e1", "local version", 3), testBase.Add(time.Hour))
	remote := touchedAt(makeEntry("e1", "remote version", 7), testBase)

	tests := []struct {
		name        string
		strategy    ResolutionStrategy
		wantContent string
	}{
		{name: "last write wins picks newer local", strategy: StrategyLastWriteWins, wantContent: "local version"},
		{name: "first write wins picks older remote", strategy: StrategyFirstWriteWins, wantContent: "remote version"},
		{name: "prefer local", strategy: StrategyPreferLocal, wantContent: "local version"},
		{name: "prefer remote", strategy: StrategyPreferRemote, wantContent: "remote version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(ResolverOptions{})
			detectOne(t, r, local, remote)

			resolved, err := r.Resolve("e1", tt.strategy)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if resolved.Content != tt.wantContent {
				t.Errorf("resolved content = %q, want %q", resolved.Content, tt.wantContent)
			}
			if r.PendingCount() != 0 {
				t.Errorf("expected no pending conflicts after resolution, got %d", r.PendingCount())
			}
		})
	}
}

func TestResolver_Resolve_Merge(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	local := touchedAt(makeEntry("e1", "local version", 3), testBase)
	local.Metadata = model.Metadata{
		Tags:   []string{"a"},
		Fields: map[string]string{"origin": "local", "only-local": "yes"},
	}
	remote := touchedAt(makeEntry("e1", "remote version", 7), testBase.Add(time.Hour))
	remote.Metadata = model.Metadata{
		Tags:   []string{"b"},
		Fields: map[string]string{"origin": "remote", "only-remote": "yes"},
	}

	detectOne(t, r, local, remote)

	merged, err := r.Resolve("e1", StrategyMerge)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// Remote is newer, so it supplies the base content.
	if merged.Content != "remote version" {
		t.Errorf("merged content = %q, want remote base", merged.Content)
	}
	if merged.Importance != 7 {
		t.Errorf("merged importance = %v, want max 7", merged.Importance)
	}
	if len(merged.Metadata.Tags) != 2 || !merged.Metadata.HasTag("a") || !merged.Metadata.HasTag("b") {
		t.Errorf("merged tags = %v, want union of a and b", merged.Metadata.Tags)
	}
	// Local fields win on key collision; one-sided fields survive.
	if merged.Metadata.Fields["origin"] != "local" {
		t.Errorf("field origin = %q, want local precedence", merged.Metadata.Fields["origin"])
	}
	if merged.Metadata.Fields["only-remote"] != "yes" || merged.Metadata.Fields["only-local"] != "yes" {
		t.Errorf("merged fields missing one-sided keys: %v", merged.Metadata.Fields)
	}
	if merged.AccessedAt.IsZero() {
		t.Error("merge should refresh AccessedAt")
	}
}

func TestResolver_Resolve_ManualStrategyFails(t *testing.T) {
	r := NewResolver(ResolverOptions{})
	detectOne(t, r, makeEntry("e1", "local", 5), makeEntry("e1", "remote", 5))

	if _, err := r.Resolve("e1", StrategyManual); !errors.Is(err, ErrManualResolutionRequired) {
		t.Errorf("expected ErrManualResolutionRequired, got %v", err)
	}
	if r.PendingCount() != 1 {
		t.Error("failed manual resolve should leave the conflict pending")
	}
}

func TestResolver_Resolve_NotFound(t *testing.T) {
	r := NewResolver(ResolverOptions{})
	if _, err := r.Resolve("missing", StrategyPreferLocal); !errors.Is(err, ErrConflictNotFound) {
		t.Errorf("expected ErrConflictNotFound, got %v", err)
	}
}

func TestResolver_ResolveAll_ManualSkipsUnresolvable(t *testing.T) {
	r := NewResolver(ResolverOptions{AutoResolveThreshold: time.Minute})

	// Auto-resolvable: local decisively newer.
	autoLocal := touchedAt(makeEntry("auto", "local", 5), testBase.Add(time.Hour))
	autoRemote := touchedAt(makeEntry("auto", "remote", 5), testBase)

	// Not auto-resolvable: both changed within the threshold.
	stuckLocal := touchedAt(makeEntry("stuck", "local", 5), testBase.Add(10*time.Second))
	stuckRemote := touchedAt(makeEntry("stuck", "remote", 8), testBase)

	r.Detect(
		model.EntriesByID([]model.MemoryEntry{autoLocal, stuckLocal}),
		model.EntriesByID([]model.MemoryEntry{autoRemote, stuckRemote}),
	)

	resolved := r.ResolveAll(StrategyManual)

	if len(resolved) != 1 || resolved[0].ID != "auto" {
		t.Fatalf("expected only the auto-resolvable conflict resolved, got %v", resolved)
	}
	if resolved[0].Content != "local" {
		t.Errorf("auto-resolved content = %q, want the suggested local side", resolved[0].Content)
	}
	if r.PendingCount() != 1 {
		t.Errorf("expected 1 conflict still pending, got %d", r.PendingCount())
	}
	if _, ok := r.Get("stuck"); !ok {
		t.Error("expected the unresolvable conflict to stay pending")
	}
}

func TestResolver_ResolveAll_WithStrategy(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	r.Detect(
		model.EntriesByID([]model.MemoryEntry{
			makeEntry("a", "local a", 1),
			makeEntry("b", "local b", 2),
		}),
		model.EntriesByID([]model.MemoryEntry{
			makeEntry("a", "remote a", 1),
			makeEntry("b", "remote b", 2),
		}),
	)

	resolved := r.ResolveAll(StrategyPreferLocal)

	if len(resolved) != 2 {
		t.Fatalf("expected 2 resolved, got %d", len(resolved))
	}
	// Resolution order follows id order.
	if resolved[0].ID != "a" || resolved[1].ID != "b" {
		t.Errorf("expected id-ordered resolution, got %s, %s", resolved[0].ID, resolved[1].ID)
	}
	for _, e := range resolved {
		if e.Content[:5] != "local" {
			t.Errorf("entry %s resolved to %q, want local side", e.ID, e.Content)
		}
	}
}

func TestResolver_AutoResolve(t *testing.T) {
	r := NewResolver(ResolverOptions{AutoResolveThreshold: time.Minute})

	autoLocal := touchedAt(makeEntry("auto", "local", 5), testBase.Add(time.Hour))
	autoRemote := touchedAt(makeEntry("auto", "remote", 5), testBase)
	stuckLocal := touchedAt(makeEntry("stuck", "local", 5), testBase.Add(10*time.Second))
	stuckRemote := touchedAt(makeEntry("stuck", "remote", 8), testBase)

	r.Detect(
		model.EntriesByID([]model.MemoryEntry{autoLocal, stuckLocal}),
		model.EntriesByID([]model.MemoryEntry{autoRemote, stuckRemote}),
	)

	resolved := r.AutoResolve()

	if len(resolved) != 1 || resolved[0].ID != "auto" {
		t.Fatalf("expected only the auto-resolvable conflict resolved, got %v", resolved)
	}
	if r.PendingCount() != 1 {
		t.Errorf("expected 1 pending, got %d", r.PendingCount())
	}
}

func TestResolver_ManualResolve(t *testing.T) {
	r := NewResolver(ResolverOptions{})
	detectOne(t, r, makeEntry("e1", "local", 5), makeEntry("e1", "remote", 5))

	supplied := makeEntry("e1", "hand-crafted resolution", 6)
	if err := r.ManualResolve("e1", supplied); err != nil {
		t.Fatalf("ManualResolve() error = %v", err)
	}

	if r.PendingCount() != 0 {
		t.Error("expected no pending conflicts")
	}

	history := r.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(history))
	}
	if history[0].Auto {
		t.Error("manual resolution should not be flagged auto")
	}
	if history[0].Strategy != StrategyManual {
		t.Errorf("history strategy = %s, want manual", history[0].Strategy)
	}
	if history[0].Resolved.Content != "hand-crafted resolution" {
		t.Errorf("history resolved = %q, want the supplied entry", history[0].Resolved.Content)
	}

	if err := r.ManualResolve("missing", supplied); !errors.Is(err, ErrConflictNotFound) {
		t.Errorf("expected ErrConflictNotFound, got %v", err)
	}
}

func TestResolver_HistoryBounded(t *testing.T) {
	r := NewResolver(ResolverOptions{HistoryLimit: 5})

	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("e%d", i)
		detectOne(t, r, makeEntry(id, "local", 5), makeEntry(id, "remote", 5))
		if _, err := r.Resolve(id, StrategyPreferLocal); err != nil {
			t.Fatalf("Resolve(%s) error = %v", id, err)
		}
	}

	history := r.History()
	if len(history) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(history))
	}
	// Most recent first.
	if history[0].Conflict.ID != "e7" {
		t.Errorf("history[0] = %s, want e7", history[0].Conflict.ID)
	}
}

func TestResolver_Stats(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	detectOne(t, r, makeEntry("a", "local", 5), makeEntry("a", "remote", 5))
	detectOne(t, r, makeEntry("b", "local", 5), makeEntry("b", "remote", 5))
	detectOne(t, r, makeEntry("c", "local", 5), makeEntry("c", "remote", 5))

	if _, err := r.Resolve("a", StrategyPreferLocal); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := r.ManualResolve("b", makeEntry("b", "supplied", 5)); err != nil {
		t.Fatalf("ManualResolve() error = %v", err)
	}

	stats := r.Stats()
	if stats.Pending != 1 {
		t.Errorf("Pending = %d, want 1", stats.Pending)
	}
	if stats.Resolved != 2 {
		t.Errorf("Resolved = %d, want 2", stats.Resolved)
	}
	if stats.AutoResolved != 1 || stats.ManualResolved != 1 {
		t.Errorf("Auto/Manual = %d/%d, want 1/1", stats.AutoResolved, stats.ManualResolved)
	}
	if stats.ByStrategy[StrategyPreferLocal] != 1 {
		t.Errorf("ByStrategy[prefer-local] = %d, want 1", stats.ByStrategy[StrategyPreferLocal])
	}
}

func TestResolutionStrategy_IsValid(t *testing.T) {
	for _, s := range AllStrategies() {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if ResolutionStrategy("newest-wins").IsValid() {
		t.Error("expected unknown strategy to be invalid")
	}
}
