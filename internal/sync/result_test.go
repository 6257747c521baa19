package sync

import (
	"strings"
	"testing"
	"time"

	"github.com/klauern/memsync/internal/model"
)

func TestSyncResult_Summary(t *testing.T) {
	result := &SyncResult{
		Success:           true,
		SyncID:            "abc-123",
		Mode:              ModeIncremental,
		EntriesSynced:     4,
		EntriesSkipped:    1,
		ConflictsResolved: 2,
		Duration:          150 * time.Millisecond,
	}

	summary := result.Summary()

	for _, want := range []string{"succeeded", "incremental", "abc-123", "Synced:             4", "Conflicts resolved: 2"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestSyncResult_Summary_PendingAndErrors(t *testing.T) {
	result := &SyncResult{
		SyncID: "abc-123",
		Mode:   ModeFull,
		DryRun: true,
		ConflictsPending: []*Conflict{
			{ID: "e1", Diff: ConflictDiff{ContentChanged: true}},
		},
		Errors: []ApplyError{
			{ID: "e2", Err: ErrSyncInProgress},
		},
	}

	summary := result.Summary()

	if !strings.Contains(summary, "Dry run") {
		t.Error("summary missing dry-run notice")
	}
	if !strings.Contains(summary, "failed") {
		t.Error("summary should report failure")
	}
	if !strings.Contains(summary, "e1: content differs") {
		t.Errorf("summary missing pending conflict:\n%s", summary)
	}
	if !strings.Contains(summary, "e2") {
		t.Errorf("summary missing per-entry error:\n%s", summary)
	}
}

func TestDiff_Summary(t *testing.T) {
	calc := NewCalculator()
	d := calc.Diff(
		model.EntriesByID([]model.MemoryEntry{
			makeEntry("new", "added", 1),
			makeEntry("keep", "same", 1),
		}),
		model.EntriesByID([]model.MemoryEntry{
			makeEntry("keep", "same", 1),
			makeEntry("gone", "deleted", 1),
		}),
		model.TierSession,
	)

	summary := d.Summary()

	for _, want := range []string{"session tier", "2 change(s)", "Added:     1", "Deleted:   1", "Unchanged: 1"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}
