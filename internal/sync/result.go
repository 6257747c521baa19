package sync

import (
	"fmt"
	"strings"
)

// Summary returns a human-readable summary of the sync result.
func (r *SyncResult) Summary() string {
	var sb strings.Builder

	if r.DryRun {
		sb.WriteString("Dry run - no changes made\n")
	}

	status := "failed"
	if r.Success {
		status = "succeeded"
	}
	sb.WriteString(fmt.Sprintf("Sync %s (%s mode, %s)\n", status, r.Mode, r.SyncID))

	sb.WriteString(fmt.Sprintf("  Synced:             %d\n", r.EntriesSynced))
	sb.WriteString(fmt.Sprintf("  Skipped:            %d\n", r.EntriesSkipped))
	sb.WriteString(fmt.Sprintf("  Conflicts resolved: %d\n", r.ConflictsResolved))
	sb.WriteString(fmt.Sprintf("  Conflicts pending:  %d\n", len(r.ConflictsPending)))
	sb.WriteString(fmt.Sprintf("  Duration:           %s\n", r.Duration))

	if len(r.ConflictsPending) > 0 {
		sb.WriteString("\nConflicts requiring resolution:\n")
		for _, c := range r.ConflictsPending {
			sb.WriteString(fmt.Sprintf("  - %s\n", c.Summary()))
		}
	}

	if len(r.Errors) > 0 {
		sb.WriteString("\nErrors:\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("  - %s: %v\n", e.ID, e.Err))
		}
	}

	if r.Err != nil {
		sb.WriteString(fmt.Sprintf("\nError: %v\n", r.Err))
	}

	return sb.String()
}

// Summary returns a human-readable summary of the diff.
func (d *Diff) Summary() string {
	var sb strings.Builder

	scope := "all tiers"
	if d.Tier != "" {
		scope = string(d.Tier) + " tier"
	}
	sb.WriteString(fmt.Sprintf("Diff (%s): %d change(s)\n", scope, d.TotalChanges))
	sb.WriteString(fmt.Sprintf("  Added:     %d\n", len(d.Added)))
	sb.WriteString(fmt.Sprintf("  Modified:  %d\n", len(d.Modified)))
	sb.WriteString(fmt.Sprintf("  Deleted:   %d\n", len(d.Deleted)))
	sb.WriteString(fmt.Sprintf("  Unchanged: %d\n", d.Unchanged))
	sb.WriteString(fmt.Sprintf("  Est. size: %d bytes\n", d.TransferSize))

	return sb.String()
}
