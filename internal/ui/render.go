package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/klauern/memsync/internal/model"
	"github.com/klauern/memsync/internal/sync"
)

// Styles for rendered summaries.
var renderStyles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Added   lipgloss.Style
	Removed lipgloss.Style
	Changed lipgloss.Style
	Muted   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
	Label:   lipgloss.NewStyle().Bold(true),
	Added:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Removed: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	Changed: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
}

var titleCaser = cases.Title(language.English)

// TierTitle returns the display form of a tier name.
func TierTitle(t model.Tier) string {
	return titleCaser.String(string(t))
}

// RenderSyncResult renders a sync result for terminal output.
func RenderSyncResult(r *sync.SyncResult) string {
	var sb strings.Builder

	if r.Success {
		sb.WriteString(StatusSuccess(renderStyles.Title.Render("Sync completed")))
	} else {
		sb.WriteString(StatusError(renderStyles.Title.Render("Sync failed")))
	}
	sb.WriteString("\n")

	if r.DryRun {
		sb.WriteString(renderStyles.Muted.Render("dry run - no changes made"))
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("  %s %s\n", renderStyles.Label.Render("Mode:"), r.Mode))
	sb.WriteString(fmt.Sprintf("  %s %d\n", renderStyles.Label.Render("Synced:"), r.EntriesSynced))
	sb.WriteString(fmt.Sprintf("  %s %d\n", renderStyles.Label.Render("Skipped:"), r.EntriesSkipped))
	sb.WriteString(fmt.Sprintf("  %s %d\n", renderStyles.Label.Render("Conflicts resolved:"), r.ConflictsResolved))
	sb.WriteString(fmt.Sprintf("  %s %s\n", renderStyles.Label.Render("Duration:"), r.Duration))

	if len(r.ConflictsPending) > 0 {
		sb.WriteString("\n")
		sb.WriteString(StatusWarning(fmt.Sprintf("%d conflict(s) pending resolution:", len(r.ConflictsPending))))
		sb.WriteString("\n")
		for _, c := range r.ConflictsPending {
			sb.WriteString(fmt.Sprintf("  %s %s\n", SymbolPending, c.Summary()))
		}
	}

	if len(r.Errors) > 0 {
		sb.WriteString("\n")
		sb.WriteString(StatusError(fmt.Sprintf("%d entr(ies) failed:", len(r.Errors))))
		sb.WriteString("\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("  %s %s: %v\n", SymbolError, e.ID, e.Err))
		}
	}

	if r.Err != nil {
		sb.WriteString("\n")
		sb.WriteString(StatusError(r.Err.Error()))
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderDiff renders a diff summary for terminal output.
func RenderDiff(d *sync.Diff) string {
	var sb strings.Builder

	scope := "all tiers"
	if d.Tier != "" {
		scope = TierTitle(d.Tier) + " tier"
	}
	sb.WriteString(renderStyles.Title.Render(fmt.Sprintf("Diff (%s)", scope)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("  %s %d\n", renderStyles.Added.Render("+ added:"), len(d.Added)))
	for _, e := range d.Added {
		sb.WriteString(fmt.Sprintf("      %s %s\n", renderStyles.Added.Render("+"), entryLine(e)))
	}
	sb.WriteString(fmt.Sprintf("  %s %d\n", renderStyles.Changed.Render("~ modified:"), len(d.Modified)))
	for _, m := range d.Modified {
		sb.WriteString(fmt.Sprintf("      %s %s (%s)\n", renderStyles.Changed.Render("~"), entryLine(m.Entry), m.Change))
	}
	sb.WriteString(fmt.Sprintf("  %s %d\n", renderStyles.Removed.Render("- deleted:"), len(d.Deleted)))
	for _, id := range d.Deleted {
		sb.WriteString(fmt.Sprintf("      %s %s\n", renderStyles.Removed.Render("-"), id))
	}
	sb.WriteString(renderStyles.Muted.Render(fmt.Sprintf("  %d unchanged, ~%d bytes to transfer", d.Unchanged, d.TransferSize)))
	sb.WriteString("\n")

	return sb.String()
}

// RenderConflicts renders pending conflicts for terminal output.
func RenderConflicts(conflicts []*sync.Conflict) string {
	if len(conflicts) == 0 {
		return StatusSuccess("no conflicts detected") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(renderStyles.Title.Render(fmt.Sprintf("%d conflict(s)", len(conflicts))))
	sb.WriteString("\n")

	for _, c := range conflicts {
		marker := StatusWarning("")
		if c.AutoResolvable {
			marker = StatusPending("")
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", marker, renderStyles.Label.Render(c.ID)))
		sb.WriteString(fmt.Sprintf("    local:  %s\n", entryLine(c.Local)))
		sb.WriteString(fmt.Sprintf("    remote: %s\n", entryLine(c.Remote)))
		sb.WriteString(renderStyles.Muted.Render(fmt.Sprintf(
			"    auto-resolvable: %t, suggested: %s, delta: %s",
			c.AutoResolvable, c.SuggestedResolution, c.Diff.TimeDelta,
		)))
		sb.WriteString("\n")
	}

	return sb.String()
}

// entryLine formats one entry for list output, truncating long content.
func entryLine(e model.MemoryEntry) string {
	content := e.Content
	if len(content) > 48 {
		content = content[:45] + "..."
	}
	content = strings.ReplaceAll(content, "\n", " ")
	return fmt.Sprintf("%s [%s/%s, imp %.1f] %q", e.ID, e.Tier, e.Type, e.Importance, content)
}
