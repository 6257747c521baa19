package cli

import (
	"fmt"

	"github.com/klauern/memsync/internal/sync"
	"github.com/klauern/memsync/internal/ui"
	"github.com/klauern/memsync/internal/ui/tui"
)

// resolveInteractive runs the conflict resolution TUI and applies the chosen
// strategies. Skipped conflicts stay pending.
func resolveInteractive(resolver *sync.Resolver, conflicts []*sync.Conflict) error {
	if len(conflicts) == 0 {
		fmt.Println(ui.StatusSuccess("no conflicts detected"))
		return nil
	}

	if !ui.IsTerminal() {
		return fmt.Errorf("interactive resolution requires a terminal")
	}

	final, err := tui.Run(tui.NewConflictListModel(conflicts))
	if err != nil {
		return fmt.Errorf("conflict resolution UI failed: %w", err)
	}

	m, ok := final.(tui.ConflictListModel)
	if !ok {
		return fmt.Errorf("unexpected model type from conflict UI")
	}

	result := m.Result()
	switch result.Action {
	case tui.ConflictActionResolve:
		for _, res := range result.Resolutions {
			entry, err := resolver.Resolve(res.ID, res.Strategy)
			if err != nil {
				fmt.Println(ui.StatusError(fmt.Sprintf("%s: %v", res.ID, err)))
				continue
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("resolved %s (%s)", entry.ID, res.Strategy)))
		}
		if remaining := resolver.PendingCount(); remaining > 0 {
			fmt.Println(ui.StatusWarning(fmt.Sprintf("%d conflict(s) still pending", remaining)))
		}
	case tui.ConflictActionCancel:
		fmt.Println(ui.StatusSkipped("resolution cancelled, all conflicts left pending"))
	default:
		fmt.Println(ui.StatusSkipped("no resolutions applied"))
	}

	return nil
}
