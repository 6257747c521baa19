// Package cli provides command definitions for memsync.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/klauern/memsync/internal/config"
	"github.com/klauern/memsync/internal/model"
	"github.com/klauern/memsync/internal/progress"
	"github.com/klauern/memsync/internal/store"
	"github.com/klauern/memsync/internal/sync"
	"github.com/klauern/memsync/internal/ui"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Display the effective configuration",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := config.LoadOrDefault(cmd.String("config"))
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Synchronize a memory snapshot against a baseline",
		UsageText: "memsync sync [options] <snapshot.json>",
		Description: `Synchronize the entries in a snapshot file against a baseline state.

   Snapshot files hold a JSON array of memory entries. Without --baseline the
   sync runs against an empty state and every entry counts as an addition.

   Examples:
     memsync sync --baseline last.json current.json
     memsync sync --mode incremental --max-entries 50 current.json
     memsync sync --dry-run --tier session current.json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "baseline",
				Aliases: []string{"b"},
				Usage:   "Snapshot file holding the baseline state",
			},
			&cli.StringFlag{
				Name:  "state-dir",
				Usage: "Directory persisting the committed baseline between runs",
			},
			&cli.StringFlag{
				Name:  "conversation",
				Usage: "Conversation id keying persisted state and events",
				Value: "default",
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "Session id keying persisted state and events",
				Value: "default",
			},
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Sync mode: full, incremental, tier-specific",
			},
			&cli.StringFlag{
				Name:    "strategy",
				Aliases: []string{"s"},
				Usage:   "Conflict resolution strategy",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Preview changes without applying them",
			},
			&cli.IntFlag{
				Name:  "max-entries",
				Usage: "Cap on entries applied per incremental sync (0 = unlimited)",
			},
			&cli.StringSliceFlag{
				Name:  "tier",
				Usage: "Restrict tier-specific sync to these tiers (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit the sync result as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 1 {
				return errors.New("sync requires exactly 1 argument: <snapshot.json>")
			}

			entries, err := loadSnapshot(args.Get(0))
			if err != nil {
				return err
			}

			cfg, err := config.LoadOrDefault(cmd.String("config"))
			if err != nil {
				return err
			}

			mode := sync.Mode(cmd.String("mode"))
			if mode == "" {
				mode = sync.Mode(cfg.Sync.DefaultMode)
			}
			if !mode.IsValid() {
				return fmt.Errorf("unknown mode: %q", mode)
			}

			strategy := sync.ResolutionStrategy(cmd.String("strategy"))
			if strategy != "" && !strategy.IsValid() {
				return fmt.Errorf("unknown strategy: %q", strategy)
			}

			tiers, err := parseTiers(cmd.StringSlice("tier"))
			if err != nil {
				return err
			}

			conversationID := cmd.String("conversation")
			sessionID := cmd.String("session")

			engine, err := sync.New(cfg.EngineOptions(conversationID, sessionID))
			if err != nil {
				return err
			}
			defer func() { _ = engine.Shutdown() }()

			var states *store.Store
			if dir := cmd.String("state-dir"); dir != "" {
				states, err = store.New(dir)
				if err != nil {
					return err
				}
			}

			switch {
			case cmd.String("baseline") != "":
				baseline, err := loadSnapshot(cmd.String("baseline"))
				if err != nil {
					return err
				}
				engine.SeedBaseline(baseline)
			case states != nil:
				if state, ok, err := states.Load(conversationID, sessionID); err != nil {
					return err
				} else if ok {
					engine.SeedBaseline(state.EntryList())
				}
			}

			bar := progress.Simple("Syncing")
			result := engine.Sync(ctx, entries, sync.SyncOptions{
				Mode:       mode,
				Strategy:   strategy,
				DryRun:     cmd.Bool("dry-run"),
				MaxEntries: int(cmd.Int("max-entries")),
				Tiers:      tiers,
				OnProgress: bar.Observe(),
			})
			_ = bar.Clear()

			if states != nil && result.Success && !result.DryRun {
				if state := engine.LastSyncState(); state != nil {
					if err := states.Save(conversationID, sessionID, state); err != nil {
						return fmt.Errorf("sync succeeded but baseline persistence failed: %w", err)
					}
				}
			}

			if cmd.Bool("json") {
				return printJSON(result)
			}

			fmt.Print(ui.RenderSyncResult(result))
			if result.Err != nil {
				return fmt.Errorf("sync failed: %w", result.Err)
			}
			return nil
		},
	}
}

func diffCommand() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Compare two memory snapshots",
		UsageText: "memsync diff [options] <previous.json> <current.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "tier",
				Usage: "Restrict the diff to one tier",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit the diff as JSON",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 2 {
				return errors.New("diff requires exactly 2 arguments: <previous.json> <current.json>")
			}

			previous, err := loadSnapshot(args.Get(0))
			if err != nil {
				return err
			}
			current, err := loadSnapshot(args.Get(1))
			if err != nil {
				return err
			}

			tier := model.Tier(cmd.String("tier"))
			if tier != "" && !tier.IsValid() {
				return fmt.Errorf("unknown tier: %q", tier)
			}

			calc := sync.NewCalculator()
			diff := calc.Diff(model.EntriesByID(current), model.EntriesByID(previous), tier)

			if cmd.Bool("json") {
				return printJSON(diff)
			}

			fmt.Print(ui.RenderDiff(diff))
			return nil
		},
	}
}

func conflictsCommand() *cli.Command {
	return &cli.Command{
		Name:      "conflicts",
		Usage:     "Detect and resolve conflicts between two snapshots",
		UsageText: "memsync conflicts [options] <local.json> <remote.json>",
		Description: `Detect entries modified on both sides and optionally resolve them.

   Examples:
     memsync conflicts local.json remote.json
     memsync conflicts --resolve merge local.json remote.json
     memsync conflicts --interactive local.json remote.json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "resolve",
				Aliases: []string{"r"},
				Usage:   "Resolve all detected conflicts with this strategy",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Resolve conflicts interactively",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit detected conflicts as JSON",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 2 {
				return errors.New("conflicts requires exactly 2 arguments: <local.json> <remote.json>")
			}

			local, err := loadSnapshot(args.Get(0))
			if err != nil {
				return err
			}
			remote, err := loadSnapshot(args.Get(1))
			if err != nil {
				return err
			}

			cfg, err := config.LoadOrDefault(cmd.String("config"))
			if err != nil {
				return err
			}

			resolver := sync.NewResolver(sync.ResolverOptions{
				DefaultStrategy:      sync.ResolutionStrategy(cfg.Sync.DefaultStrategy),
				AutoResolveThreshold: cfg.Sync.AutoResolveThreshold,
				HistoryLimit:         cfg.History.ResolutionLimit,
			})
			conflicts := resolver.Detect(model.EntriesByID(local), model.EntriesByID(remote))

			if cmd.Bool("json") {
				return printJSON(conflicts)
			}

			if cmd.Bool("interactive") {
				return resolveInteractive(resolver, conflicts)
			}

			if strategy := sync.ResolutionStrategy(cmd.String("resolve")); strategy != "" {
				if !strategy.IsValid() {
					return fmt.Errorf("unknown strategy: %q", strategy)
				}
				resolved := resolver.ResolveAll(strategy)
				for _, entry := range resolved {
					fmt.Println(ui.StatusSuccess(fmt.Sprintf("resolved %s (%s)", entry.ID, strategy)))
				}
				if remaining := resolver.PendingCount(); remaining > 0 {
					fmt.Println(ui.StatusWarning(fmt.Sprintf("%d conflict(s) still pending", remaining)))
				}
				return nil
			}

			fmt.Print(ui.RenderConflicts(conflicts))
			return nil
		},
	}
}

// loadSnapshot reads a JSON array of memory entries from a file.
func loadSnapshot(path string) ([]model.MemoryEntry, error) {
	// #nosec G304 - path is supplied by the user running the CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	var entries []model.MemoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}

	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("snapshot %s: entry %d has no id", path, i)
		}
		if e.Tier != "" && !e.Tier.IsValid() {
			return nil, fmt.Errorf("snapshot %s: entry %s has unknown tier %q", path, e.ID, e.Tier)
		}
	}
	return entries, nil
}

// parseTiers validates tier flag values.
func parseTiers(names []string) ([]model.Tier, error) {
	if len(names) == 0 {
		return nil, nil
	}
	tiers := make([]model.Tier, 0, len(names))
	for _, name := range names {
		tier := model.Tier(name)
		if !tier.IsValid() {
			return nil, fmt.Errorf("unknown tier: %q", name)
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
