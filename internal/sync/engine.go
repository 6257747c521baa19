package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"

	"github.com/klauern/memsync/internal/eventlog"
	"github.com/klauern/memsync/internal/logging"
	"github.com/klauern/memsync/internal/model"
)

// Default engine configuration values.
const (
	DefaultAutoSyncInterval         = 5 * time.Minute
	DefaultAutoSyncMessageThreshold = 10
)

// Options configures an Engine.
type Options struct {
	// ConversationID and SessionID key the engine's event log.
	ConversationID string
	SessionID      string

	// BasePath is the storage root passed through to the event log. Empty
	// means events are kept in memory.
	BasePath string

	// AutoSyncInterval is the elapsed-time threshold for NeedsSync and the
	// default periodic-sync interval. Defaults to 5 minutes.
	AutoSyncInterval time.Duration

	// AutoSyncMessageThreshold is the message count that makes NeedsSync
	// true. Defaults to 10.
	AutoSyncMessageThreshold int

	// DefaultStrategy resolves conflicts when a sync call does not override
	// it. Defaults to last-write-wins.
	DefaultStrategy ResolutionStrategy

	// AutoResolveThreshold is the recency gap that makes a conflict
	// auto-resolvable. Defaults to one minute.
	AutoResolveThreshold time.Duration

	// Log overrides the event log collaborator. Nil constructs a file log
	// under BasePath, or an in-memory log when BasePath is empty.
	Log eventlog.Appender
}

// SyncOptions configures one sync call.
type SyncOptions struct {
	// Mode selects the application policy. Defaults to full.
	Mode Mode

	// Strategy overrides the engine's default conflict strategy.
	Strategy ResolutionStrategy

	// DryRun previews the sync without resolving conflicts, applying
	// changes or committing a new baseline.
	DryRun bool

	// MaxEntries caps incremental application. Zero means unlimited.
	MaxEntries int

	// Tiers scopes tier-specific application.
	Tiers []model.Tier

	// Apply is the per-change sink changes are pushed through.
	Apply ApplyFunc

	// OnProgress receives progress updates, invoked synchronously on the
	// calling goroutine at each phase or progress change.
	OnProgress func(Progress)
}

// SyncResult is the externally visible outcome of one sync call.
type SyncResult struct {
	Success           bool          `json:"success"`
	SyncID            string        `json:"sync_id"`
	Mode              Mode          `json:"mode"`
	DryRun            bool          `json:"dry_run,omitempty"`
	EntriesSynced     int           `json:"entries_synced"`
	EntriesSkipped    int           `json:"entries_skipped"`
	ConflictsResolved int           `json:"conflicts_resolved"`
	ConflictsPending  []*Conflict   `json:"conflicts_pending,omitempty"`
	Errors            []ApplyError  `json:"errors,omitempty"`
	Duration          time.Duration `json:"duration"`
	Checksum          string        `json:"checksum,omitempty"`
	NextSyncAt        time.Time     `json:"next_sync_at"`
	Err               error         `json:"-"`
}

// Engine orchestrates sync operations and owns the last committed baseline.
// Exactly one sync may be in flight per instance; a concurrent call fails
// immediately with ErrSyncInProgress instead of queueing.
type Engine struct {
	opts     Options
	calc     *Calculator
	resolver *Resolver
	tracker  *Tracker
	log      eventlog.Appender

	mu                stdsync.Mutex
	syncing           bool
	lastState         *model.MemoryState
	messagesSinceSync int
	lastSyncAt        time.Time

	cron      *rcron.Cron
	cronEntry rcron.EntryID
}

// New creates an engine. Zero option values fall back to defaults.
func New(opts Options) (*Engine, error) {
	if opts.AutoSyncInterval <= 0 {
		opts.AutoSyncInterval = DefaultAutoSyncInterval
	}
	if opts.AutoSyncMessageThreshold <= 0 {
		opts.AutoSyncMessageThreshold = DefaultAutoSyncMessageThreshold
	}
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = StrategyLastWriteWins
	}
	if !opts.DefaultStrategy.IsValid() {
		return nil, fmt.Errorf("invalid default strategy: %q", opts.DefaultStrategy)
	}

	log := opts.Log
	if log == nil {
		if opts.BasePath != "" {
			fileLog, err := eventlog.NewFileLog(opts.BasePath, opts.ConversationID, opts.SessionID)
			if err != nil {
				return nil, err
			}
			log = fileLog
		} else {
			log = eventlog.NewMemoryLog(opts.ConversationID, opts.SessionID)
		}
	}

	return &Engine{
		opts: opts,
		calc: NewCalculator(),
		resolver: NewResolver(ResolverOptions{
			DefaultStrategy:      opts.DefaultStrategy,
			AutoResolveThreshold: opts.AutoResolveThreshold,
		}),
		tracker: NewTracker(),
		log:     log,
	}, nil
}

// Sync reconciles the caller's current entry set against the engine's
// baseline. It always returns a SyncResult; failures are reported through
// the Success flag and Err, never as a panic or naked error.
func (e *Engine) Sync(ctx context.Context, entries []model.MemoryEntry, opts SyncOptions) (result *SyncResult) {
	start := time.Now()

	if opts.Mode == "" {
		opts.Mode = ModeFull
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = e.opts.DefaultStrategy
	}

	result = &SyncResult{
		SyncID:     uuid.NewString(),
		Mode:       opts.Mode,
		DryRun:     opts.DryRun,
		NextSyncAt: start.Add(e.opts.AutoSyncInterval),
	}

	// Single-flight guard: fatal for this call, not retried internally.
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		result.Err = ErrSyncInProgress
		result.Duration = time.Since(start)
		logging.Warn("sync rejected, another sync is in progress",
			logging.SyncID(result.SyncID),
		)
		return result
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	var cancelProgress func()
	if opts.OnProgress != nil {
		cancelProgress = e.tracker.SubscribeProgress(opts.OnProgress)
		defer cancelProgress()
	}

	if err := e.tracker.StartSync(result.SyncID, len(entries)); err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	e.appendEvent(ctx, eventlog.EventSyncStarted, map[string]any{
		"sync_id": result.SyncID,
		"mode":    string(opts.Mode),
		"dry_run": opts.DryRun,
		"entries": len(entries),
	})

	logging.Info("sync started",
		logging.SyncID(result.SyncID),
		slog.String(logging.KeyMode, string(opts.Mode)),
		logging.Strategy(string(strategy)),
		logging.Count(len(entries)),
	)

	// A sync never propagates a panic: the failure is logged, reported to
	// the event log and returned as a failed result.
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("sync panicked: %v", r)
			e.failSync(ctx, result, start, err)
		}
	}()

	if err := e.runSync(ctx, entries, opts, strategy, result); err != nil {
		e.failSync(ctx, result, start, err)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)

	outcome := OutcomeSuccess
	if len(result.Errors) > 0 {
		outcome = OutcomePartial
	}
	e.tracker.CompleteSync(Info{
		SyncID:            result.SyncID,
		Mode:              result.Mode,
		Outcome:           outcome,
		StartedAt:         start,
		CompletedAt:       time.Now(),
		Duration:          result.Duration,
		EntriesSynced:     result.EntriesSynced,
		ConflictsResolved: result.ConflictsResolved,
	})
	if len(result.ConflictsPending) > 0 {
		e.tracker.MarkConflict()
	}

	e.appendEvent(ctx, eventlog.EventSyncCompleted, map[string]any{
		"sync_id":            result.SyncID,
		"mode":               string(result.Mode),
		"entries_synced":     result.EntriesSynced,
		"conflicts_resolved": result.ConflictsResolved,
		"conflicts_pending":  len(result.ConflictsPending),
		"duration_ms":        result.Duration.Milliseconds(),
	})

	logging.Info("sync completed",
		logging.SyncID(result.SyncID),
		logging.Count(result.EntriesSynced),
		slog.Duration(logging.KeyDuration, result.Duration),
	)

	return result
}

// runSync executes the phase sequence of one sync call.
func (e *Engine) runSync(ctx context.Context, entries []model.MemoryEntry, opts SyncOptions, strategy ResolutionStrategy, result *SyncResult) error {
	e.tracker.SetPhase(PhasePreparing)

	var scope model.Tier
	if len(opts.Tiers) == 1 {
		scope = opts.Tiers[0]
	}
	current := e.calc.NewState(entries, scope)
	result.Checksum = current.Checksum

	e.mu.Lock()
	baseline := e.lastState
	e.mu.Unlock()
	if baseline == nil {
		baseline = model.EmptyState()
	}

	e.tracker.SetPhase(PhaseCalculatingDiff)
	diff := e.calc.Diff(current.Entries, baseline.Entries, scope)

	// Nothing changed: complete without touching conflict resolution or
	// strategy application.
	if diff.Empty() {
		e.tracker.SetPhase(PhaseComplete)
		logging.Debug("no changes to sync",
			logging.SyncID(result.SyncID),
		)
		return nil
	}

	e.tracker.SetPhase(PhaseResolvingConflicts)
	e.mu.Lock()
	e.resolver.Detect(current.Entries, baseline.Entries)
	var resolved []model.MemoryEntry
	if !opts.DryRun {
		resolved = e.resolver.ResolveAll(strategy)
	}
	e.mu.Unlock()

	result.ConflictsResolved = len(resolved)
	for _, entry := range resolved {
		e.appendEvent(ctx, eventlog.EventSyncConflictResolved, map[string]any{
			"sync_id":  result.SyncID,
			"entry_id": entry.ID,
			"strategy": string(strategy),
		})
	}

	e.tracker.SetPhase(PhaseApplyingChanges)
	applier, err := NewApplier(opts.Mode)
	if err != nil {
		return err
	}

	applyResult := applier.Apply(diff, ApplyOptions{
		DryRun:     opts.DryRun,
		MaxEntries: opts.MaxEntries,
		Tiers:      opts.Tiers,
		Apply:      opts.Apply,
		OnProgress: func(processed, total int) {
			// Map per-change progress into the 70-90% band.
			percent := PhaseApplyingChanges.Percent()
			if total > 0 {
				percent += 20 * float64(processed) / float64(total)
			}
			e.tracker.UpdateProgress(percent, processed)
		},
	})
	result.EntriesSynced = applyResult.EntriesSynced
	result.EntriesSkipped = applyResult.EntriesSkipped
	result.Errors = applyResult.Errors

	e.tracker.SetPhase(PhaseValidating)
	if recomputed := e.calc.StateChecksum(current.EntryList()); recomputed != current.Checksum {
		return fmt.Errorf("state checksum mismatch after apply: %s != %s", recomputed, current.Checksum)
	}

	if !opts.DryRun {
		e.mu.Lock()
		e.lastState = current
		e.messagesSinceSync = 0
		e.lastSyncAt = time.Now()
		e.mu.Unlock()
	}

	e.mu.Lock()
	result.ConflictsPending = e.resolver.Pending()
	e.mu.Unlock()

	e.tracker.SetPhase(PhaseComplete)
	return nil
}

// failSync finalizes a sync that aborted with an error.
func (e *Engine) failSync(ctx context.Context, result *SyncResult, start time.Time, err error) {
	result.Success = false
	result.Err = err
	result.Duration = time.Since(start)

	logging.Error("sync failed",
		logging.SyncID(result.SyncID),
		logging.Err(err),
	)

	e.tracker.CompleteSync(Info{
		SyncID:      result.SyncID,
		Mode:        result.Mode,
		Outcome:     OutcomeFailed,
		StartedAt:   start,
		CompletedAt: time.Now(),
		Duration:    result.Duration,
		Error:       err.Error(),
	})

	e.appendEvent(ctx, eventlog.EventSyncFailed, map[string]any{
		"sync_id":     result.SyncID,
		"mode":        string(result.Mode),
		"error":       err.Error(),
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// appendEvent reports to the event log; a logging failure never fails the
// sync itself.
func (e *Engine) appendEvent(ctx context.Context, eventType string, payload map[string]any) {
	if err := e.log.Append(ctx, eventType, payload); err != nil {
		logging.Warn("failed to append event",
			logging.Operation(eventType),
			logging.Err(err),
		)
	}
}

// NeedsSync reports whether a sync is due: the first sync with no history
// always is, otherwise either the message-count threshold or the
// elapsed-time threshold makes it true.
func (e *Engine) NeedsSync() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastState == nil {
		return true
	}
	if e.messagesSinceSync >= e.opts.AutoSyncMessageThreshold {
		return true
	}
	return time.Since(e.lastSyncAt) >= e.opts.AutoSyncInterval
}

// RecordMessage increments the message-since-sync counter.
func (e *Engine) RecordMessage() {
	e.mu.Lock()
	e.messagesSinceSync++
	e.mu.Unlock()
}

// MessagesSinceSync returns the current message counter.
func (e *Engine) MessagesSinceSync() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.messagesSinceSync
}

// SchedulePeriodic arms a recurring timer that signals a sync is due by
// invoking onDue. The timer only signals: it gathers no entries and starts
// no sync itself, the caller supplies entries on its next Sync call. A zero
// interval uses the engine's AutoSyncInterval.
func (e *Engine) SchedulePeriodic(interval time.Duration, onDue func()) error {
	if interval <= 0 {
		interval = e.opts.AutoSyncInterval
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cron == nil {
		e.cron = rcron.New()
		e.cron.Start()
	} else if e.cronEntry != 0 {
		e.cron.Remove(e.cronEntry)
	}

	entry, err := e.cron.AddFunc("@every "+interval.String(), func() {
		e.tracker.SetNextScheduledSync(time.Now().Add(interval))
		logging.Debug("scheduled sync due",
			logging.Operation("schedule"),
		)
		if onDue != nil {
			onDue()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule periodic sync: %w", err)
	}

	e.cronEntry = entry
	e.tracker.SetNextScheduledSync(time.Now().Add(interval))

	logging.Info("periodic sync scheduled",
		slog.Duration("interval", interval),
	)

	return nil
}

// CancelScheduled tears down the periodic timer and clears tracker
// scheduling state. Cancellation is immediate.
func (e *Engine) CancelScheduled() {
	e.mu.Lock()
	if e.cron != nil && e.cronEntry != 0 {
		e.cron.Remove(e.cronEntry)
		e.cronEntry = 0
	}
	e.mu.Unlock()
	e.tracker.ClearSchedule()
}

// Shutdown cancels timers and flushes the event log.
func (e *Engine) Shutdown() error {
	e.CancelScheduled()

	e.mu.Lock()
	if e.cron != nil {
		e.cron.Stop()
		e.cron = nil
	}
	e.mu.Unlock()

	return e.log.Close()
}

// Status returns the tracker's current state.
func (e *Engine) Status() State {
	return e.tracker.State()
}

// Tracker exposes the status tracker for observation by external UI.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// LastSyncInfo returns the most recent completed-sync record.
func (e *Engine) LastSyncInfo() (Info, bool) {
	return e.tracker.LastSyncInfo()
}

// SeedBaseline installs entries as the committed baseline without running a
// sync. Subsequent syncs diff against the seeded state.
func (e *Engine) SeedBaseline(entries []model.MemoryEntry) {
	state := e.calc.NewState(entries, "")
	e.mu.Lock()
	e.lastState = state
	e.lastSyncAt = time.Now()
	e.mu.Unlock()
}

// LastSyncState returns the committed baseline, nil before the first
// successful sync.
func (e *Engine) LastSyncState() *model.MemoryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastState
}

// PendingConflicts returns conflicts awaiting resolution, in id order.
func (e *Engine) PendingConflicts() []*Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver.Pending()
}

// ResolveConflict settles one pending conflict with a caller-supplied entry.
func (e *Engine) ResolveConflict(id string, entry model.MemoryEntry) error {
	e.mu.Lock()
	err := e.resolver.ManualResolve(id, entry)
	remaining := e.resolver.PendingCount()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if remaining == 0 && e.tracker.State() == StateConflict {
		e.tracker.Resume()
	}
	return nil
}

// ResolveAllConflicts resolves every pending conflict with the given
// strategy (engine default when empty) and returns the number resolved.
func (e *Engine) ResolveAllConflicts(strategy ResolutionStrategy) int {
	e.mu.Lock()
	resolved := e.resolver.ResolveAll(strategy)
	remaining := e.resolver.PendingCount()
	e.mu.Unlock()
	if remaining == 0 && e.tracker.State() == StateConflict {
		e.tracker.Resume()
	}
	return len(resolved)
}

// ConflictStats returns resolver activity counters.
func (e *Engine) ConflictStats() ResolverStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver.Stats()
}
