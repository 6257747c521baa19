package sync

import (
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/klauern/memsync/internal/logging"
)

// State is the coarse status of the engine, independent of sync logic and
// observable by external UI.
type State string

const (
	// StateIdle means no sync is running.
	StateIdle State = "idle"

	// StateSyncing means a sync is in flight.
	StateSyncing State = "syncing"

	// StateError means the last sync failed.
	StateError State = "error"

	// StateConflict means unresolved conflicts are pending.
	StateConflict State = "conflict"

	// StateScheduled means a periodic sync is armed.
	StateScheduled State = "scheduled"

	// StatePaused means automatic syncing is suspended.
	StatePaused State = "paused"
)

// Phase names one step of an in-flight sync. Phases are monotonic but not
// necessarily all visited.
type Phase string

const (
	PhasePreparing          Phase = "preparing"
	PhaseCalculatingDiff    Phase = "calculating-diff"
	PhaseResolvingConflicts Phase = "resolving-conflicts"
	PhaseApplyingChanges    Phase = "applying-changes"
	PhaseValidating         Phase = "validating"
	PhaseComplete           Phase = "complete"
)

// phasePercents maps each phase to its fixed progress percentage.
var phasePercents = map[Phase]float64{
	PhasePreparing:          5,
	PhaseCalculatingDiff:    20,
	PhaseResolvingConflicts: 40,
	PhaseApplyingChanges:    70,
	PhaseValidating:         90,
	PhaseComplete:           100,
}

// Percent returns the phase's fixed progress percentage.
func (p Phase) Percent() float64 {
	return phasePercents[p]
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Progress is the ephemeral state of an in-flight sync.
type Progress struct {
	SyncID           string    `json:"sync_id"`
	Phase            Phase     `json:"phase"`
	Percent          float64   `json:"percent"`
	ProcessedEntries int       `json:"processed_entries"`
	TotalEntries     int       `json:"total_entries"`
	StartedAt        time.Time `json:"started_at"`
	ElapsedMs        int64     `json:"elapsed_ms"`

	// EstimatedRemainingMs extrapolates linearly from elapsed time and
	// percent complete; zero when percent is 0 or 100.
	EstimatedRemainingMs int64 `json:"estimated_remaining_ms"`
}

// Outcome is the result class of a completed sync.
type Outcome string

const (
	// OutcomeSuccess means every change applied cleanly.
	OutcomeSuccess Outcome = "success"

	// OutcomePartial means the sync completed with per-entry errors.
	OutcomePartial Outcome = "partial"

	// OutcomeFailed means the sync aborted.
	OutcomeFailed Outcome = "failed"
)

// Info is the record of one completed sync.
type Info struct {
	SyncID            string        `json:"sync_id"`
	Mode              Mode          `json:"mode"`
	Outcome           Outcome       `json:"outcome"`
	StartedAt         time.Time     `json:"started_at"`
	CompletedAt       time.Time     `json:"completed_at"`
	Duration          time.Duration `json:"duration"`
	EntriesSynced     int           `json:"entries_synced"`
	ConflictsResolved int           `json:"conflicts_resolved"`
	Error             string        `json:"error,omitempty"`
}

// ErrSyncInProgress is returned when a sync is requested while another is
// still in flight. Non-retryable for that call; the caller retries later.
var ErrSyncInProgress = errors.New("sync already in progress")

// historyLimit caps the completed-sync history.
const historyLimit = 100

// TrackerStats summarizes completed syncs.
type TrackerStats struct {
	TotalSyncs      int           `json:"total_syncs"`
	SuccessfulSyncs int           `json:"successful_syncs"`
	FailedSyncs     int           `json:"failed_syncs"`
	AverageDuration time.Duration `json:"average_duration"`
	LastSuccessAt   time.Time     `json:"last_success_at,omitzero"`
}

// Tracker is a finite-state progress tracker for sync operations. All
// transitions are driven by explicit calls; there are no timeout-based
// transitions. Two independent observer sets (state and progress) receive
// notifications; a panicking handler is logged and never aborts delivery to
// the others.
type Tracker struct {
	mu stdsync.Mutex

	state         State
	progress      *Progress
	history       []Info
	nextScheduled time.Time

	nextSubID    int
	stateSubs    map[int]func(State)
	progressSubs map[int]func(Progress)

	totalSyncs      int
	successfulSyncs int
	failedSyncs     int
	totalDuration   time.Duration
	lastSuccessAt   time.Time
}

// NewTracker creates a tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{
		state:        StateIdle,
		stateSubs:    make(map[int]func(State)),
		progressSubs: make(map[int]func(Progress)),
	}
}

// StartSync transitions to syncing and initializes in-flight progress.
func (t *Tracker) StartSync(syncID string, totalEntries int) error {
	t.mu.Lock()
	if t.state == StateSyncing {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSyncInProgress, t.progress.SyncID)
	}
	t.state = StateSyncing
	t.progress = &Progress{
		SyncID:       syncID,
		Phase:        PhasePreparing,
		Percent:      PhasePreparing.Percent(),
		TotalEntries: totalEntries,
		StartedAt:    time.Now(),
	}
	progress := *t.progress
	t.mu.Unlock()

	t.notifyState(StateSyncing)
	t.notifyProgress(progress)
	return nil
}

// SetPhase advances the in-flight sync to the given phase. Progress jumps to
// the phase's fixed percentage unless an explicit override is given.
func (t *Tracker) SetPhase(phase Phase, overridePercent ...float64) {
	t.mu.Lock()
	if t.progress == nil {
		t.mu.Unlock()
		return
	}
	percent := phase.Percent()
	if len(overridePercent) > 0 {
		percent = overridePercent[0]
	}
	t.progress.Phase = phase
	t.updateProgressLocked(percent, t.progress.ProcessedEntries)
	progress := *t.progress
	t.mu.Unlock()

	logging.Debug("sync phase changed",
		logging.SyncID(progress.SyncID),
		logging.Phase(string(phase)),
	)

	t.notifyProgress(progress)
}

// UpdateProgress sets the percent complete and processed-entry count,
// recomputing the estimated remaining time.
func (t *Tracker) UpdateProgress(percent float64, processed int) {
	t.mu.Lock()
	if t.progress == nil {
		t.mu.Unlock()
		return
	}
	t.updateProgressLocked(percent, processed)
	progress := *t.progress
	t.mu.Unlock()

	t.notifyProgress(progress)
}

// updateProgressLocked recomputes derived progress fields. Callers hold the
// mutex.
func (t *Tracker) updateProgressLocked(percent float64, processed int) {
	elapsed := time.Since(t.progress.StartedAt)
	t.progress.Percent = percent
	t.progress.ProcessedEntries = processed
	t.progress.ElapsedMs = elapsed.Milliseconds()
	if percent > 0 && percent < 100 {
		t.progress.EstimatedRemainingMs = int64(float64(elapsed.Milliseconds()) / percent * (100 - percent))
	} else {
		t.progress.EstimatedRemainingMs = 0
	}
}

// CompleteSync finalizes the in-flight sync: the info record is prepended to
// the bounded history, progress is cleared, and the state returns to idle
// (or error when the sync failed).
func (t *Tracker) CompleteSync(info Info) {
	t.mu.Lock()
	t.history = append([]Info{info}, t.history...)
	if len(t.history) > historyLimit {
		t.history = t.history[:historyLimit]
	}
	t.progress = nil

	t.totalSyncs++
	t.totalDuration += info.Duration
	next := StateIdle
	if info.Outcome == OutcomeFailed {
		t.failedSyncs++
		next = StateError
	} else {
		t.successfulSyncs++
		t.lastSuccessAt = info.CompletedAt
	}
	t.state = next
	t.mu.Unlock()

	t.notifyState(next)
}

// MarkConflict flags pending conflicts while idle.
func (t *Tracker) MarkConflict() {
	t.setIdleState(StateConflict)
}

// Pause suspends automatic syncing while idle.
func (t *Tracker) Pause() {
	t.setIdleState(StatePaused)
}

// Resume returns to idle from a paused, conflict or scheduled state.
func (t *Tracker) Resume() {
	t.mu.Lock()
	if t.state == StateSyncing {
		t.mu.Unlock()
		return
	}
	t.state = StateIdle
	t.mu.Unlock()
	t.notifyState(StateIdle)
}

// setIdleState transitions to an orthogonal state reachable from idle.
func (t *Tracker) setIdleState(s State) {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return
	}
	t.state = s
	t.mu.Unlock()
	t.notifyState(s)
}

// SetNextScheduledSync arms the scheduled state with the next trigger time.
func (t *Tracker) SetNextScheduledSync(at time.Time) {
	t.mu.Lock()
	t.nextScheduled = at
	if t.state == StateIdle {
		t.state = StateScheduled
		t.mu.Unlock()
		t.notifyState(StateScheduled)
		return
	}
	t.mu.Unlock()
}

// ClearSchedule clears scheduling state.
func (t *Tracker) ClearSchedule() {
	t.mu.Lock()
	t.nextScheduled = time.Time{}
	if t.state == StateScheduled {
		t.state = StateIdle
		t.mu.Unlock()
		t.notifyState(StateIdle)
		return
	}
	t.mu.Unlock()
}

// State returns the current tracker state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Progress returns a copy of the in-flight progress, if any.
func (t *Tracker) Progress() (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress == nil {
		return Progress{}, false
	}
	return *t.progress, true
}

// NextScheduledSync returns the armed trigger time, zero when unscheduled.
func (t *Tracker) NextScheduledSync() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextScheduled
}

// LastSyncInfo returns the most recent completed-sync record.
func (t *Tracker) LastSyncInfo() (Info, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) == 0 {
		return Info{}, false
	}
	return t.history[0], true
}

// History returns completed syncs, most recent first.
func (t *Tracker) History() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Info, len(t.history))
	copy(out, t.history)
	return out
}

// Stats summarizes completed syncs.
func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := TrackerStats{
		TotalSyncs:      t.totalSyncs,
		SuccessfulSyncs: t.successfulSyncs,
		FailedSyncs:     t.failedSyncs,
		LastSuccessAt:   t.lastSuccessAt,
	}
	if t.totalSyncs > 0 {
		stats.AverageDuration = t.totalDuration / time.Duration(t.totalSyncs)
	}
	return stats
}

// SubscribeState registers a state-change handler and returns its
// cancellation function.
func (t *Tracker) SubscribeState(handler func(State)) func() {
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.stateSubs[id] = handler
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.stateSubs, id)
		t.mu.Unlock()
	}
}

// SubscribeProgress registers a progress handler and returns its
// cancellation function.
func (t *Tracker) SubscribeProgress(handler func(Progress)) func() {
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.progressSubs[id] = handler
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.progressSubs, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) notifyState(s State) {
	t.mu.Lock()
	handlers := make([]func(State), 0, len(t.stateSubs))
	for _, h := range t.stateSubs {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	for _, h := range handlers {
		safeNotify(func() { h(s) })
	}
}

func (t *Tracker) notifyProgress(p Progress) {
	t.mu.Lock()
	handlers := make([]func(Progress), 0, len(t.progressSubs))
	for _, h := range t.progressSubs {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	for _, h := range handlers {
		safeNotify(func() { h(p) })
	}
}

// safeNotify invokes a handler, logging a panic instead of letting it abort
// delivery to the remaining handlers.
func safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("observer handler panicked",
				logging.Operation("notify"),
				logging.Err(fmt.Errorf("%v", r)),
			)
		}
	}()
	fn()
}
