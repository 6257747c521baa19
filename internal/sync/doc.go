// Package sync implements the memory synchronization engine: deterministic
// state diffing with checksum-based change detection, conflict detection and
// resolution, pluggable application strategies, status tracking, and the
// orchestrating engine that ties them together.
//
// The engine reconciles two versions of a tiered, in-memory conversational
// state: the caller's current working copy and the engine's last committed
// baseline. One sync call flows through the components in order:
//
//	entries -> Calculator.NewState -> Calculator.Diff -> Resolver.Detect
//	        -> mode applier -> baseline commit -> SyncResult
//
// progress is observable throughout via the Tracker, and semantic events are
// appended to an external event log.
//
// Exactly one sync may be in flight per Engine instance. A second concurrent
// call fails immediately rather than waiting.
package sync
