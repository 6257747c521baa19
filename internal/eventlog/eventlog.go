// Package eventlog provides the append-only semantic event log the sync
// engine reports to. The engine only appends; reading and retention are the
// consumer's concern.
package eventlog

import (
	"context"
	"time"
)

// Event types emitted by the sync engine.
const (
	// EventSyncStarted marks the beginning of a sync operation.
	EventSyncStarted = "sync.started"

	// EventSyncConflictResolved marks one resolved conflict.
	EventSyncConflictResolved = "sync.conflict_resolved"

	// EventSyncCompleted marks a finished sync operation.
	EventSyncCompleted = "sync.completed"

	// EventSyncFailed marks an aborted sync operation.
	EventSyncFailed = "sync.failed"
)

// Event is one appended record.
type Event struct {
	Type           string         `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	ConversationID string         `json:"conversation_id"`
	SessionID      string         `json:"session_id"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Appender is the write-side contract of the event log.
type Appender interface {
	// Append records one event. Implementations must preserve append order.
	Append(ctx context.Context, eventType string, payload map[string]any) error

	// Close flushes buffered events and releases resources.
	Close() error
}
