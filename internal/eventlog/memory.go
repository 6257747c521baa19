package eventlog

import (
	"context"
	"sync"
	"time"
)

// MemoryLog keeps appended events in memory. Used in tests and when no
// storage base path is configured.
type MemoryLog struct {
	mu             sync.Mutex
	events         []Event
	conversationID string
	sessionID      string
	closed         bool
}

// NewMemoryLog creates an empty in-memory event log.
func NewMemoryLog(conversationID, sessionID string) *MemoryLog {
	return &MemoryLog{
		conversationID: conversationID,
		sessionID:      sessionID,
	}
}

// Append records one event.
func (l *MemoryLog) Append(ctx context.Context, eventType string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{
		Type:           eventType,
		Timestamp:      time.Now(),
		ConversationID: l.conversationID,
		SessionID:      l.sessionID,
		Payload:        payload,
	})
	return nil
}

// Close marks the log closed. Appends after Close still succeed; the
// in-memory log has nothing to flush.
func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Events returns a copy of the appended events in order.
func (l *MemoryLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// EventsOfType returns the appended events matching the given type.
func (l *MemoryLog) EventsOfType(eventType string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
