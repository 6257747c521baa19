package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauern/memsync/internal/logging"
)

// FileLog appends events as JSON lines to a per-session file under the
// storage base path: <base>/<conversation>/<session>.events.jsonl.
type FileLog struct {
	mu             sync.Mutex
	file           *os.File
	writer         *bufio.Writer
	conversationID string
	sessionID      string
	closed         bool
}

// NewFileLog opens (creating if needed) the event log file for the given
// conversation and session.
func NewFileLog(basePath, conversationID, sessionID string) (*FileLog, error) {
	dir := filepath.Join(basePath, conversationID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}

	path := filepath.Join(dir, sessionID+".events.jsonl")
	// #nosec G304 - path is constructed from caller-supplied storage config
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	logging.Debug("event log opened",
		logging.Operation("eventlog_open"),
	)

	return &FileLog{
		file:           file,
		writer:         bufio.NewWriter(file),
		conversationID: conversationID,
		sessionID:      sessionID,
	}, nil
}

// Append writes one event as a JSON line.
func (l *FileLog) Append(ctx context.Context, eventType string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := Event{
		Type:           eventType,
		Timestamp:      time.Now(),
		ConversationID: l.conversationID,
		SessionID:      l.sessionID,
		Payload:        payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("event log is closed")
	}
	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Close flushes buffered events and closes the file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.writer.Flush(); err != nil {
		l.file.Close()
		return fmt.Errorf("failed to flush event log: %w", err)
	}
	return l.file.Close()
}
