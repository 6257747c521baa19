// Package store persists committed sync baselines so a new process can diff
// against the last synced state.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauern/memsync/internal/model"
)

const storeVersion = "1.0"

// snapshot is the on-disk form of a persisted baseline.
type snapshot struct {
	Version string             `json:"version"`
	SavedAt time.Time          `json:"saved_at"`
	State   *model.MemoryState `json:"state"`
}

// Store reads and writes baseline snapshots under a root directory, one file
// per conversation/session pair.
type Store struct {
	dir string
}

// New creates the store, making the root directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the snapshot file path for the given identity.
func (s *Store) Path(conversationID, sessionID string) string {
	return filepath.Join(s.dir, conversationID+"."+sessionID+".state.json")
}

// Load reads the persisted baseline. The second return value is false when no
// snapshot exists. A corrupted or version-mismatched snapshot is treated as
// absent so the next sync starts from an empty baseline.
func (s *Store) Load(conversationID, sessionID string) (*model.MemoryState, bool, error) {
	path := s.Path(conversationID, sessionID)
	// #nosec G304 - path is constructed from caller-supplied storage config
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read baseline: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, nil
	}
	if snap.Version != storeVersion || snap.State == nil {
		return nil, false, nil
	}
	return snap.State, true, nil
}

// Save writes the baseline atomically: a temp file in the same directory is
// renamed over the target.
func (s *Store) Save(conversationID, sessionID string, state *model.MemoryState) error {
	data, err := json.MarshalIndent(snapshot{
		Version: storeVersion,
		SavedAt: time.Now(),
		State:   state,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}

	path := s.Path(conversationID, sessionID)
	tmp, err := os.CreateTemp(s.dir, ".state-*")
	if err != nil {
		return fmt.Errorf("failed to stage baseline: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write baseline: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to commit baseline: %w", err)
	}
	return nil
}

// Clear removes the persisted baseline for the given identity.
func (s *Store) Clear(conversationID, sessionID string) error {
	err := os.Remove(s.Path(conversationID, sessionID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
