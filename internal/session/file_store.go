package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps the snapshot as a JSON file in a local directory.
type FileStore struct {
	path   string
	userID string
	now    func() time.Time
}

// NewFileStore stores the snapshot under dir. userID, when set, rejects
// snapshots saved by another user.
func NewFileStore(dir, userID string) *FileStore {
	return &FileStore{
		path:   filepath.Join(dir, Key+".json"),
		userID: userID,
		now:    time.Now,
	}
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.UserID == "" {
		snap.UserID = s.userID
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Load returns the saved snapshot. Expired, foreign or unreadable documents
// are removed and reported as absent.
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("discarding corrupt session file", "path", s.path, "error", err)
		return nil, s.Clear(ctx)
	}
	if !usable(&snap, s.userID, s.now()) {
		return nil, s.Clear(ctx)
	}
	return &snap, nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
