package treasury

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is the durable form of the treasury plus the confirmed pool
// identity, written after every cycle so accounting and the one-way phase
// transition survive restarts.
type Snapshot struct {
	Treasury State     `json:"treasury"`
	Pool     string    `json:"pool,omitempty"`
	SavedAt  time.Time `json:"savedAt"`
}

// Store persists treasury snapshots across process restarts.
type Store interface {
	// Load returns the last saved snapshot, or nil if none exists.
	Load() (*Snapshot, error)
	Save(snap Snapshot) error
}

// FileStore writes snapshots as JSON to a single file, atomically via a
// temp file and rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*Snapshot, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	return &snap, nil
}

func (s *FileStore) Save(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
