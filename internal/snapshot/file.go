package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// FileStore keeps the snapshot as a JSON file on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the snapshot location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, "vaultdrive", "guest_session.json"), nil
}

// Load reads the snapshot. A missing file yields ErrNoSnapshot; an
// unparseable file is removed and also yields ErrNoSnapshot.
func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.SessionID == "" {
		log.Warn().Str("path", s.path).Msg("discarding malformed session snapshot")
		_ = os.Remove(s.path)
		return nil, ErrNoSnapshot
	}
	return &snap, nil
}

// Save writes the snapshot atomically via a temp file rename.
func (s *FileStore) Save(snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Clear removes the snapshot. Removing an absent snapshot is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}
