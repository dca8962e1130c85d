package deflick

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is the durable record of processing progress for one
// configuration fingerprint.
type Checkpoint struct {
	Fingerprint string    `json:"fingerprint"`
	LastBatch   int       `json:"lastBatch"`
	Mode        string    `json:"mode"`
	UpdatedAt   time.Time `json:"lastUpdated"`
}

// Store persists batch progress across process restarts. Load must treat an
// unreadable or partially written record as absent, never as an error that
// needs manual repair.
type Store interface {
	Load(fingerprint string) (Checkpoint, bool, error)
	Commit(cp Checkpoint) error
	Clear(fingerprint string) error
}

// FileStore keeps one JSON checkpoint file per fingerprint in a directory.
// Commits write a temporary file and rename it over the old record, so a
// crash mid-write never leaves a torn checkpoint behind.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint+".checkpoint.json")
}

func (s *FileStore) Load(fingerprint string) (Checkpoint, bool, error) {
	data, err := os.ReadFile(s.path(fingerprint))
	if err != nil {
		// Missing or unreadable both mean: start from batch zero.
		return Checkpoint{}, false, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, nil
	}

	if cp.Fingerprint != fingerprint {
		return Checkpoint{}, false, nil
	}

	return cp, true, nil
}

func (s *FileStore) Commit(cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}

	target := s.path(cp.Fingerprint)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, target)
}

func (s *FileStore) Clear(fingerprint string) error {
	err := os.Remove(s.path(fingerprint))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
