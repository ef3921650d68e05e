// Package store persists one MachineRecord per workspace key as a JSON file
// under the configured data directory. The provider remains the ground truth:
// readers treat corruption as absence and writers treat failure as non-fatal.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eurekahq/wsgate/internal/core"
)

var (
	ErrNotFound = errors.New("machine record not found")
	ErrCorrupt  = errors.New("machine record corrupt")
)

// MachineRecord is the persisted state for one workspace.
type MachineRecord struct {
	MachineID string `json:"machine_id"`
}

// Store is a key-partitioned file store: no two keys share a file, and each
// file has a single writer (the owning workspace actor).
type Store struct {
	dir string
	log *zap.Logger
}

func New(dir string, log *zap.Logger) *Store {
	return &Store{dir: dir, log: log}
}

func (s *Store) path(key core.WorkspaceKey) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key.SessionID, key.User, key.Repo+".json"), nil
}

// Load reads the record for key. Missing files map to ErrNotFound; files that
// exist but do not parse into a usable record map to ErrCorrupt.
func (s *Store) Load(key core.WorkspaceKey) (MachineRecord, error) {
	p, err := s.path(key)
	if err != nil {
		return MachineRecord{}, err
	}

	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return MachineRecord{}, ErrNotFound
		}
		return MachineRecord{}, fmt.Errorf("read %s: %w", p, err)
	}

	var rec MachineRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return MachineRecord{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, p, err)
	}
	if rec.MachineID == "" {
		return MachineRecord{}, fmt.Errorf("%w: %s: missing machine_id", ErrCorrupt, p)
	}
	return rec, nil
}

// Save writes the record for key atomically (temp file + rename).
func (s *Store) Save(key core.WorkspaceKey, rec MachineRecord) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(p), err)
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".record-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("rename %s: %w", p, err)
	}

	s.log.Debug("machine record saved",
		zap.String("key", key.String()),
		zap.String("machine_id", rec.MachineID),
	)
	return nil
}
