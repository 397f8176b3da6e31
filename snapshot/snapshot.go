// Package snapshot persists the estimator's learned capacity and resume
// state across restarts. The file is a human-diffable JSON record written
// with an atomic replace, so independent reader processes never observe a
// half-written snapshot.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// SchemaVersion tags the snapshot layout. A snapshot with a different
// version is treated like a missing one.
const SchemaVersion = 1

// ErrNotExist is returned by Load when no snapshot has been written yet.
var ErrNotExist = errors.New("no snapshot file")

// Snapshot is the persisted union of the estimator state needed to resume
// and the learned capacity model. Unknown fields in the file are ignored;
// missing fields keep their zero value and are defaulted by the caller.
type Snapshot struct {
	SchemaVersion        int       `json:"schema_version"`
	NominalCapacityMAh   float64   `json:"nominal_capacity_mah"`
	LearnedCapacityMAh   float64   `json:"learned_capacity_mah"`
	LearningConfidence   int       `json:"learning_confidence"`
	AccumulatedChargeMAh float64   `json:"accumulated_charge_mah"`
	BlendedSOCPct        float64   `json:"blended_soc_pct"`
	ChargeStatus         string    `json:"charge_status"`
	LastSampleAt         time.Time `json:"last_sample_at"`
	SavedAt              time.Time `json:"saved_at"`
}

// Store reads and writes the snapshot file. The estimator daemon is the
// sole writer; Acquire enforces that with a file lock next to the snapshot.
type Store struct {
	path string
	lock *flock.Flock
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Acquire takes the single-writer lock. It fails fast when another daemon
// already owns the snapshot.
func (s *Store) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking %s: %w", s.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("snapshot %s is locked by another process", s.path)
	}
	return nil
}

// Release drops the single-writer lock.
func (s *Store) Release() error {
	return s.lock.Unlock()
}

// Load reads the persisted snapshot. Missing file, corrupt content, and
// schema mismatch all come back as errors the caller recovers from by
// starting with defaults; none of them is fatal.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", s.path, err)
	}
	if snap.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("snapshot schema version %d, want %d", snap.SchemaVersion, SchemaVersion)
	}
	return &snap, nil
}

// Save writes the snapshot to a temporary file in the same directory and
// atomically replaces the previous one.
func (s *Store) Save(snap *Snapshot) error {
	snap.SchemaVersion = SchemaVersion
	snap.SavedAt = time.Now().Truncate(time.Second)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
