package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ErrFutureVersion is returned by Open when the file on disk carries a
// schemaVersion newer than this binary understands. The original
// prototype this module was distilled from persists an unversioned
// blob and has no way to detect this case; that gap is closed here.
var ErrFutureVersion = fmt.Errorf("persist: state file has a schema version newer than this binary supports")

// migration upgrades a raw decoded document in place from one schema
// version to the next. Migrations run in order starting from the
// version recorded in the file, each one bumping it by exactly one.
type migration func(doc map[string]interface{}) error

// migrations is indexed by the version a document is currently at;
// migrations[v] upgrades a document from v to v+1. Only version 0
// exists today, so this list is empty — it is the hook future fields
// get their upgrade step added to.
var migrations = []migration{}

// Store is a crash-safe, single-file JSON store for a State, following
// the rename-into-place discipline in §4.1: write `<path>.new`, rename
// the existing file to `<path>.old`, rename `<path>.new` to `<path>`,
// then delete `<path>.old`. A crash between any two of those steps
// leaves enough on disk for Open to recover deterministically.
//
// Grounded on channeldb/db.go's createChannelDB/Open pair: that file
// guards bucket creation with os.MkdirAll and a fileExists check
// before opening bolt; the same fileExists idiom is reused here to
// decide which of <path>/<path>.old/<path>.new survived a crash.
type Store struct {
	path string
}

// NewStore returns a Store backed by path. The containing directory is
// created (mode 0700, matching createChannelDB) on first Save if it
// does not already exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Open loads the state file, first resolving any crash left mid-save:
// if a `.old` file exists and the primary file does not, the `.old`
// file is the last known-good state and is adopted in its place;
// otherwise a stray `.old` left over from an interrupted cleanup step
// is discarded. If neither file exists, Open returns a fresh,
// zero-value State so a node can start from scratch.
func (s *Store) Open() (*State, error) {
	oldPath := s.path + ".old"

	switch {
	case !fileExists(s.path) && fileExists(oldPath):
		if err := os.Rename(oldPath, s.path); err != nil {
			return nil, fmt.Errorf("persist: recovering %s from %s: %w", s.path, oldPath, err)
		}
	case fileExists(s.path) && fileExists(oldPath):
		if err := os.Remove(oldPath); err != nil {
			return nil, fmt.Errorf("persist: discarding stale %s: %w", oldPath, err)
		}
	}

	if !fileExists(s.path) {
		return &State{SchemaVersion: currentSchemaVersion}, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("persist: reading %s: %w", s.path, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("persist: decoding %s: %w", s.path, err)
	}

	version := 0
	if v, ok := doc["schemaVersion"].(float64); ok {
		version = int(v)
	}
	if version > currentSchemaVersion {
		return nil, ErrFutureVersion
	}
	for v := version; v < currentSchemaVersion; v++ {
		if err := migrations[v](doc); err != nil {
			return nil, fmt.Errorf("persist: migrating schema v%d->v%d: %w", v, v+1, err)
		}
	}

	migrated, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("persist: re-encoding migrated %s: %w", s.path, err)
	}

	var state State
	if err := json.Unmarshal(migrated, &state); err != nil {
		return nil, fmt.Errorf("persist: unmarshaling %s: %w", s.path, err)
	}
	state.SchemaVersion = currentSchemaVersion
	return &state, nil
}

// Save writes state to disk using the rename-into-place protocol. It
// is the only write path a Node's event loop ever calls, and per §5 it
// is always called from that single loop goroutine — Store applies no
// locking of its own.
func (s *Store) Save(state *State) error {
	state.SchemaVersion = currentSchemaVersion

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("persist: creating state directory: %w", err)
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: encoding state: %w", err)
	}

	newPath := s.path + ".new"
	oldPath := s.path + ".old"

	if err := os.WriteFile(newPath, raw, 0600); err != nil {
		return fmt.Errorf("persist: writing %s: %w", newPath, err)
	}

	if fileExists(s.path) {
		if err := os.Rename(s.path, oldPath); err != nil {
			return fmt.Errorf("persist: renaming %s to %s: %w", s.path, oldPath, err)
		}
	}

	if err := os.Rename(newPath, s.path); err != nil {
		return fmt.Errorf("persist: renaming %s to %s: %w", newPath, s.path, err)
	}

	if fileExists(oldPath) {
		if err := os.Remove(oldPath); err != nil {
			return fmt.Errorf("persist: removing %s: %w", oldPath, err)
		}
	}

	log.Debugf("persist: saved state to %s", s.path)
	return nil
}
