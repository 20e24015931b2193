package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// stateDocument is the on-disk shape of the run state.
type stateDocument struct {
	RunID     string                   `json:"run_id"`
	UpdatedAt string                   `json:"updated_at"`
	Results   map[string]PackageResult `json:"results"`
}

// State is the persisted map of package atom to its last terminal result.
// All mutation is serialized through one mutex and every write is followed by
// an atomic on-disk persist, so readers never observe a half-written entry
// and a crash loses at most the in-flight attempt.
type State struct {
	mu      sync.Mutex
	path    string
	runID   string
	results map[string]PackageResult
}

// LoadState opens (or creates) the run state at path. With resume set, an
// existing state file is read back so previously recorded packages are not
// re-attempted; otherwise a fresh state replaces it on the first persist.
func LoadState(path string, resume bool) (*State, error) {
	s := &State{
		path:    path,
		runID:   uuid.New().String(),
		results: make(map[string]PackageResult),
	}

	if !resume {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, NewConstructionError("failed to read state file", err)
	}

	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewConstructionError("failed to parse state file", err)
	}
	if doc.RunID != "" {
		s.runID = doc.RunID
	}
	for atom, res := range doc.Results {
		s.results[atom] = res
	}

	return s, nil
}

// RunID returns the identifier of this run (carried over on resume).
func (s *State) RunID() string {
	return s.runID
}

// Get returns the recorded result for atom, if any.
func (s *State) Get(atom string) (PackageResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[atom]
	return res, ok
}

// Record stores a terminal result and persists the full state atomically.
// An entry is only ever overwritten by a later attempt of the same package.
func (s *State) Record(res PackageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[res.Package] = res
	return s.persistLocked()
}

// DependenciesSatisfied reports whether every dependency of atom is recorded
// as success.
func (s *State) DependenciesSatisfied(atom string, deps map[string][]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dep := range deps[atom] {
		res, ok := s.results[dep]
		if !ok || res.Result != ResultSuccess {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of all recorded results.
func (s *State) Snapshot() map[string]PackageResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]PackageResult, len(s.results))
	for atom, res := range s.results {
		out[atom] = res
	}
	return out
}

// Summary aggregates the recorded results by kind.
func (s *State) Summary() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &Summary{
		Timestamp:     utcNow(),
		TotalPackages: len(s.results),
		ByResult:      make(map[ResultKind]int),
		StateFile:     s.path,
		RunID:         s.runID,
	}
	for _, res := range s.results {
		summary.ByResult[res.Result]++
	}
	return summary
}

// persistLocked writes the state document to a temporary file and renames it
// over the target. Callers must hold the mutex.
func (s *State) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	doc := stateDocument{
		RunID:     s.runID,
		UpdatedAt: utcNow(),
		Results:   s.results,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}
