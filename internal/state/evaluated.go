package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EvaluatedSet remembers which comment identifiers have already been
// through the oracle, so re-runs never pay for the same judgement twice.
type EvaluatedSet struct {
	path      string
	ids       map[string]struct{}
	LastCheck time.Time
}

type evaluatedJSON struct {
	EvaluatedIDs []string  `json:"evaluated_ids"`
	LastCheck    time.Time `json:"last_check"`
}

// NewEvaluatedSet creates a set backed by the given JSON file.
func NewEvaluatedSet(path string) *EvaluatedSet {
	return &EvaluatedSet{path: path, ids: make(map[string]struct{})}
}

// Load restores the set from disk; a missing file means nothing has been
// judged yet.
func (s *EvaluatedSet) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read evaluated set: %w", err)
	}

	var raw evaluatedJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse evaluated set: %w", err)
	}
	for _, id := range raw.EvaluatedIDs {
		s.ids[id] = struct{}{}
	}
	s.LastCheck = raw.LastCheck
	return nil
}

// Save writes the set atomically.
func (s *EvaluatedSet) Save() error {
	raw := evaluatedJSON{
		EvaluatedIDs: make([]string, 0, len(s.ids)),
		LastCheck:    s.LastCheck,
	}
	for id := range s.ids {
		raw.EvaluatedIDs = append(raw.EvaluatedIDs, id)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal evaluated set: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write evaluated set: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace evaluated set: %w", err)
	}
	return nil
}

// Contains reports whether the identifier has already been judged.
func (s *EvaluatedSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add marks an identifier as judged.
func (s *EvaluatedSet) Add(id string) {
	s.ids[id] = struct{}{}
}

// Len returns the number of judged identifiers.
func (s *EvaluatedSet) Len() int { return len(s.ids) }
