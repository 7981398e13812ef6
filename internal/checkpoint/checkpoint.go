// Package checkpoint persists resumable progress of a company extraction
// run.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MikeSquared-Agency/enrich/internal/fields"
)

// FileName is the checkpoint's name inside the results directory.
const FileName = "checkpoint.json"

// State is the on-disk checkpoint. Callers serialise access.
type State struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	LastSavedAt time.Time       `json:"last_saved_at"`
	Processed   []string        `json:"processed"`
	Records     []fields.Record `json:"records"`
	Errors      []string        `json:"errors"`

	path string
	seen map[string]bool
}

// New returns an empty state that saves to path.
func New(path, runID string) *State {
	return &State{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		path:      path,
		seen:      map[string]bool{},
	}
}

// Load reads the state at path. A missing file yields a fresh state with the
// given run id.
func Load(path, runID string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(path, runID), nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	s.path = path
	s.seen = make(map[string]bool, len(s.Processed))
	for _, id := range s.Processed {
		s.seen[id] = true
	}
	return &s, nil
}

// Save writes the state atomically.
func (s *State) Save() error {
	s.LastSavedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// IsProcessed reports whether the document id has been recorded.
func (s *State) IsProcessed(id string) bool {
	return s.seen[id]
}

// MarkProcessed records a finished document and, if non-nil, its record.
func (s *State) MarkProcessed(id string, rec fields.Record) {
	if s.seen[id] {
		return
	}
	s.seen[id] = true
	s.Processed = append(s.Processed, id)
	if rec != nil {
		s.Records = append(s.Records, rec)
	}
}

func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// Remove deletes the checkpoint file, e.g. after a run completes.
func (s *State) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
