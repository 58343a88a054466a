// Package store persists the whole control-plane state as a single JSON
// document. Every mutation rewrites the document, mirroring how small the
// state is expected to stay; readers always get a complete, consistent
// snapshot.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DevSkits916/postdeck/internal/logger"
	"github.com/DevSkits916/postdeck/internal/schema"
)

// Settings holds operator preferences carried alongside the queue.
type Settings struct {
	Debug bool   `json:"debug"`
	Theme string `json:"theme"`
}

// State is the persisted document. Zero value is a valid empty state.
type State struct {
	Accounts  []*schema.Account         `json:"accounts"`
	Queue     []*schema.Job             `json:"queue"`
	Analytics []*schema.AnalyticsRecord `json:"analytics"`
	Templates []*schema.Template        `json:"templates"`
	Settings  Settings                  `json:"settings"`
}

// DefaultState returns the state used when nothing has been persisted yet.
func DefaultState() *State {
	return &State{Settings: Settings{Theme: "dark"}}
}

// Store reads and writes the state document at a fixed path.
type Store struct {
	path string
	log  logger.Logger
}

// New creates a store backed by the file at path.
func New(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	return &Store{path: path, log: log.WithComponent(logger.ComponentStore)}
}

// Load reads the persisted state. A missing or unparsable document is not an
// error: operators lose nothing worse than an empty queue, so both cases
// fall back to the default state. Only I/O failures other than absence
// propagate.
func (s *Store) Load() (*State, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.log.Info("no persisted state found, starting fresh", "path", s.path)
		return DefaultState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	state := DefaultState()
	if err := json.Unmarshal(raw, state); err != nil {
		s.log.Warn("persisted state is unparsable, starting fresh",
			"path", s.path,
			"error", err)
		return DefaultState(), nil
	}
	return state, nil
}

// Save writes the state atomically: the document lands in a temp file first
// and is renamed into place, so a crash mid-write never leaves a truncated
// document behind.
func (s *Store) Save(state *State) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state: %w", err)
	}

	s.log.Debug("state persisted",
		"path", s.path,
		"accounts", len(state.Accounts),
		"queue", len(state.Queue))
	return nil
}
