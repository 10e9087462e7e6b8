package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schaermu/sitesync/internal/config"
)

// State is the persisted selection.
type State struct {
	Selected string `json:"selected,omitempty"`
}

// Store reads and writes the selection state file.
type Store struct {
	path string
}

// NewStore returns a Store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing file yields an empty State.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	return &state, nil
}

// Save writes the state file, creating its directory when needed.
func (s *Store) Save(state *State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Restore selects the persisted site of cfg in sel. A key that no longer
// names a site leaves the selection empty.
func (s *Store) Restore(sel *Selector, cfg *config.Config) (*config.Site, error) {
	state, err := s.Load()
	if err != nil {
		return nil, err
	}
	if state.Selected == "" {
		sel.Deselect()
		return nil, nil
	}
	site := cfg.Site(state.Selected)
	sel.Select(site)
	return site, nil
}

// Persist records the current selection of sel.
func (s *Store) Persist(sel *Selector) error {
	state := &State{}
	if cur := sel.Current(); cur != nil {
		state.Selected = cur.Key()
	}
	return s.Save(state)
}
