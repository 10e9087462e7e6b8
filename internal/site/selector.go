// Package site holds the active site selection and persists it between
// invocations.
package site

import (
	"fmt"
	"sync"

	"github.com/schaermu/sitesync/internal/config"
)

// Selector holds zero or one selected site. It stores a reference to the
// Site published in a config snapshot, never a copy.
type Selector struct {
	mu      sync.RWMutex
	current *config.Site
}

// NewSelector returns an empty Selector.
func NewSelector() *Selector {
	return &Selector{}
}

// Select makes s the active site.
func (sel *Selector) Select(s *config.Site) {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	sel.current = s
}

// SelectKey selects the site of cfg with the given key.
func (sel *Selector) SelectKey(cfg *config.Config, key string) (*config.Site, error) {
	s := cfg.Site(key)
	if s == nil {
		return nil, fmt.Errorf("unknown site %q", key)
	}
	sel.Select(s)
	return s, nil
}

// Deselect clears the selection.
func (sel *Selector) Deselect() {
	sel.Select(nil)
}

// Current returns the selected site, or nil.
func (sel *Selector) Current() *config.Site {
	sel.mu.RLock()
	defer sel.mu.RUnlock()
	return sel.current
}

// Adopt re-resolves the selection against a new config snapshot. The site
// with the same key replaces the old instance; when it no longer exists the
// selection is cleared. It returns the new selection.
func (sel *Selector) Adopt(cfg *config.Config) *config.Site {
	sel.mu.Lock()
	defer sel.mu.Unlock()

	if sel.current == nil {
		return nil
	}
	sel.current = cfg.Site(sel.current.Key())
	return sel.current
}
