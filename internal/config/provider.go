package config

import "sync/atomic"

// Provider publishes the current configuration snapshot. Readers take a
// snapshot once per operation; Store replaces it without mutating the old one.
type Provider struct {
	current atomic.Pointer[Config]
}

// NewProvider creates a Provider holding cfg.
func NewProvider(cfg *Config) *Provider {
	p := &Provider{}
	p.current.Store(cfg)
	return p
}

// Current returns the active snapshot.
func (p *Provider) Current() *Config {
	return p.current.Load()
}

// Store publishes a new snapshot.
func (p *Provider) Store(cfg *Config) {
	p.current.Store(cfg)
}
