package config

import "sync"

// Holder provides thread-safe access to a mutable *Config and an immutable
// config file path. The HTTP server and the reload watcher share one
// Holder, so a config file change updates consumers in exactly one place.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string // immutable after construction
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{
		cfg:  cfg,
		path: path,
	}
}

// Config returns the current config snapshot. Thread-safe (read lock).
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path. Immutable, so no locking needed.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config. Called by the reload watcher.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}
