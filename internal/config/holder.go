package config

import "sync/atomic"

// Holder shares the effective configuration between the server and the
// file watcher. Readers always see a complete snapshot; Watch swaps in a
// new one on reload.
type Holder struct {
	cfg  atomic.Pointer[Config]
	path string
}

// NewHolder wraps cfg, loaded from path ("" when no file was read).
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cfg.Store(cfg)

	return h
}

// Config returns the current snapshot. Callers must not modify it.
func (h *Holder) Config() *Config {
	return h.cfg.Load()
}

func (h *Holder) Path() string {
	return h.path
}

// Update publishes cfg to subsequent Config calls.
func (h *Holder) Update(cfg *Config) {
	h.cfg.Store(cfg)
}
