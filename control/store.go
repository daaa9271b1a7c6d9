// control/store.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe runtime configuration store with reload propagation.

package control

import (
	"sync"
)

// ConfigStore holds the active Config and notifies listeners when it changes.
type ConfigStore struct {
	mu        sync.RWMutex
	config    *Config
	listeners []func(Config)
}

// NewConfigStore initializes a store with cfg as the active configuration.
func NewConfigStore(cfg *Config) *ConfigStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	return &ConfigStore{config: &c}
}

// Snapshot returns a copy of the active configuration.
func (cs *ConfigStore) Snapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return *cs.config
}

// Update validates cfg, makes it active and runs listeners synchronously.
// Pool geometry is fixed once a peer is built; listeners only see it.
func (cs *ConfigStore) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := *cfg
	cs.mu.Lock()
	cs.config = &c
	listeners := append([]func(Config){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
	return nil
}

// OnReload registers a listener called after every successful Update.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
