package mapping

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Registry errors.
var (
	ErrNotFound      = errors.New("mapping configuration not found")
	ErrAlreadyExists = errors.New("mapping configuration already exists")
)

// Registry holds mapping configurations keyed by name. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Configuration
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]Configuration)}
}

// Create adds a new configuration. The configuration must validate cleanly
// and its name must be unused.
func (r *Registry) Create(cfg Configuration) error {
	if res := cfg.Validate(); !res.Valid {
		return errors.New("configuration is invalid: " + res.Errors[0])
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[cfg.Name]; exists {
		return ErrAlreadyExists
	}
	r.configs[cfg.Name] = cfg
	return nil
}

// Update replaces an existing configuration, preserving its creation time.
func (r *Registry) Update(cfg Configuration, now time.Time) error {
	if res := cfg.Validate(); !res.Valid {
		return errors.New("configuration is invalid: " + res.Errors[0])
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.configs[cfg.Name]
	if !ok {
		return ErrNotFound
	}
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = now
	r.configs[cfg.Name] = cfg
	return nil
}

// Get returns the configuration with the given name.
func (r *Registry) Get(name string) (Configuration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	if !ok {
		return Configuration{}, ErrNotFound
	}
	return cfg, nil
}

// List returns all configurations ordered by name.
func (r *Registry) List() []Configuration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Configuration, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes a configuration by name.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[name]; !ok {
		return ErrNotFound
	}
	delete(r.configs, name)
	return nil
}
