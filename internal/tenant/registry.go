// ABOUTME: Concurrency-safe tenant registry keyed by tenant id
// ABOUTME: Lookups report absence through return values, never errors

package tenant

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry maps tenant ids to their configuration.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]Config
	logger  *slog.Logger
}

// NewRegistry creates a registry seeded with tenants. Later entries replace earlier
// ones with the same id.
func NewRegistry(logger *slog.Logger, tenants ...Config) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tenants: make(map[string]Config, len(tenants)),
		logger:  logger.With("component", "tenants"),
	}
	for _, t := range tenants {
		r.Register(t)
	}
	return r
}

// Get returns the tenant with the given id.
func (r *Registry) Get(id string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	return t, ok
}

// All returns every tenant ordered by id.
func (r *Registry) All() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

// IDs returns every tenant id in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Register inserts or replaces a tenant. Records without an id are ignored
// and reported as false.
func (r *Registry) Register(cfg Config) bool {
	if cfg.TenantID == "" {
		r.logger.Warn("ignoring tenant without tenantId", "name", cfg.Name)
		return false
	}

	r.mu.Lock()
	_, existed := r.tenants[cfg.TenantID]
	r.tenants[cfg.TenantID] = cfg
	r.mu.Unlock()

	r.logger.Debug("tenant registered",
		"tenant_id", cfg.TenantID,
		"replaced", existed,
		"usable", cfg.Usable(),
	)
	return true
}

// Validate reports whether the tenant exists and has a usable channel.
func (r *Registry) Validate(id string) bool {
	t, ok := r.Get(id)
	return ok && t.Usable()
}

// Remove deletes a tenant. The default tenant cannot be removed.
func (r *Registry) Remove(id string) bool {
	if id == DefaultID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[id]; !ok {
		return false
	}
	delete(r.tenants, id)
	return true
}

// Len returns the number of registered tenants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants)
}
