package llm

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Role names used by the orchestration core.
const (
	RolePlanner  = "planner"
	RoleDoer     = "doer"
	RoleExplorer = "explorer"
	RoleTester   = "tester"
)

const defaultRouterCacheSize = 32

// Router resolves a role to a provider. Roles without an explicit model use
// the base provider; roles with one get a clone from ModelCloner, cached by
// model name so repeated requests reuse the same instance.
type Router struct {
	base   Provider
	mu     sync.RWMutex
	models map[string]string
	cache  *lru.Cache[string, Provider]
}

// NewRouter creates a router over base with the given role→model mapping.
func NewRouter(base Provider, models map[string]string, cacheSize int) (*Router, error) {
	if base == nil {
		return nil, fmt.Errorf("base provider is required")
	}
	if cacheSize <= 0 {
		cacheSize = defaultRouterCacheSize
	}
	cache, err := lru.New[string, Provider](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider cache: %w", err)
	}
	m := make(map[string]string, len(models))
	for role, model := range models {
		if model != "" {
			m[role] = model
		}
	}
	return &Router{base: base, models: m, cache: cache}, nil
}

// For returns the provider for role.
func (r *Router) For(role string) Provider {
	r.mu.RLock()
	model := r.models[role]
	r.mu.RUnlock()
	return r.WithModel(model)
}

// WithModel returns a provider for an explicit model name. An empty name or
// a base provider that cannot clone yields the base provider.
func (r *Router) WithModel(model string) Provider {
	if model == "" || model == r.base.GetModel() {
		return r.base
	}
	cloner, ok := r.base.(ModelCloner)
	if !ok {
		return r.base
	}
	if p, ok := r.cache.Get(model); ok {
		return p
	}
	p := cloner.CloneWithModel(model)
	r.cache.Add(model, p)
	return p
}

// SetModel overrides the model for a role.
func (r *Router) SetModel(role, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if model == "" {
		delete(r.models, role)
		return
	}
	r.models[role] = model
}

// Model returns the effective model name for role.
func (r *Router) Model(role string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m := r.models[role]; m != "" {
		return m
	}
	return r.base.GetModel()
}
