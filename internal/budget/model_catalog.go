// Package budget provides model pricing, token estimation, and budget
// reservation bookkeeping for projects.
package budget

import (
	"fmt"
	"sync"

	"github.com/vfirsov/agentflow/contracts"
)

// DefaultModels is the built-in catalog of Anthropic models and their
// published per-token pricing.
var DefaultModels = []contracts.ModelInfo{
	{ID: "claude-opus-4-5-20251101", Provider: "anthropic", MaxContext: 200000, InputCostPer1M: 15.0, OutputCostPer1M: 75.0, DefaultRole: contracts.RoleFlagship, SupportsTools: true},
	{ID: "claude-sonnet-4-5-20250929", Provider: "anthropic", MaxContext: 200000, InputCostPer1M: 3.0, OutputCostPer1M: 15.0, DefaultRole: contracts.RoleBalanced, SupportsTools: true},
	{ID: "claude-opus-4-20250514", Provider: "anthropic", MaxContext: 200000, InputCostPer1M: 15.0, OutputCostPer1M: 75.0, DefaultRole: contracts.RoleFlagship, SupportsTools: true},
	{ID: "claude-sonnet-4-20250514", Provider: "anthropic", MaxContext: 200000, InputCostPer1M: 3.0, OutputCostPer1M: 15.0, DefaultRole: contracts.RoleBalanced, SupportsTools: true},
	{ID: "claude-3-5-sonnet-20240620", Provider: "anthropic", MaxContext: 200000, InputCostPer1M: 3.0, OutputCostPer1M: 15.0, DefaultRole: contracts.RoleBalanced, SupportsTools: true},
	{ID: "claude-3-haiku-20240307", Provider: "anthropic", MaxContext: 200000, InputCostPer1M: 0.25, OutputCostPer1M: 1.25, DefaultRole: contracts.RoleFast, SupportsTools: true},
}

// DefaultRoleMappings assigns one model per role out of DefaultModels.
var DefaultRoleMappings = map[contracts.ModelRole]contracts.ModelID{
	contracts.RoleFlagship: "claude-opus-4-5-20251101",
	contracts.RoleBalanced: "claude-sonnet-4-5-20250929",
	contracts.RoleFast:     "claude-3-haiku-20240307",
}

// Catalog is the in-memory, mutex-protected ModelCatalog implementation.
type Catalog struct {
	mu           sync.RWMutex
	models       map[contracts.ModelID]contracts.ModelInfo
	roleMappings map[contracts.ModelRole]contracts.ModelID
}

// NewCatalog builds a Catalog seeded with DefaultModels and DefaultRoleMappings.
func NewCatalog() *Catalog {
	models := make(map[contracts.ModelID]contracts.ModelInfo, len(DefaultModels))
	for _, m := range DefaultModels {
		models[m.ID] = m
	}
	roleMappings := make(map[contracts.ModelRole]contracts.ModelID, len(DefaultRoleMappings))
	for role, id := range DefaultRoleMappings {
		roleMappings[role] = id
	}
	return &Catalog{models: models, roleMappings: roleMappings}
}

func (c *Catalog) Get(id contracts.ModelID) (contracts.ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[id]
	return m, ok
}

func (c *Catalog) GetByRole(role contracts.ModelRole) (contracts.ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.roleMappings[role]
	if !ok {
		return contracts.ModelInfo{}, false
	}
	m, ok := c.models[id]
	return m, ok
}

func (c *Catalog) List() []contracts.ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]contracts.ModelInfo, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	return out
}

func (c *Catalog) SetRoleMapping(role contracts.ModelRole, modelID contracts.ModelID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.models[modelID]; !ok {
		return fmt.Errorf("model %q: %w", modelID, contracts.ErrModelUnknown)
	}
	c.roleMappings[role] = modelID
	return nil
}
