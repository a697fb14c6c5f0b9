// Package router maps a task's declared type and complexity to a concrete
// provider and model. Pricing is not part of the result; it is looked up on
// the catalog's ModelInfo.
package router

import (
	"fmt"

	"github.com/vfirsov/agentflow/contracts"
)

// complexityRoles maps a plan's declared complexity (config.ValidComplexities)
// to the model role that should handle it. Unknown complexity falls back to
// RoleBalanced.
var complexityRoles = map[string]contracts.ModelRole{
	"simple":  contracts.RoleFast,
	"medium":  contracts.RoleBalanced,
	"complex": contracts.RoleFlagship,
}

// Router is a pure function (task type, complexity) -> (provider, model),
// backed by a ModelCatalog for role-to-model resolution. It does not mutate
// any state and is safe for concurrent use.
type Router struct {
	catalog contracts.ModelCatalog
	// taskTypeOverrides forces specific task types to a fixed role
	// regardless of complexity, e.g. "summarize" always routed RoleFast.
	taskTypeOverrides map[string]contracts.ModelRole
}

// NewRouter builds a Router over catalog with no task-type overrides.
func NewRouter(catalog contracts.ModelCatalog) *Router {
	return &Router{catalog: catalog, taskTypeOverrides: map[string]contracts.ModelRole{}}
}

// SetTaskTypeOverride pins every task of taskType to role, bypassing the
// complexity-based lookup.
func (r *Router) SetTaskTypeOverride(taskType string, role contracts.ModelRole) {
	r.taskTypeOverrides[taskType] = role
}

// Route resolves (taskType, complexity) to a provider and model.
func (r *Router) Route(taskType, complexity string) (contracts.Provider, contracts.ModelID, error) {
	role, ok := r.taskTypeOverrides[taskType]
	if !ok {
		role, ok = complexityRoles[complexity]
		if !ok {
			role = contracts.RoleBalanced
		}
	}

	info, ok := r.catalog.GetByRole(role)
	if !ok {
		return "", "", fmt.Errorf("role %q: %w", role, contracts.ErrModelUnknown)
	}
	return info.Provider, info.ID, nil
}
