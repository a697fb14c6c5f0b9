package contextmgr

import (
	"github.com/vfirsov/agentflow/contracts"
)

// Router propagates a completed task's output into shared project memory so
// downstream tasks can reference it by id even outside a direct dependency
// edge (e.g. templated prompts referencing an earlier task by name).
type Router struct{}

// NewRouter creates a new Router.
func NewRouter() *Router {
	return &Router{}
}

// Route validates that from and to both exist in project, then stores from's
// output in project.Memory keyed by the source task id.
func (r *Router) Route(project *contracts.Project, from, to contracts.TaskID, output string) error {
	if project == nil {
		return contracts.ErrInvalidInput
	}
	if _, ok := project.Tasks[from]; !ok {
		return contracts.ErrTaskNotFound
	}
	if _, ok := project.Tasks[to]; !ok {
		return contracts.ErrTaskNotFound
	}

	if project.Memory == nil {
		project.Memory = make(map[string]string)
	}
	project.Memory[string(from)] = output
	return nil
}
