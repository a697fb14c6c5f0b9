// Package contextmgr assembles, compacts, and routes per-task context
// bundles within a project.
package contextmgr

import (
	"github.com/vfirsov/agentflow/contracts"
)

// Builder implements contracts.ContextBuilder.
type Builder struct{}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build constructs the context bundle for a task within a project:
//   - Messages: the completed output of each dependency, in Deps order.
//   - Memory: copied from project.Memory.
//   - Tools: left empty; populated by the caller from the tool registry.
//
// A dependency task missing from project.Tasks is skipped rather than
// treated as an error, matching how a partially-materialized plan is read.
func (b *Builder) Build(project *contracts.Project, taskID contracts.TaskID) (*contracts.ContextBundle, error) {
	if project == nil {
		return nil, contracts.ErrInvalidInput
	}
	task, ok := project.Tasks[taskID]
	if !ok {
		return nil, contracts.ErrTaskNotFound
	}

	bundle := &contracts.ContextBundle{
		Messages: []string{},
		Memory:   make(map[string]string),
		Tools:    []string{},
	}

	for _, depID := range task.Deps {
		depTask, ok := project.Tasks[depID]
		if !ok {
			continue
		}
		if depTask.State == contracts.TaskCompleted && depTask.Output != "" {
			bundle.Messages = append(bundle.Messages, depTask.Output)
		}
	}

	for k, v := range project.Memory {
		bundle.Memory[k] = v
	}

	return bundle, nil
}
