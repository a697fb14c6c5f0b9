package decomposer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vfirsov/agentflow/contracts"
)

// PlanTask is one task entry in an approved plan payload, prior to
// dependency resolution.
type PlanTask struct {
	Title       string
	Description string
	TaskType    string
	Complexity  string
	DependsOn   []any
	ToolsNeeded []string
}

// PlanPayload is the approved plan handed to the Decomposer: a summary and
// an ordered list of tasks whose depends_on entries reference siblings by
// position (or, less commonly, by name).
type PlanPayload struct {
	Summary string
	Tasks   []PlanTask
}

// BuildTasks converts a plan payload into a fully dependency-resolved task
// list, then builds and validates its DAG. Unlike ResolveDepRefs, a
// depends_on entry that is out-of-range, non-numeric-and-unnamed, or
// self-referential is dropped with a logged warning rather than rejected:
// a cycle surviving that filtering is the only hard failure.
func BuildTasks(projectID contracts.ProjectID, payload PlanPayload, logger *zap.SugaredLogger) ([]*contracts.Task, *contracts.DAG, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(payload.Tasks) == 0 {
		return nil, nil, fmt.Errorf("plan has no tasks: %w", contracts.ErrInvalidInput)
	}

	tasks := make([]*contracts.Task, len(payload.Tasks))
	for i, pt := range payload.Tasks {
		tasks[i] = &contracts.Task{
			ID:          contracts.TaskID(fmt.Sprintf("task-%d", i)),
			ProjectID:   projectID,
			State:       contracts.TaskPending,
			Description: pt.Description,
			TaskType:    pt.TaskType,
			Complexity:  pt.Complexity,
		}
	}

	for i, pt := range payload.Tasks {
		task := tasks[i]
		for _, raw := range pt.DependsOn {
			ref := ParseDepRef(raw)
			switch ref.Kind {
			case contracts.DepIndex:
				if ref.Index < 0 || ref.Index >= len(tasks) {
					logger.Warnw("dropping out-of-range depends_on entry", "task", task.ID, "index", ref.Index)
					continue
				}
				if ref.Index == i {
					logger.Warnw("dropping self-referential depends_on entry", "task", task.ID, "index", ref.Index)
					continue
				}
				task.Deps = append(task.Deps, tasks[ref.Index].ID)
			case contracts.DepNamed:
				found := false
				for j, other := range tasks {
					if other.ID == contracts.TaskID(ref.Name) {
						if j == i {
							logger.Warnw("dropping self-referential depends_on entry", "task", task.ID, "name", ref.Name)
							found = true
							break
						}
						task.Deps = append(task.Deps, other.ID)
						found = true
						break
					}
				}
				if !found {
					logger.Warnw("dropping unresolved depends_on entry", "task", task.ID, "name", ref.Name)
				}
			default:
				logger.Warnw("dropping invalid depends_on entry", "task", task.ID, "raw", ref.Raw)
			}
		}
	}

	resolver := NewResolver()
	dag, err := resolver.BuildDAG(tasks)
	if err != nil {
		return nil, nil, err
	}
	if err := resolver.Validate(dag); err != nil {
		return nil, nil, err
	}
	for _, task := range tasks {
		task.Wave = dag.Nodes[task.ID].Wave
	}
	return tasks, dag, nil
}
