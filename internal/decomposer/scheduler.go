package decomposer

import (
	"fmt"
	"sort"

	"github.com/vfirsov/agentflow/contracts"
)

// Scheduler determines which tasks are ready to dispatch and applies the
// COMPLETED transition. It is stateless; callers hold the project-level lock.
type Scheduler struct{}

// NewScheduler creates a new Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// NextReady returns PENDING tasks whose dependencies are all COMPLETED,
// ordered by wave ascending, then priority descending, then creation time
// ascending. Dispatch deduplication (the _dispatched set) and resource
// availability are the executor's responsibility, not the scheduler's.
func (s *Scheduler) NextReady(project *contracts.Project) ([]contracts.TaskID, error) {
	if project == nil || project.DAG == nil || project.Tasks == nil {
		return nil, fmt.Errorf("project, dag, or tasks nil: %w", contracts.ErrInvalidInput)
	}

	var ready []*contracts.Task
	for id, node := range project.DAG.Nodes {
		task, ok := project.Tasks[id]
		if !ok {
			continue
		}
		if task.State != contracts.TaskPending {
			continue
		}
		if node.Pending != 0 {
			continue
		}
		ready = append(ready, task)
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Wave != ready[j].Wave {
			return ready[i].Wave < ready[j].Wave
		}
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		if ready[i].CreatedAt != ready[j].CreatedAt {
			return ready[i].CreatedAt < ready[j].CreatedAt
		}
		return ready[i].ID < ready[j].ID
	})

	ids := make([]contracts.TaskID, len(ready))
	for i, t := range ready {
		ids[i] = t.ID
	}
	return ids, nil
}

// MarkComplete is the only place a task transitions to COMPLETED. It records
// the output and decrements the Pending counter of every dependent node,
// making those dependents newly eligible for NextReady.
func (s *Scheduler) MarkComplete(project *contracts.Project, taskID contracts.TaskID, output string, usage contracts.Usage) error {
	if project == nil || project.DAG == nil {
		return fmt.Errorf("project or dag nil: %w", contracts.ErrInvalidInput)
	}
	task, ok := project.Tasks[taskID]
	if !ok {
		return fmt.Errorf("task %q: %w", taskID, contracts.ErrTaskNotFound)
	}
	if task.State.IsTerminal() {
		return fmt.Errorf("task %q already terminal (%s): %w", taskID, task.State, contracts.ErrTaskFailed)
	}

	task.State = contracts.TaskCompleted
	task.Output = output
	task.ActualUse = usage

	node, ok := project.DAG.Nodes[taskID]
	if !ok {
		return fmt.Errorf("task %q missing dag node: %w", taskID, contracts.ErrDAGInvalid)
	}
	for _, next := range node.Next {
		if nextNode, ok := project.DAG.Nodes[next]; ok && nextNode.Pending > 0 {
			nextNode.Pending--
		}
	}
	return nil
}

// IsBlocked reports whether a PENDING task should be displayed as BLOCKED:
// it has at least one dependency that is not yet COMPLETED. BLOCKED is
// derived at read time, never stored (see contracts.TaskState docs).
func IsBlocked(project *contracts.Project, taskID contracts.TaskID) bool {
	node, ok := project.DAG.Nodes[taskID]
	if !ok {
		return false
	}
	return node.Pending > 0
}
