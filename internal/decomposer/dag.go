package decomposer

import (
	"fmt"

	"github.com/vfirsov/agentflow/contracts"
)

// Resolver builds and validates task DAGs. It is stateless and safe for
// concurrent use, matching the teacher's dependency_resolver idiom.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// BuildDAG constructs a DAG from a list of already-dependency-resolved tasks.
func (r *Resolver) BuildDAG(tasks []*contracts.Task) (*contracts.DAG, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("plan has no tasks: %w", contracts.ErrInvalidInput)
	}

	taskIDs := make(map[contracts.TaskID]bool, len(tasks))
	for _, t := range tasks {
		if taskIDs[t.ID] {
			return nil, fmt.Errorf("duplicate task id %q: %w", t.ID, contracts.ErrDAGInvalid)
		}
		taskIDs[t.ID] = true
	}

	dag := &contracts.DAG{
		Nodes: make(map[contracts.TaskID]*contracts.DAGNode, len(tasks)),
		Edges: make(map[contracts.TaskID][]contracts.TaskID, len(tasks)),
	}

	for _, t := range tasks {
		dag.Nodes[t.ID] = &contracts.DAGNode{
			ID:      t.ID,
			Deps:    append([]contracts.TaskID{}, t.Deps...),
			Next:    []contracts.TaskID{},
			Pending: len(t.Deps),
		}
	}

	for _, t := range tasks {
		for _, dep := range t.Deps {
			if !taskIDs[dep] {
				return nil, fmt.Errorf("task %q depends on unknown task %q: %w", t.ID, dep, contracts.ErrDepNotFound)
			}
			dag.Nodes[dep].Next = append(dag.Nodes[dep].Next, t.ID)
			dag.Edges[dep] = append(dag.Edges[dep], t.ID)
		}
	}

	return dag, nil
}

// Validate rejects cyclic DAGs (invariant I3) and computes each node's Wave:
// the longest dependency-chain depth, via Kahn's algorithm. A node with no
// dependencies has Wave 0; every other node's Wave is one more than the
// maximum Wave among its dependencies.
func (r *Resolver) Validate(dag *contracts.DAG) error {
	if dag == nil || len(dag.Nodes) == 0 {
		return fmt.Errorf("dag is empty: %w", contracts.ErrDAGInvalid)
	}

	inDegree := make(map[contracts.TaskID]int, len(dag.Nodes))
	wave := make(map[contracts.TaskID]int, len(dag.Nodes))
	for id, node := range dag.Nodes {
		inDegree[id] = len(node.Deps)
	}

	queue := make([]contracts.TaskID, 0, len(dag.Nodes))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
			wave[id] = 0
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		node := dag.Nodes[id]
		for _, next := range node.Next {
			if wave[next] < wave[id]+1 {
				wave[next] = wave[id] + 1
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(dag.Nodes) {
		return fmt.Errorf("%w: %d of %d tasks unreachable via topological order", contracts.ErrDAGCycle, len(dag.Nodes)-visited, len(dag.Nodes))
	}

	for id, w := range wave {
		dag.Nodes[id].Wave = w
	}

	return nil
}
