// Package decomposer builds and validates the task dependency graph for a
// project's plan, parsing the heterogeneous depends_on entries a plan author
// may supply and computing each task's wave (scheduling depth).
package decomposer

import (
	"fmt"
	"strconv"

	"github.com/vfirsov/agentflow/contracts"
)

// ParseDepRef classifies one raw depends_on entry. Plans are authored as
// JSON, so a dependency may arrive as a JSON number (sibling index), a JSON
// string that looks like an integer (still treated as an index, matching
// common author intent), a JSON string naming a task id, or anything else
// (invalid).
func ParseDepRef(raw any) contracts.DepRef {
	switch v := raw.(type) {
	case float64:
		return contracts.DepRef{Kind: contracts.DepIndex, Index: int(v), Raw: fmt.Sprintf("%v", v)}
	case int:
		return contracts.DepRef{Kind: contracts.DepIndex, Index: v, Raw: strconv.Itoa(v)}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return contracts.DepRef{Kind: contracts.DepIndex, Index: n, Raw: v}
		}
		if v == "" {
			return contracts.DepRef{Kind: contracts.DepInvalid, Raw: v}
		}
		return contracts.DepRef{Kind: contracts.DepNamed, Name: v, Raw: v}
	default:
		return contracts.DepRef{Kind: contracts.DepInvalid, Raw: fmt.Sprintf("%v", v)}
	}
}

// ResolveDepRefs resolves a task's raw depends_on list into concrete task IDs
// given the ordered list of tasks in the plan (index references are
// positional within this list). An invalid or out-of-range reference yields
// contracts.ErrDepInvalid / contracts.ErrDepNotFound respectively.
func ResolveDepRefs(raws []any, tasks []*contracts.Task) ([]contracts.TaskID, error) {
	ids := make([]contracts.TaskID, 0, len(raws))
	for _, raw := range raws {
		ref := ParseDepRef(raw)
		switch ref.Kind {
		case contracts.DepIndex:
			if ref.Index < 0 || ref.Index >= len(tasks) {
				return nil, fmt.Errorf("depends_on index %d out of range: %w", ref.Index, contracts.ErrDepNotFound)
			}
			ids = append(ids, tasks[ref.Index].ID)
		case contracts.DepNamed:
			found := false
			for _, t := range tasks {
				if t.ID == contracts.TaskID(ref.Name) {
					ids = append(ids, t.ID)
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("depends_on name %q: %w", ref.Name, contracts.ErrDepNotFound)
			}
		default:
			return nil, fmt.Errorf("depends_on entry %q: %w", ref.Raw, contracts.ErrDepInvalid)
		}
	}
	return ids, nil
}
