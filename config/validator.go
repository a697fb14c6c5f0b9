package config

import "fmt"

// Validator validates the structural shape of a plan payload.
type Validator struct{}

// NewValidator creates a new plan validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs schema-level validation of a PlanConfig: required
// fields and enum membership. Dependency index range, self-reference, and
// cycle checking are the Decomposer's job (decomposer.BuildTasks), since
// those require resolving depends_on against the full task list.
func (v *Validator) Validate(cfg *PlanConfig) error {
	if cfg == nil {
		return ErrConfigEmpty
	}
	if len(cfg.Tasks) == 0 {
		return ErrNoTasks
	}

	taskTypes := make(map[TaskType]bool, len(ValidTaskTypes()))
	for _, tt := range ValidTaskTypes() {
		taskTypes[tt] = true
	}
	complexities := make(map[Complexity]bool, len(ValidComplexities()))
	for _, c := range ValidComplexities() {
		complexities[c] = true
	}

	for i, task := range cfg.Tasks {
		if task.Description == "" {
			return fmt.Errorf("task[%d]: %w", i, ErrTaskDescriptionEmpty)
		}
		if task.TaskType != "" && !taskTypes[TaskType(task.TaskType)] {
			return fmt.Errorf("task[%d] task_type=%s: %w", i, task.TaskType, ErrUnknownTaskType)
		}
		if task.Complexity != "" && !complexities[Complexity(task.Complexity)] {
			return fmt.Errorf("task[%d] complexity=%s: %w", i, task.Complexity, ErrUnknownComplexity)
		}
	}

	return nil
}
