package config

import "errors"

// Sentinel errors for plan payload validation.
var (
	// ErrConfigEmpty is returned when the plan payload is empty or nil.
	ErrConfigEmpty = errors.New("plan payload is empty")

	// ErrNoTasks is returned when a plan declares zero tasks.
	ErrNoTasks = errors.New("plan.tasks must not be empty")

	// ErrTaskDescriptionEmpty is returned when a task has an empty description.
	ErrTaskDescriptionEmpty = errors.New("task.description is required")

	// ErrUnknownTaskType is returned when a task declares a task_type outside ValidTaskTypes.
	ErrUnknownTaskType = errors.New("unknown task_type")

	// ErrUnknownComplexity is returned when a task declares a complexity outside ValidComplexities.
	ErrUnknownComplexity = errors.New("unknown complexity")
)
