// Package config validates the structural shape of an approved plan payload
// before it reaches the Decomposer: required fields and enum membership,
// independent of dependency graph construction (the Decomposer's job). It
// does not check task titles or other fields for uniqueness.
package config

// PlanConfig is the root shape of an approved plan JSON document.
type PlanConfig struct {
	Summary string     `json:"summary"`
	Tasks   []TaskSpec `json:"tasks"`
}

// TaskSpec is a single task entry within a plan payload, prior to dependency
// resolution (depends_on entries are not inspected here; parsing, index
// range and cycle checking happen in the Decomposer).
type TaskSpec struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TaskType    string   `json:"task_type"`
	Complexity  string   `json:"complexity"`
	DependsOn   []any    `json:"depends_on,omitempty"`
	ToolsNeeded []string `json:"tools_needed,omitempty"`
}

// TaskType enumerates the task categories a plan may declare.
type TaskType string

const (
	TaskTypeCode          TaskType = "code"
	TaskTypeResearch      TaskType = "research"
	TaskTypeAnalysis      TaskType = "analysis"
	TaskTypeAsset         TaskType = "asset"
	TaskTypeIntegration   TaskType = "integration"
	TaskTypeDocumentation TaskType = "documentation"
)

// ValidTaskTypes returns every task_type value a plan task may declare.
func ValidTaskTypes() []TaskType {
	return []TaskType{TaskTypeCode, TaskTypeResearch, TaskTypeAnalysis, TaskTypeAsset, TaskTypeIntegration, TaskTypeDocumentation}
}

// Complexity enumerates the effort tiers a plan task may declare, feeding
// the Model Router's (task_type, complexity) -> model lookup.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// ValidComplexities returns every complexity value a plan task may declare.
func ValidComplexities() []Complexity {
	return []Complexity{ComplexitySimple, ComplexityMedium, ComplexityComplex}
}
