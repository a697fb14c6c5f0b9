// Package contracts defines the core types, states, and interfaces shared
// across the execution core: projects, plans, tasks, budgets, and events.
package contracts

// ProjectID identifies a project: the top-level unit of work that owns one
// plan and its budget.
type ProjectID string

// PlanID identifies a decomposed plan (a DAG of tasks) belonging to a project.
type PlanID string

// TaskID identifies a task within a plan.
type TaskID string

// CheckpointID identifies a human-in-the-loop checkpoint raised by a task.
type CheckpointID string

// EventID identifies a single published event.
type EventID string

// ModelID identifies a model offered by a provider (e.g. "claude-sonnet-4-5-20250929").
type ModelID string

// Provider identifies an LLM provider (e.g. "anthropic").
type Provider string

// TokenCount represents a count of tokens.
type TokenCount int64

// Currency represents a currency code (e.g. "USD").
type Currency string

// Timestamp represents a Unix timestamp in milliseconds.
type Timestamp int64

// BudgetPeriodKind distinguishes the rollover cadence of a budget period.
type BudgetPeriodKind string

const (
	BudgetPeriodDaily   BudgetPeriodKind = "daily"
	BudgetPeriodMonthly BudgetPeriodKind = "monthly"
	// BudgetPeriodProject is the per-project lifetime dimension: it never
	// rolls over, so its PeriodKey is always empty.
	BudgetPeriodProject BudgetPeriodKind = "project"
)
