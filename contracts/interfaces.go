package contracts

import "context"

// =============================================================================
// Decomposition interfaces
// =============================================================================

// DependencyResolver builds and validates a project's task dependency graph.
type DependencyResolver interface {
	// BuildDAG constructs a DAG from a list of tasks whose Deps are already
	// resolved task IDs; it does not parse depends_on entries itself.
	BuildDAG(tasks []*Task) (*DAG, error)

	// Validate checks the DAG for cycles and missing dependencies and
	// computes each node's Wave (longest dependency-chain depth).
	Validate(dag *DAG) error
}

// Scheduler determines which tasks are ready to dispatch and tracks
// completion transitions.
type Scheduler interface {
	// NextReady returns task IDs eligible for dispatch, ordered by wave
	// ascending, then priority descending, then creation time ascending.
	NextReady(project *Project) ([]TaskID, error)

	// MarkComplete transitions a task to COMPLETED and propagates its output.
	MarkComplete(project *Project, taskID TaskID, output string, usage Usage) error
}

// =============================================================================
// Cost control interfaces
// =============================================================================

// TokenEstimator estimates the number of tokens a task's context will consume.
type TokenEstimator interface {
	Estimate(bundle *ContextBundle, description string) (TokenCount, error)
}

// CostCalculator calculates the monetary cost of a token count on a given model.
type CostCalculator interface {
	Estimate(tokens TokenCount, model ModelID) (Cost, error)
}

// BudgetEnforcer reserves, records, and releases spend against a project's
// daily, monthly, and lifetime budget dimensions at once, enforcing
// invariant I4 (no concurrent over-commit) on each.
type BudgetEnforcer interface {
	// Reserve holds back estimated cost ahead of dispatch against every
	// configured dimension. Returns ErrBudgetExceeded if the projected total
	// (already spent + already reserved + estimate) would exceed any one
	// dimension's limit, or ErrBudgetNotSet if no dimension has a limit.
	Reserve(ctx context.Context, project *Project, taskID TaskID, estimate Cost) error

	// Record converts a reservation into an actual spend, updating Spent
	// across every dimension. It does not write a UsageRecord.
	Record(ctx context.Context, project *Project, taskID TaskID, actual Cost) error

	// Release cancels a reservation without recording spend (used on
	// cancellation or failure before any cost was incurred).
	Release(ctx context.Context, project *Project, taskID TaskID)

	// CanContinue reports whether additional spend is still safe against the
	// hard-stop margin on every configured dimension, used for the Agent
	// Runner's mid-loop budget check.
	CanContinue(ctx context.Context, project *Project, committed Cost) bool
}

// =============================================================================
// Context management interfaces
// =============================================================================

// ContextBuilder assembles a task's context bundle from its description and
// the completed output of its dependencies.
type ContextBuilder interface {
	Build(project *Project, taskID TaskID) (*ContextBundle, error)
}

// ContextCompactor reduces a context bundle to fit within a policy's token budget.
type ContextCompactor interface {
	Compact(bundle *ContextBundle, policy ContextPolicy) (*ContextBundle, error)
}

// =============================================================================
// Execution interfaces
// =============================================================================

// ModelRouter resolves a task type and complexity to a concrete provider
// and model. It returns no pricing; per-token prices are on the
// ModelCatalog's ModelInfo for the returned model.
type ModelRouter interface {
	Route(taskType, complexity string) (Provider, ModelID, error)
}

// ToolHandler implements the side effect of a single named tool.
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

// ToolRegistry validates and dispatches tool calls against registered schemas.
type ToolRegistry interface {
	Register(name, description string, schema []byte, handler ToolHandler) error
	Validate(name string, args map[string]any) error
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
	Tools() []string
}

// ResourceMonitor reports whether the resources a task's tools require are
// currently available, without blocking the caller.
type ResourceMonitor interface {
	IsAvailable(resource string) bool
}

// AgentRunner drives the tool-use loop for a single task and returns its output.
type AgentRunner interface {
	Run(ctx context.Context, project *Project, task *Task, bundle *ContextBundle) (*AgentResult, error)
}

// AgentResult is the outcome of one AgentRunner.Run call.
type AgentResult struct {
	Output        string
	Usage         Usage
	PartialResult bool
}

// =============================================================================
// Event bus interfaces
// =============================================================================

// EventPublisher publishes events for a project, fanning out to subscribers.
type EventPublisher interface {
	Publish(event Event)
}

// EventSubscriber receives a bounded, ordered stream of events for a project.
type EventSubscriber interface {
	Subscribe(projectID ProjectID) (ch <-chan Event, cancel func(), err error)
}

// =============================================================================
// Store interfaces
// =============================================================================

// Store persists projects, tasks, usage records, budget periods, checkpoints,
// and events.
type Store interface {
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id ProjectID) (*Project, error)
	ListActiveProjects(ctx context.Context) ([]*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	UpdateTask(ctx context.Context, task *Task) error

	RecordUsage(ctx context.Context, record *UsageRecord) error
	UpsertBudgetPeriod(ctx context.Context, period *BudgetPeriod) error
	GetBudgetPeriod(ctx context.Context, projectID ProjectID, kind BudgetPeriodKind, periodKey string) (*BudgetPeriod, error)

	CreateCheckpoint(ctx context.Context, checkpoint *Checkpoint) error
	ResolveCheckpoint(ctx context.Context, id CheckpointID, approved bool) (*Checkpoint, error)
	GetCheckpoint(ctx context.Context, id CheckpointID) (*Checkpoint, error)

	AppendEvent(ctx context.Context, event *Event) error

	// WithTx runs fn within a scoped transaction, re-entrant on the same
	// logical writer: a context already carrying a transaction reuses it.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
