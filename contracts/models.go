package contracts

// Project is the top-level container: it owns a plan (DAG of tasks), a
// budget, and a set of execution policies.
type Project struct {
	ID        ProjectID
	Name      string
	State     ProjectState
	Policy    ProjectPolicy
	DAG       *DAG
	Tasks     map[TaskID]*Task
	Usage     Usage
	Memory    map[string]string // short-term memory shared across the project's tasks
	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// ProjectPolicy defines execution constraints for a project. Budget is
// enforced across three simultaneous dimensions rather than a single
// limit/period pair: a process-wide daily cap, a process-wide monthly cap,
// and a per-project lifetime cap. A zero Cost leaves its dimension
// unenforced.
type ProjectPolicy struct {
	MaxParallelism     int
	MaxRetries         int
	MaxToolRounds      int
	DailyBudgetLimit   Cost
	MonthlyBudgetLimit Cost
	ProjectBudgetLimit Cost
	ContextPolicy      ContextPolicy
}

// ContextPolicy defines how per-task context is assembled and compacted.
type ContextPolicy struct {
	MaxTokens TokenCount
	Strategy  string
	KeepLastN int
}

// DAG is the directed acyclic graph of task dependencies for a project's plan.
type DAG struct {
	Nodes map[TaskID]*DAGNode
	Edges map[TaskID][]TaskID
}

// DAGNode is a single node in the dependency graph.
type DAGNode struct {
	ID      TaskID
	Deps    []TaskID
	Next    []TaskID
	Pending int // number of unsatisfied dependencies
	Wave    int // longest dependency-chain depth, 0 for roots
}

// DepRefKind distinguishes how a raw depends_on entry was resolved.
type DepRefKind int

const (
	// DepIndex references a sibling task by its position in the plan's task list.
	DepIndex DepRefKind = iota
	// DepNamed references a sibling task by its declared id.
	DepNamed
	// DepInvalid is neither a valid index nor a known task id.
	DepInvalid
)

// DepRef is the tagged-variant result of parsing one depends_on entry, which
// may arrive as an integer index, a string task name, or something unusable.
type DepRef struct {
	Kind  DepRefKind
	Index int
	Name  string
	Raw   string
}

// Task is a single unit of work within a project's plan.
type Task struct {
	ID            TaskID
	ProjectID     ProjectID
	State         TaskState
	Description   string
	Priority      int
	Wave          int
	Deps          []TaskID
	Model         ModelID
	TaskType      string
	Complexity    string
	RetryCount    int
	MaxRetries    int
	RetryDeadline Timestamp
	Output        string
	PartialResult bool
	Error         *TaskError
	EstimatedUse  Usage
	ActualUse     Usage
	CreatedAt     Timestamp
	StartedAt     Timestamp
	CompletedAt   Timestamp
}

// TaskError records the terminal error of a FAILED task.
type TaskError struct {
	Code    string
	Message string
}

// Usage represents accumulated token and cost usage.
type Usage struct {
	Tokens TokenCount
	Cost   Cost
}

// Cost represents a monetary amount.
type Cost struct {
	Amount   float64
	Currency Currency
}

// UsageRecord is an immutable ledger entry. The executor writes one for
// every task attempt that completes, whatever its cost, in the same
// transaction as the task's completion; failed attempts write none.
type UsageRecord struct {
	ID         string
	ProjectID  ProjectID
	TaskID     TaskID
	Model      ModelID
	Tokens     TokenCount
	Cost       Cost
	PeriodKey  string
	RecordedAt Timestamp
}

// BudgetPeriod tracks reserved and spent amounts for one project within one
// rollover period (a calendar day or month for the daily and monthly
// kinds; the project kind has an empty PeriodKey and never rolls over).
type BudgetPeriod struct {
	ProjectID ProjectID
	Kind      BudgetPeriodKind
	PeriodKey string
	Limit     Cost
	Reserved  float64
	Spent     float64
}

// Checkpoint is a human-in-the-loop gate raised when a task exhausts its
// retries or otherwise needs review before the project can proceed.
type Checkpoint struct {
	ID         CheckpointID
	ProjectID  ProjectID
	TaskID     TaskID
	State      CheckpointState
	Reason     string
	CreatedAt  Timestamp
	ResolvedAt Timestamp
}

// Event is a single published notification on the event bus.
type Event struct {
	ID        EventID
	ProjectID ProjectID
	Type      string
	Payload   map[string]string
	CreatedAt Timestamp
}

// ContextBundle is the assembled context passed into an agent call for a task.
type ContextBundle struct {
	Messages []string
	Memory   map[string]string
	Tools    []string
}
