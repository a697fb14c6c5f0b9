package contracts

// ProjectState represents the lifecycle state of a project.
type ProjectState int

const (
	ProjectDraft ProjectState = iota
	ProjectPlanning
	ProjectReady
	ProjectExecuting
	ProjectPaused
	ProjectCompleted
	ProjectFailed
	ProjectCancelled
)

func (s ProjectState) String() string {
	switch s {
	case ProjectDraft:
		return "draft"
	case ProjectPlanning:
		return "planning"
	case ProjectReady:
		return "ready"
	case ProjectExecuting:
		return "executing"
	case ProjectPaused:
		return "paused"
	case ProjectCompleted:
		return "completed"
	case ProjectFailed:
		return "failed"
	case ProjectCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the project will never transition again.
func (s ProjectState) IsTerminal() bool {
	switch s {
	case ProjectCompleted, ProjectFailed, ProjectCancelled:
		return true
	default:
		return false
	}
}

// TaskState represents the lifecycle state of a task.
//
// BLOCKED is derived, not stored: a PENDING task with unmet dependencies is
// reported as BLOCKED at read time but stored as PENDING so the executor can
// reconsider it as soon as its dependencies complete.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskBlocked
	TaskQueued
	TaskRunning
	TaskCompleted
	TaskNeedsReview
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskBlocked:
		return "blocked"
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskNeedsReview:
		return "needs_review"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the task will never transition again without
// external intervention (a checkpoint resolution is external intervention,
// so NEEDS_REVIEW is not terminal).
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// CheckpointState represents the resolution state of a human-in-the-loop checkpoint.
type CheckpointState int

const (
	CheckpointOpen CheckpointState = iota
	CheckpointApproved
	CheckpointRejected
)

func (s CheckpointState) String() string {
	switch s {
	case CheckpointOpen:
		return "open"
	case CheckpointApproved:
		return "approved"
	case CheckpointRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
