// Package api provides the HTTP surface for the execution core: project,
// plan, task, checkpoint, and event operations over the teacher's
// http.ServeMux method-routing idiom.
package api

import (
	"github.com/vfirsov/agentflow/contracts"
)

// ============================================================================
// Request DTOs
// ============================================================================

// CreateProjectRequest is the request body for POST /api/v1/projects.
type CreateProjectRequest struct {
	Name   string       `json:"name"`
	Policy PolicyDTO    `json:"policy"`
}

// PolicyDTO represents execution constraints for a project, including its
// three independent budget dimensions: a process-wide daily cap, a
// process-wide monthly cap, and a per-project lifetime cap. A zero-amount
// dimension is unenforced.
type PolicyDTO struct {
	MaxParallelism     int              `json:"max_parallelism"`
	MaxRetries         int              `json:"max_retries"`
	MaxToolRounds      int              `json:"max_tool_rounds"`
	DailyBudgetLimit   CostDTO          `json:"daily_budget_limit"`
	MonthlyBudgetLimit CostDTO          `json:"monthly_budget_limit"`
	ProjectBudgetLimit CostDTO          `json:"project_budget_limit"`
	ContextPolicy      ContextPolicyDTO `json:"context_policy,omitempty"`
}

// ContextPolicyDTO represents context management settings.
type ContextPolicyDTO struct {
	MaxTokens int64  `json:"max_tokens,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	KeepLastN int    `json:"keep_last_n,omitempty"`
}

// CostDTO represents a monetary cost.
type CostDTO struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// PlanRequest is the request body for POST /api/v1/projects/{id}/plan, an
// approved plan payload per the Plan JSON schema (spec §6).
type PlanRequest struct {
	Summary string         `json:"summary"`
	Tasks   []PlanTaskDTO  `json:"tasks"`
}

// PlanTaskDTO is one task entry within a PlanRequest.
type PlanTaskDTO struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TaskType    string   `json:"task_type"`
	Complexity  string   `json:"complexity"`
	DependsOn   []any    `json:"depends_on,omitempty"`
	ToolsNeeded []string `json:"tools_needed,omitempty"`
}

// ResolveCheckpointRequest is the request body for
// POST /api/v1/checkpoints/{id}/resolve.
type ResolveCheckpointRequest struct {
	Approved bool `json:"approved"`
}

// ============================================================================
// Response DTOs
// ============================================================================

// ProjectResponse is the response body for project endpoints.
type ProjectResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	State     string              `json:"state"`
	Usage     UsageDTO            `json:"usage"`
	Tasks     []TaskResponse      `json:"tasks,omitempty"`
	CreatedAt int64               `json:"created_at"`
	UpdatedAt int64               `json:"updated_at"`
}

// TaskResponse is the response body for task endpoints.
type TaskResponse struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	Description string    `json:"description"`
	Wave        int       `json:"wave"`
	Deps        []string  `json:"deps,omitempty"`
	Model       string    `json:"model,omitempty"`
	TaskType    string    `json:"task_type,omitempty"`
	Complexity  string    `json:"complexity,omitempty"`
	RetryCount  int       `json:"retry_count"`
	Output      string    `json:"output,omitempty"`
	Partial     bool      `json:"partial_result,omitempty"`
	Error       *ErrorDTO `json:"error,omitempty"`
	CreatedAt   int64     `json:"created_at"`
	StartedAt   int64     `json:"started_at,omitempty"`
	CompletedAt int64     `json:"completed_at,omitempty"`
}

// UsageDTO represents token and cost usage.
type UsageDTO struct {
	Tokens int64   `json:"tokens"`
	Cost   CostDTO `json:"cost"`
}

// ErrorDTO represents an error in the response.
type ErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CheckpointResponse is the response body for checkpoint endpoints.
type CheckpointResponse struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	TaskID     string `json:"task_id"`
	State      string `json:"state"`
	Reason     string `json:"reason"`
	CreatedAt  int64  `json:"created_at"`
	ResolvedAt int64  `json:"resolved_at,omitempty"`
}

// EventDTO is the wire shape for a single event on the event stream.
type EventDTO struct {
	Type      string            `json:"type"`
	ProjectID string            `json:"project_id"`
	TaskID    string            `json:"task_id,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// BudgetStatusResponse is the response body for GET .../budget: one entry
// per budget dimension (daily, monthly, project).
type BudgetStatusResponse struct {
	ProjectID string            `json:"project_id"`
	Periods   []BudgetPeriodDTO `json:"periods"`
}

// BudgetPeriodDTO is one dimension's current reservation/spend snapshot.
type BudgetPeriodDTO struct {
	Kind      string  `json:"kind"`
	PeriodKey string  `json:"period_key"`
	Limit     CostDTO `json:"limit"`
	Reserved  float64 `json:"reserved"`
	Spent     float64 `json:"spent"`
}

// ============================================================================
// Converters: Request DTO -> contracts
// ============================================================================

// ToProjectPolicy converts PolicyDTO to contracts.ProjectPolicy.
func (p *PolicyDTO) ToProjectPolicy() contracts.ProjectPolicy {
	return contracts.ProjectPolicy{
		MaxParallelism:     p.MaxParallelism,
		MaxRetries:         p.MaxRetries,
		MaxToolRounds:      p.MaxToolRounds,
		DailyBudgetLimit:   p.DailyBudgetLimit.toCost(),
		MonthlyBudgetLimit: p.MonthlyBudgetLimit.toCost(),
		ProjectBudgetLimit: p.ProjectBudgetLimit.toCost(),
		ContextPolicy: contracts.ContextPolicy{
			MaxTokens: contracts.TokenCount(p.ContextPolicy.MaxTokens),
			Strategy:  p.ContextPolicy.Strategy,
			KeepLastN: p.ContextPolicy.KeepLastN,
		},
	}
}

func (c CostDTO) toCost() contracts.Cost {
	return contracts.Cost{Amount: c.Amount, Currency: contracts.Currency(c.Currency)}
}

// ============================================================================
// Converters: contracts -> Response DTO
// ============================================================================

// ProjectToResponse converts a contracts.Project to ProjectResponse,
// including tasks when includeTasks is true.
func ProjectToResponse(project *contracts.Project, includeTasks bool) *ProjectResponse {
	resp := &ProjectResponse{
		ID:    string(project.ID),
		Name:  project.Name,
		State: project.State.String(),
		Usage: UsageDTO{
			Tokens: int64(project.Usage.Tokens),
			Cost: CostDTO{
				Amount:   project.Usage.Cost.Amount,
				Currency: string(project.Usage.Cost.Currency),
			},
		},
		CreatedAt: int64(project.CreatedAt),
		UpdatedAt: int64(project.UpdatedAt),
	}
	if includeTasks {
		resp.Tasks = make([]TaskResponse, 0, len(project.Tasks))
		for _, task := range project.Tasks {
			resp.Tasks = append(resp.Tasks, *TaskToResponse(task))
		}
	}
	return resp
}

// TaskToResponse converts a contracts.Task to TaskResponse.
func TaskToResponse(task *contracts.Task) *TaskResponse {
	resp := &TaskResponse{
		ID:          string(task.ID),
		State:       task.State.String(),
		Description: task.Description,
		Wave:        task.Wave,
		Model:       string(task.Model),
		TaskType:    task.TaskType,
		Complexity:  task.Complexity,
		RetryCount:  task.RetryCount,
		Output:      task.Output,
		Partial:     task.PartialResult,
		CreatedAt:   int64(task.CreatedAt),
		StartedAt:   int64(task.StartedAt),
		CompletedAt: int64(task.CompletedAt),
	}
	for _, dep := range task.Deps {
		resp.Deps = append(resp.Deps, string(dep))
	}
	if task.Error != nil {
		resp.Error = &ErrorDTO{Code: task.Error.Code, Message: task.Error.Message}
	}
	return resp
}

// CheckpointToResponse converts a contracts.Checkpoint to CheckpointResponse.
func CheckpointToResponse(cp *contracts.Checkpoint) *CheckpointResponse {
	return &CheckpointResponse{
		ID:         string(cp.ID),
		ProjectID:  string(cp.ProjectID),
		TaskID:     string(cp.TaskID),
		State:      cp.State.String(),
		Reason:     cp.Reason,
		CreatedAt:  int64(cp.CreatedAt),
		ResolvedAt: int64(cp.ResolvedAt),
	}
}

// EventToResponse converts a contracts.Event to its wire DTO.
func EventToResponse(event contracts.Event) EventDTO {
	dto := EventDTO{
		Type:      event.Type,
		ProjectID: string(event.ProjectID),
		Payload:   event.Payload,
		Timestamp: int64(event.CreatedAt),
	}
	if taskID, ok := event.Payload["task_id"]; ok {
		dto.TaskID = taskID
	}
	return dto
}

// BudgetPeriodsToResponse converts a project's dimension snapshots to their
// response DTO.
func BudgetPeriodsToResponse(projectID contracts.ProjectID, periods []contracts.BudgetPeriod) *BudgetStatusResponse {
	resp := &BudgetStatusResponse{ProjectID: string(projectID)}
	for _, p := range periods {
		resp.Periods = append(resp.Periods, BudgetPeriodDTO{
			Kind:      string(p.Kind),
			PeriodKey: p.PeriodKey,
			Limit: CostDTO{
				Amount:   p.Limit.Amount,
				Currency: string(p.Limit.Currency),
			},
			Reserved: p.Reserved,
			Spent:    p.Spent,
		})
	}
	return resp
}
