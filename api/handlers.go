package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vfirsov/agentflow/config"
	"github.com/vfirsov/agentflow/contracts"
	"github.com/vfirsov/agentflow/internal/budget"
	"github.com/vfirsov/agentflow/internal/decomposer"
	"github.com/vfirsov/agentflow/internal/eventbus"
	"github.com/vfirsov/agentflow/internal/executor"
)

// maxRequestBodySize limits the size of incoming request bodies (4MB).
const maxRequestBodySize = 4 * 1024 * 1024

// Handlers contains the HTTP handler methods for the API.
type Handlers struct {
	store    contracts.Store
	bus      *eventbus.Bus
	enforcer *budget.Enforcer
	exec     *executor.Executor
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store contracts.Store, bus *eventbus.Bus, enforcer *budget.Enforcer, exec *executor.Executor, logger *zap.SugaredLogger) *Handlers {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handlers{store: store, bus: bus, enforcer: enforcer, exec: exec, logger: logger, now: time.Now}
}

func (h *Handlers) readBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	limited := io.LimitReader(r.Body, maxRequestBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		WriteError(w, fmt.Errorf("reading request body: %w", contracts.ErrInvalidInput))
		return false
	}
	if len(body) > maxRequestBodySize {
		WriteError(w, fmt.Errorf("request body too large (max %d bytes): %w", maxRequestBodySize, contracts.ErrInvalidInput))
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		WriteError(w, fmt.Errorf("invalid JSON: %w: %w", err, contracts.ErrInvalidInput))
		return false
	}
	return true
}

// HandleCreateProject handles POST /api/v1/projects.
func (h *Handlers) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !h.readBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, fmt.Errorf("name is required: %w", contracts.ErrInvalidInput))
		return
	}
	if req.Policy.DailyBudgetLimit.Amount <= 0 && req.Policy.MonthlyBudgetLimit.Amount <= 0 && req.Policy.ProjectBudgetLimit.Amount <= 0 {
		WriteError(w, fmt.Errorf("at least one of policy.daily_budget_limit, monthly_budget_limit, project_budget_limit must be > 0: %w", contracts.ErrInvalidInput))
		return
	}

	now := contracts.Timestamp(h.now().UnixMilli())
	project := &contracts.Project{
		ID:        contracts.ProjectID(uuid.NewString()),
		Name:      req.Name,
		State:     contracts.ProjectDraft,
		Policy:    req.Policy.ToProjectPolicy(),
		Tasks:     make(map[contracts.TaskID]*contracts.Task),
		Memory:    make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateProject(r.Context(), project); err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, ProjectToResponse(project, false))
}

// HandleGetProject handles GET /api/v1/projects/{id}.
func (h *Handlers) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ProjectToResponse(project, true))
}

// HandleSubmitPlan handles POST /api/v1/projects/{id}/plan: validates the
// submitted plan payload, builds its DAG via the Decomposer, persists the
// resulting tasks, and advances the project to READY (approve_plan ->
// decomposer.run in one step, since no separate draft/approve distinction is
// exposed at the storage layer beyond project state).
func (h *Handlers) HandleSubmitPlan(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	if project.State != contracts.ProjectDraft && project.State != contracts.ProjectPlanning {
		WriteError(w, fmt.Errorf("project %s is not accepting a plan in state %s: %w", id, project.State, contracts.ErrProjectNotReady))
		return
	}

	var req PlanRequest
	if !h.readBody(w, r, &req) {
		return
	}

	planCfg := &config.PlanConfig{Summary: req.Summary}
	for _, t := range req.Tasks {
		planCfg.Tasks = append(planCfg.Tasks, config.TaskSpec{
			Title:       t.Title,
			Description: t.Description,
			TaskType:    t.TaskType,
			Complexity:  t.Complexity,
			DependsOn:   t.DependsOn,
			ToolsNeeded: t.ToolsNeeded,
		})
	}
	if err := config.NewValidator().Validate(planCfg); err != nil {
		WriteError(w, fmt.Errorf("%w: %w", err, contracts.ErrInvalidInput))
		return
	}

	payload := decomposer.PlanPayload{Summary: req.Summary}
	for _, t := range req.Tasks {
		payload.Tasks = append(payload.Tasks, decomposer.PlanTask{
			Title:       t.Title,
			Description: t.Description,
			TaskType:    t.TaskType,
			Complexity:  t.Complexity,
			DependsOn:   t.DependsOn,
			ToolsNeeded: t.ToolsNeeded,
		})
	}

	tasks, dag, err := decomposer.BuildTasks(project.ID, payload, h.logger)
	if err != nil {
		WriteError(w, err)
		return
	}

	project.Tasks = make(map[contracts.TaskID]*contracts.Task, len(tasks))
	now := contracts.Timestamp(h.now().UnixMilli())
	for _, task := range tasks {
		task.CreatedAt = now
		project.Tasks[task.ID] = task
	}
	project.DAG = dag
	project.State = contracts.ProjectReady
	project.UpdatedAt = now

	if err := h.store.UpdateProject(r.Context(), project); err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ProjectToResponse(project, true))
}

// HandleStartProject handles POST /api/v1/projects/{id}/start.
func (h *Handlers) HandleStartProject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(p *contracts.Project) error {
		if p.State != contracts.ProjectReady && p.State != contracts.ProjectPaused {
			return fmt.Errorf("project %s cannot start from state %s: %w", p.ID, p.State, contracts.ErrProjectNotReady)
		}
		p.State = contracts.ProjectExecuting
		return nil
	})
}

// HandlePauseProject handles POST /api/v1/projects/{id}/pause.
func (h *Handlers) HandlePauseProject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(p *contracts.Project) error {
		if p.State != contracts.ProjectExecuting {
			return fmt.Errorf("project %s cannot pause from state %s: %w", p.ID, p.State, contracts.ErrProjectNotReady)
		}
		p.State = contracts.ProjectPaused
		return nil
	})
}

// HandleCancelProject handles POST /api/v1/projects/{id}/cancel.
func (h *Handlers) HandleCancelProject(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	if project.State.IsTerminal() {
		WriteError(w, fmt.Errorf("project %s already terminal (%s): %w", id, project.State, contracts.ErrProjectCompleted))
		return
	}

	var taskIDs []contracts.TaskID
	for taskID, task := range project.Tasks {
		if !task.State.IsTerminal() {
			taskIDs = append(taskIDs, taskID)
			task.State = contracts.TaskCancelled
		}
	}
	if h.exec != nil {
		h.exec.CancelProject(r.Context(), project, taskIDs)
	}

	project.State = contracts.ProjectCancelled
	project.UpdatedAt = contracts.Timestamp(h.now().UnixMilli())
	if err := h.store.UpdateProject(r.Context(), project); err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ProjectToResponse(project, true))
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, mutate func(*contracts.Project) error) {
	id := contracts.ProjectID(r.PathValue("id"))
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := mutate(project); err != nil {
		WriteError(w, err)
		return
	}
	project.UpdatedAt = contracts.Timestamp(h.now().UnixMilli())
	if err := h.store.UpdateProject(r.Context(), project); err != nil {
		WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ProjectToResponse(project, false))
}

// HandleListTasks handles GET /api/v1/projects/{id}/tasks.
func (h *Handlers) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	resp := make([]TaskResponse, 0, len(project.Tasks))
	for _, task := range project.Tasks {
		resp = append(resp, *TaskToResponse(task))
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// HandleGetTask handles GET /api/v1/projects/{id}/tasks/{taskID}.
func (h *Handlers) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	taskID := contracts.TaskID(r.PathValue("taskID"))
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	task, ok := project.Tasks[taskID]
	if !ok {
		WriteError(w, fmt.Errorf("task %s: %w", taskID, contracts.ErrTaskNotFound))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, TaskToResponse(task))
}

// HandleRetryTask handles POST /api/v1/projects/{id}/tasks/{taskID}/retry. It
// resets a FAILED or NEEDS_REVIEW task to PENDING, clearing its error so the
// next tick picks it up again.
func (h *Handlers) HandleRetryTask(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	taskID := contracts.TaskID(r.PathValue("taskID"))
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	task, ok := project.Tasks[taskID]
	if !ok {
		WriteError(w, fmt.Errorf("task %s: %w", taskID, contracts.ErrTaskNotFound))
		return
	}
	if task.State != contracts.TaskFailed && task.State != contracts.TaskNeedsReview {
		WriteError(w, fmt.Errorf("task %s cannot retry from state %s: %w", taskID, task.State, contracts.ErrTaskNotReady))
		return
	}

	task.State = contracts.TaskPending
	task.Error = nil
	task.PartialResult = false
	if err := h.store.UpdateTask(r.Context(), task); err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, TaskToResponse(task))
}

// HandleGetCheckpoint handles GET /api/v1/checkpoints/{id}.
func (h *Handlers) HandleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := contracts.CheckpointID(r.PathValue("id"))
	cp, err := h.store.GetCheckpoint(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, CheckpointToResponse(cp))
}

// HandleResolveCheckpoint handles POST /api/v1/checkpoints/{id}/resolve. Per
// Open Question O1, an approval does not replay the prior output: it resets
// the task to PENDING for a fresh agent call on the next tick. A rejection
// fails the task permanently.
func (h *Handlers) HandleResolveCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := contracts.CheckpointID(r.PathValue("id"))
	var req ResolveCheckpointRequest
	if !h.readBody(w, r, &req) {
		return
	}

	cp, err := h.store.ResolveCheckpoint(r.Context(), id, req.Approved)
	if err != nil {
		WriteError(w, err)
		return
	}

	project, err := h.store.GetProject(r.Context(), cp.ProjectID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if task, ok := project.Tasks[cp.TaskID]; ok {
		if req.Approved {
			task.State = contracts.TaskPending
			task.RetryCount = 0
			task.Error = nil
		} else {
			task.State = contracts.TaskFailed
			task.Error = &contracts.TaskError{Code: "checkpoint_rejected", Message: cp.Reason}
		}
		if err := h.store.UpdateTask(r.Context(), task); err != nil {
			WriteError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, CheckpointToResponse(cp))
}

// HandleBudgetStatus handles GET /api/v1/projects/{id}/budget.
func (h *Handlers) HandleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	periods := h.enforcer.Snapshot(r.Context(), project)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, BudgetPeriodsToResponse(project.ID, periods))
}

// HandleSubscribeEvents handles GET /api/v1/projects/{id}/events: a
// server-sent-events stream of every event published for the project, for
// as long as the client stays connected.
func (h *Handlers) HandleSubscribeEvents(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, fmt.Errorf("streaming unsupported: %w", contracts.ErrInvalidInput))
		return
	}

	ch, cancel, err := h.bus.Subscribe(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(EventToResponse(event))
			if err != nil {
				continue
			}
			fmt.Fprintf(bw, "event: %s\ndata: %s\n\n", event.Type, data)
			bw.Flush()
			flusher.Flush()
		}
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err
	}
}
