package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vfirsov/agentflow/contracts"
	"github.com/vfirsov/agentflow/internal/budget"
	"github.com/vfirsov/agentflow/internal/eventbus"
)

// fakeStore is a minimal in-memory contracts.Store for handler tests, mirroring
// the executor package's fake: a mutex-protected map, no real persistence
// semantics beyond what the handlers themselves rely on.
type fakeStore struct {
	mu          sync.Mutex
	projects    map[contracts.ProjectID]*contracts.Project
	checkpoints map[contracts.CheckpointID]*contracts.Checkpoint
}

func newFakeStore(projects ...*contracts.Project) *fakeStore {
	s := &fakeStore{
		projects:    make(map[contracts.ProjectID]*contracts.Project),
		checkpoints: make(map[contracts.CheckpointID]*contracts.Checkpoint),
	}
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	return s
}

func (s *fakeStore) CreateProject(ctx context.Context, project *contracts.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = project
	return nil
}

func (s *fakeStore) GetProject(ctx context.Context, id contracts.ProjectID) (*contracts.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, contracts.ErrProjectNotFound
	}
	return p, nil
}

func (s *fakeStore) ListActiveProjects(ctx context.Context) ([]*contracts.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*contracts.Project
	for _, p := range s.projects {
		if !p.State.IsTerminal() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateProject(ctx context.Context, project *contracts.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = project
	return nil
}

func (s *fakeStore) UpdateTask(ctx context.Context, task *contracts.Task) error { return nil }

func (s *fakeStore) RecordUsage(ctx context.Context, record *contracts.UsageRecord) error {
	return nil
}

func (s *fakeStore) UpsertBudgetPeriod(ctx context.Context, period *contracts.BudgetPeriod) error {
	return nil
}

func (s *fakeStore) GetBudgetPeriod(ctx context.Context, projectID contracts.ProjectID, kind contracts.BudgetPeriodKind, periodKey string) (*contracts.BudgetPeriod, error) {
	return nil, nil
}

func (s *fakeStore) CreateCheckpoint(ctx context.Context, checkpoint *contracts.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.ID] = checkpoint
	return nil
}

func (s *fakeStore) ResolveCheckpoint(ctx context.Context, id contracts.CheckpointID, approved bool) (*contracts.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, contracts.ErrCheckpointNotFound
	}
	if cp.State != contracts.CheckpointOpen {
		return nil, contracts.ErrCheckpointResolved
	}
	if approved {
		cp.State = contracts.CheckpointApproved
	} else {
		cp.State = contracts.CheckpointRejected
	}
	cp.ResolvedAt = 1
	return cp, nil
}

func (s *fakeStore) GetCheckpoint(ctx context.Context, id contracts.CheckpointID) (*contracts.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, contracts.ErrCheckpointNotFound
	}
	return cp, nil
}

func (s *fakeStore) AppendEvent(ctx context.Context, event *contracts.Event) error { return nil }

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestHandlers(store contracts.Store) *Handlers {
	return NewHandlers(store, eventbus.NewBus(), budget.NewEnforcer(store), nil, nil)
}

func newDraftProject(id string) *contracts.Project {
	return &contracts.Project{
		ID:    contracts.ProjectID(id),
		Name:  "demo",
		State: contracts.ProjectDraft,
		Policy: contracts.ProjectPolicy{
			MaxParallelism:   2,
			MaxRetries:       2,
			DailyBudgetLimit: contracts.Cost{Amount: 10, Currency: "USD"},
		},
		Tasks: make(map[contracts.TaskID]*contracts.Task),
	}
}

func doRequest(t *testing.T, handler http.HandlerFunc, method, path string, pathValues map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// ============================================================================
// CreateProject
// ============================================================================

func TestHandleCreateProject_Success(t *testing.T) {
	h := newTestHandlers(newFakeStore())
	req := CreateProjectRequest{
		Name: "my-project",
		Policy: PolicyDTO{
			MaxParallelism:   3,
			DailyBudgetLimit: CostDTO{Amount: 5, Currency: "USD"},
		},
	}
	rec := doRequest(t, h.HandleCreateProject, http.MethodPost, "/api/v1/projects", nil, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp ProjectResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "my-project", resp.Name)
	assert.Equal(t, contracts.ProjectDraft.String(), resp.State)
	assert.NotEmpty(t, resp.ID)
}

func TestHandleCreateProject_MissingName(t *testing.T) {
	h := newTestHandlers(newFakeStore())
	req := CreateProjectRequest{Policy: PolicyDTO{DailyBudgetLimit: CostDTO{Amount: 5}}}
	rec := doRequest(t, h.HandleCreateProject, http.MethodPost, "/api/v1/projects", nil, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateProject_MissingBudget(t *testing.T) {
	h := newTestHandlers(newFakeStore())
	req := CreateProjectRequest{Name: "x"}
	rec := doRequest(t, h.HandleCreateProject, http.MethodPost, "/api/v1/projects", nil, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// GetProject
// ============================================================================

func TestHandleGetProject_Found(t *testing.T) {
	p := newDraftProject("p1")
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandleGetProject, http.MethodGet, "/api/v1/projects/p1", map[string]string{"id": "p1"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ProjectResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "p1", resp.ID)
}

func TestHandleGetProject_NotFound(t *testing.T) {
	h := newTestHandlers(newFakeStore())
	rec := doRequest(t, h.HandleGetProject, http.MethodGet, "/api/v1/projects/missing", map[string]string{"id": "missing"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// SubmitPlan
// ============================================================================

func TestHandleSubmitPlan_Success(t *testing.T) {
	p := newDraftProject("p1")
	h := newTestHandlers(newFakeStore(p))

	req := PlanRequest{
		Summary: "build a thing",
		Tasks: []PlanTaskDTO{
			{Title: "t1", Description: "do the first part", TaskType: "research", Complexity: "simple"},
			{Title: "t2", Description: "do the second part", TaskType: "code", Complexity: "medium", DependsOn: []any{float64(0)}},
		},
	}
	rec := doRequest(t, h.HandleSubmitPlan, http.MethodPost, "/api/v1/projects/p1/plan", map[string]string{"id": "p1"}, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ProjectResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, contracts.ProjectReady.String(), resp.State)
	assert.Len(t, resp.Tasks, 2)
}

func TestHandleSubmitPlan_WrongState(t *testing.T) {
	p := newDraftProject("p1")
	p.State = contracts.ProjectExecuting
	h := newTestHandlers(newFakeStore(p))

	req := PlanRequest{Summary: "x", Tasks: []PlanTaskDTO{{Title: "t1", Description: "d", TaskType: "research", Complexity: "simple"}}}
	rec := doRequest(t, h.HandleSubmitPlan, http.MethodPost, "/api/v1/projects/p1/plan", map[string]string{"id": "p1"}, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleSubmitPlan_UnknownTaskType(t *testing.T) {
	p := newDraftProject("p1")
	h := newTestHandlers(newFakeStore(p))

	req := PlanRequest{Summary: "x", Tasks: []PlanTaskDTO{{Title: "t1", Description: "d", TaskType: "bogus", Complexity: "simple"}}}
	rec := doRequest(t, h.HandleSubmitPlan, http.MethodPost, "/api/v1/projects/p1/plan", map[string]string{"id": "p1"}, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// Start / Pause / Cancel
// ============================================================================

func TestHandleStartProject_FromReady(t *testing.T) {
	p := newDraftProject("p1")
	p.State = contracts.ProjectReady
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandleStartProject, http.MethodPost, "/api/v1/projects/p1/start", map[string]string{"id": "p1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ProjectResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, contracts.ProjectExecuting.String(), resp.State)
}

func TestHandleStartProject_FromDraft_Rejected(t *testing.T) {
	p := newDraftProject("p1")
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandleStartProject, http.MethodPost, "/api/v1/projects/p1/start", map[string]string{"id": "p1"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlePauseProject_FromExecuting(t *testing.T) {
	p := newDraftProject("p1")
	p.State = contracts.ProjectExecuting
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandlePauseProject, http.MethodPost, "/api/v1/projects/p1/pause", map[string]string{"id": "p1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ProjectResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, contracts.ProjectPaused.String(), resp.State)
}

func TestHandlePauseProject_FromDraft_Rejected(t *testing.T) {
	p := newDraftProject("p1")
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandlePauseProject, http.MethodPost, "/api/v1/projects/p1/pause", map[string]string{"id": "p1"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleCancelProject_MarksTasksCancelled(t *testing.T) {
	p := newDraftProject("p1")
	p.State = contracts.ProjectExecuting
	p.Tasks["t1"] = &contracts.Task{ID: "t1", ProjectID: "p1", State: contracts.TaskRunning}
	h := newTestHandlers(newFakeStore(p))

	rec := doRequest(t, h.HandleCancelProject, http.MethodPost, "/api/v1/projects/p1/cancel", map[string]string{"id": "p1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contracts.TaskCancelled, p.Tasks["t1"].State)
	assert.Equal(t, contracts.ProjectCancelled, p.State)
}

func TestHandleCancelProject_AlreadyTerminal(t *testing.T) {
	p := newDraftProject("p1")
	p.State = contracts.ProjectCompleted
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandleCancelProject, http.MethodPost, "/api/v1/projects/p1/cancel", map[string]string{"id": "p1"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// ============================================================================
// Tasks
// ============================================================================

func TestHandleListTasks(t *testing.T) {
	p := newDraftProject("p1")
	p.Tasks["t1"] = &contracts.Task{ID: "t1", ProjectID: "p1", State: contracts.TaskPending}
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandleListTasks, http.MethodGet, "/api/v1/projects/p1/tasks", map[string]string{"id": "p1"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []TaskResponse
	decodeBody(t, rec, &resp)
	assert.Len(t, resp, 1)
}

func TestHandleGetTask_NotFound(t *testing.T) {
	p := newDraftProject("p1")
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandleGetTask, http.MethodGet, "/api/v1/projects/p1/tasks/missing", map[string]string{"id": "p1", "taskID": "missing"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRetryTask_FromFailed(t *testing.T) {
	p := newDraftProject("p1")
	p.Tasks["t1"] = &contracts.Task{ID: "t1", ProjectID: "p1", State: contracts.TaskFailed, Error: &contracts.TaskError{Code: "x", Message: "boom"}}
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandleRetryTask, http.MethodPost, "/api/v1/projects/p1/tasks/t1/retry", map[string]string{"id": "p1", "taskID": "t1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contracts.TaskPending, p.Tasks["t1"].State)
	assert.Nil(t, p.Tasks["t1"].Error)
}

func TestHandleRetryTask_FromRunning_Rejected(t *testing.T) {
	p := newDraftProject("p1")
	p.Tasks["t1"] = &contracts.Task{ID: "t1", ProjectID: "p1", State: contracts.TaskRunning}
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandleRetryTask, http.MethodPost, "/api/v1/projects/p1/tasks/t1/retry", map[string]string{"id": "p1", "taskID": "t1"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// ============================================================================
// Checkpoints
// ============================================================================

func TestHandleResolveCheckpoint_Approve_ResetsTaskToPending(t *testing.T) {
	p := newDraftProject("p1")
	p.Tasks["t1"] = &contracts.Task{ID: "t1", ProjectID: "p1", State: contracts.TaskNeedsReview, RetryCount: 3}
	store := newFakeStore(p)
	store.checkpoints["c1"] = &contracts.Checkpoint{ID: "c1", ProjectID: "p1", TaskID: "t1", State: contracts.CheckpointOpen, Reason: "exhausted retries"}
	h := newTestHandlers(store)

	rec := doRequest(t, h.HandleResolveCheckpoint, http.MethodPost, "/api/v1/checkpoints/c1/resolve", map[string]string{"id": "c1"}, ResolveCheckpointRequest{Approved: true})
	require.Equal(t, http.StatusOK, rec.Code)

	task := p.Tasks["t1"]
	assert.Equal(t, contracts.TaskPending, task.State)
	assert.Equal(t, 0, task.RetryCount)
	assert.Nil(t, task.Error)
}

func TestHandleResolveCheckpoint_Reject_FailsTaskWithReason(t *testing.T) {
	p := newDraftProject("p1")
	p.Tasks["t1"] = &contracts.Task{ID: "t1", ProjectID: "p1", State: contracts.TaskNeedsReview}
	store := newFakeStore(p)
	store.checkpoints["c1"] = &contracts.Checkpoint{ID: "c1", ProjectID: "p1", TaskID: "t1", State: contracts.CheckpointOpen, Reason: "unsafe operation"}
	h := newTestHandlers(store)

	rec := doRequest(t, h.HandleResolveCheckpoint, http.MethodPost, "/api/v1/checkpoints/c1/resolve", map[string]string{"id": "c1"}, ResolveCheckpointRequest{Approved: false})
	require.Equal(t, http.StatusOK, rec.Code)

	task := p.Tasks["t1"]
	assert.Equal(t, contracts.TaskFailed, task.State)
	require.NotNil(t, task.Error)
	assert.Equal(t, "unsafe operation", task.Error.Message)
}

func TestHandleResolveCheckpoint_AlreadyResolved(t *testing.T) {
	p := newDraftProject("p1")
	store := newFakeStore(p)
	store.checkpoints["c1"] = &contracts.Checkpoint{ID: "c1", ProjectID: "p1", State: contracts.CheckpointApproved}
	h := newTestHandlers(store)
	rec := doRequest(t, h.HandleResolveCheckpoint, http.MethodPost, "/api/v1/checkpoints/c1/resolve", map[string]string{"id": "c1"}, ResolveCheckpointRequest{Approved: true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleGetCheckpoint_NotFound(t *testing.T) {
	h := newTestHandlers(newFakeStore())
	rec := doRequest(t, h.HandleGetCheckpoint, http.MethodGet, "/api/v1/checkpoints/missing", map[string]string{"id": "missing"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// Budget
// ============================================================================

func TestHandleBudgetStatus(t *testing.T) {
	p := newDraftProject("p1")
	h := newTestHandlers(newFakeStore(p))
	rec := doRequest(t, h.HandleBudgetStatus, http.MethodGet, "/api/v1/projects/p1/budget", map[string]string{"id": "p1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp BudgetStatusResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "p1", resp.ProjectID)
	require.Len(t, resp.Periods, 3)
	for _, period := range resp.Periods {
		if period.Kind == string(contracts.BudgetPeriodDaily) {
			assert.Equal(t, 10.0, period.Limit.Amount)
		}
	}
}

// ============================================================================
// Events (SSE smoke test)
// ============================================================================

func TestHandleSubscribeEvents_StreamsPublishedEvent(t *testing.T) {
	p := newDraftProject("p1")
	store := newFakeStore(p)
	bus := eventbus.NewBus()
	h := NewHandlers(store, bus, budget.NewEnforcer(store), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/events", nil)
	req.SetPathValue("id", "p1")
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.HandleSubscribeEvents(rec, req)
		close(done)
	}()

	// give the handler a moment to subscribe before publishing
	time.Sleep(20 * time.Millisecond)
	bus.Publish(contracts.Event{ProjectID: "p1", Type: "task.completed", Payload: map[string]string{"task_id": "t1"}})

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		cancel()
		<-done
	}

	assert.Contains(t, rec.Body.String(), "task.completed")
	assert.Contains(t, rec.Body.String(), "\"task_id\":\"t1\"")
}
