package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vfirsov/agentflow/contracts"
	"github.com/vfirsov/agentflow/internal/budget"
	"github.com/vfirsov/agentflow/internal/contextmgr"
	"github.com/vfirsov/agentflow/internal/decomposer"
)

// fakeStore is a minimal in-memory contracts.Store sufficient for executor tests.
type fakeStore struct {
	mu       sync.Mutex
	projects map[contracts.ProjectID]*contracts.Project
	events   []contracts.Event
}

func newFakeStore(projects ...*contracts.Project) *fakeStore {
	s := &fakeStore{projects: make(map[contracts.ProjectID]*contracts.Project)}
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

func (s *fakeStore) UpdateProject(ctx context.Context, project *contracts.Project) error { return nil }
func (s *fakeStore) UpdateTask(ctx context.Context, task *contracts.Task) error          { return nil }
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
	return nil
}
func (s *fakeStore) ResolveCheckpoint(ctx context.Context, id contracts.CheckpointID, approved bool) (*contracts.Checkpoint, error) {
	return nil, nil
}
func (s *fakeStore) GetCheckpoint(ctx context.Context, id contracts.CheckpointID) (*contracts.Checkpoint, error) {
	return nil, nil
}
func (s *fakeStore) AppendEvent(ctx context.Context, event *contracts.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}
func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakePublisher records published events without any bound channel plumbing.
type fakePublisher struct {
	mu     sync.Mutex
	events []contracts.Event
}

func (p *fakePublisher) Publish(event contracts.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) has(eventType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

// fakeAgent returns a scripted result or error for every call, in order.
type fakeAgent struct {
	mu      sync.Mutex
	results []*contracts.AgentResult
	errs    []error
	calls   int
}

func (a *fakeAgent) Run(ctx context.Context, project *contracts.Project, task *contracts.Task, bundle *contracts.ContextBundle) (*contracts.AgentResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.calls
	a.calls++
	if i < len(a.errs) && a.errs[i] != nil {
		return nil, a.errs[i]
	}
	if i < len(a.results) {
		return a.results[i], nil
	}
	return &contracts.AgentResult{Output: "done"}, nil
}

func newTestProject(taskCount int) *contracts.Project {
	tasks := make(map[contracts.TaskID]*contracts.Task)
	nodes := make(map[contracts.TaskID]*contracts.DAGNode)
	for i := 0; i < taskCount; i++ {
		id := contracts.TaskID(string(rune('a' + i)))
		tasks[id] = &contracts.Task{ID: id, State: contracts.TaskPending, Model: "claude-3-5-sonnet-20240620"}
		nodes[id] = &contracts.DAGNode{ID: id}
	}
	return &contracts.Project{
		ID:    "proj-1",
		State: contracts.ProjectExecuting,
		Tasks: tasks,
		DAG:   &contracts.DAG{Nodes: nodes, Edges: map[contracts.TaskID][]contracts.TaskID{}},
		Policy: contracts.ProjectPolicy{
			DailyBudgetLimit: contracts.Cost{Amount: 100, Currency: "USD"},
			MaxRetries:       2,
		},
	}
}

func newTestExecutor(store contracts.Store, agent *fakeAgent, pub *fakePublisher) *Executor {
	return New(Deps{
		Store:          store,
		Scheduler:      decomposer.NewScheduler(),
		Enforcer:       budget.NewEnforcer(store),
		CostCalc:       budget.NewCostCalculator(),
		TokenEstimator: budget.NewTokenEstimator(),
		ContextBuilder: contextmgr.NewBuilder(),
		Compactor:      contextmgr.NewCompactor(),
		AgentRunner:    agent,
		Publisher:      pub,
		Logger:         zap.NewNop().Sugar(),
		MaxConcurrency: 4,
	})
}

func TestTick_DispatchesAndCompletesTask(t *testing.T) {
	project := newTestProject(1)
	store := newFakeStore(project)
	pub := &fakePublisher{}
	agent := &fakeAgent{results: []*contracts.AgentResult{{Output: "ok"}}}
	ex := newTestExecutor(store, agent, pub)

	require.NoError(t, ex.Tick(context.Background()))

	assert.Eventually(t, func() bool {
		return project.Tasks["a"].State == contracts.TaskCompleted
	}, time.Second, 5*time.Millisecond)
	assert.True(t, pub.has("task_start"))
	assert.True(t, pub.has("task_complete"))
}

func TestTick_TransientFailureSchedulesRetry(t *testing.T) {
	project := newTestProject(1)
	store := newFakeStore(project)
	pub := &fakePublisher{}
	agent := &fakeAgent{errs: []error{&contracts.TransientError{Err: assertErr("boom")}}}
	ex := newTestExecutor(store, agent, pub)

	require.NoError(t, ex.Tick(context.Background()))

	assert.Eventually(t, func() bool {
		return project.Tasks["a"].State == contracts.TaskPending && project.Tasks["a"].RetryCount == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, pub.has("task_retry"))

	ex.mu.Lock()
	_, hasDeadline := ex.retryDeadline["a"]
	ex.mu.Unlock()
	assert.True(t, hasDeadline)
}

func TestTick_RetriesExhaustedRaisesCheckpoint(t *testing.T) {
	project := newTestProject(1)
	project.Tasks["a"].RetryCount = 2 // already at MaxRetries
	store := newFakeStore(project)
	pub := &fakePublisher{}
	agent := &fakeAgent{errs: []error{&contracts.TransientError{Err: assertErr("still failing")}}}
	ex := newTestExecutor(store, agent, pub)

	require.NoError(t, ex.Tick(context.Background()))

	assert.Eventually(t, func() bool {
		return project.Tasks["a"].State == contracts.TaskNeedsReview
	}, time.Second, 5*time.Millisecond)
	assert.True(t, pub.has("task_needs_review"))
}

func TestTick_SkipsPausedProject(t *testing.T) {
	project := newTestProject(1)
	project.State = contracts.ProjectPaused
	store := newFakeStore(project)
	agent := &fakeAgent{}
	ex := newTestExecutor(store, agent, &fakePublisher{})

	require.NoError(t, ex.Tick(context.Background()))
	assert.Equal(t, contracts.TaskPending, project.Tasks["a"].State)
}

func TestCheckLiveness_FailsDeadProject(t *testing.T) {
	project := newTestProject(2)
	project.Tasks["b"].Deps = []contracts.TaskID{"missing-dep-never-completes"}
	project.DAG.Nodes["b"].Pending = 1
	project.Tasks["a"].State = contracts.TaskCompleted
	pub := &fakePublisher{}
	ex := newTestExecutor(newFakeStore(project), &fakeAgent{}, pub)

	dead := ex.checkLiveness(context.Background(), project)

	assert.True(t, dead)
	assert.Equal(t, contracts.ProjectFailed, project.State)
	assert.True(t, pub.has("project_failed"))
}

func TestCheckTerminal_CompletesWhenAllTasksDone(t *testing.T) {
	project := newTestProject(1)
	project.Tasks["a"].State = contracts.TaskCompleted
	pub := &fakePublisher{}
	ex := newTestExecutor(newFakeStore(project), &fakeAgent{}, pub)

	done := ex.checkTerminal(context.Background(), project)

	assert.True(t, done)
	assert.Equal(t, contracts.ProjectCompleted, project.State)
}

func TestTick_BudgetExhaustedStopsSchedulingAndWarnsOnce(t *testing.T) {
	project := newTestProject(2)
	project.Policy.DailyBudgetLimit = contracts.Cost{Amount: 0.0000001, Currency: "USD"}
	// Non-empty descriptions give each task a non-zero estimate; an empty
	// task estimates to zero tokens and would fit under any limit.
	project.Tasks["a"].Description = "summarize the findings"
	project.Tasks["b"].Description = "draft the report"
	store := newFakeStore(project)
	pub := &fakePublisher{}
	agent := &fakeAgent{}
	ex := newTestExecutor(store, agent, pub)

	require.NoError(t, ex.Tick(context.Background()))

	assert.Equal(t, contracts.TaskPending, project.Tasks["a"].State)
	assert.Equal(t, contracts.TaskPending, project.Tasks["b"].State)
	assert.Equal(t, 0, agent.calls)

	warnings := 0
	pub.mu.Lock()
	for _, e := range pub.events {
		if e.Type == "budget_warning" {
			warnings++
		}
	}
	pub.mu.Unlock()
	assert.Equal(t, 1, warnings)
}

func TestBackoffFor_Increases(t *testing.T) {
	d0 := backoffFor(0)
	d3 := backoffFor(3)
	assert.Greater(t, d3, time.Duration(0))
	assert.Greater(t, d0, time.Duration(0))
	assert.Greater(t, d3, d0)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
