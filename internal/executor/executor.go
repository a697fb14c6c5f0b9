// Package executor drives every eligible project from READY to a terminal
// state. It ticks on an interval; each tick selects dispatchable tasks
// across all active projects, reserves budget, and launches one worker
// goroutine per task under a bounded concurrency gate.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/vfirsov/agentflow/contracts"
	"github.com/vfirsov/agentflow/internal/budget"
	"github.com/vfirsov/agentflow/internal/contextmgr"
	"github.com/vfirsov/agentflow/internal/decomposer"
	"github.com/vfirsov/agentflow/internal/metrics"
)

// DefaultTickInterval matches the teacher's polling cadence for background
// loops, scaled up to the execution core's larger unit of work.
const DefaultTickInterval = 2 * time.Second

const defaultMaxRetries = 3
const defaultMaxConcurrency = 10

// Deps bundles every collaborator the Executor needs, mirroring the
// teacher's OrchestratorDeps composition-root pattern.
type Deps struct {
	Store           contracts.Store
	Scheduler       *decomposer.Scheduler
	Enforcer        *budget.Enforcer
	CostCalc        *budget.CostCalculator
	TokenEstimator  *budget.TokenEstimator
	ContextBuilder  *contextmgr.Builder
	Compactor       *contextmgr.Compactor
	AgentRunner     contracts.AgentRunner
	ResourceMonitor contracts.ResourceMonitor
	Publisher       contracts.EventPublisher
	Logger          *zap.SugaredLogger
	MaxConcurrency  int64
}

// Executor implements contracts.Executor.
type Executor struct {
	deps Deps
	sem  *semaphore.Weighted

	mu            sync.Mutex
	dispatched    map[contracts.TaskID]bool
	inflight      map[contracts.TaskID]context.CancelFunc
	retryDeadline map[contracts.TaskID]time.Time
	warnedPeriods map[string]bool

	now func() time.Time
}

// New builds an Executor from deps, defaulting concurrency to 10 permits.
func New(deps Deps) *Executor {
	maxConcurrency := deps.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	return &Executor{
		deps:          deps,
		sem:           semaphore.NewWeighted(maxConcurrency),
		dispatched:    make(map[contracts.TaskID]bool),
		inflight:      make(map[contracts.TaskID]context.CancelFunc),
		retryDeadline: make(map[contracts.TaskID]time.Time),
		warnedPeriods: make(map[string]bool),
		now:           time.Now,
	}
}

// Tick processes one pass over every active project: liveness/terminal
// checks, task selection, and worker dispatch.
func (e *Executor) Tick(ctx context.Context) error {
	start := e.now()
	defer func() { metrics.TickDuration.Observe(e.now().Sub(start).Seconds()) }()

	projects, err := e.deps.Store.ListActiveProjects(ctx)
	if err != nil {
		return fmt.Errorf("listing active projects: %w", err)
	}
	metrics.ActiveProjects.Set(float64(len(projects)))

	for _, project := range projects {
		if project.State == contracts.ProjectPaused {
			continue
		}
		e.processProject(ctx, project)
	}
	return nil
}

func (e *Executor) processProject(ctx context.Context, project *contracts.Project) {
	if e.checkLiveness(ctx, project) {
		return
	}
	if e.checkTerminal(ctx, project) {
		return
	}

	ready, err := e.deps.Scheduler.NextReady(project)
	if err != nil {
		e.deps.Logger.Errorw("selecting ready tasks failed", "project", project.ID, "error", err)
		return
	}

	for _, taskID := range ready {
		e.mu.Lock()
		deadline, hasDeadline := e.retryDeadline[taskID]
		alreadyDispatched := e.dispatched[taskID]
		e.mu.Unlock()

		if alreadyDispatched {
			continue
		}
		if hasDeadline && e.now().Before(deadline) {
			continue
		}

		task := project.Tasks[taskID]
		if !e.resourcesOnline(task) {
			continue
		}

		bundle, estimate, failCode, err := e.estimateTask(project, task)
		if err != nil {
			e.failPermanently(ctx, project, task, failCode, err)
			continue
		}

		if err := e.deps.Enforcer.Reserve(ctx, project, task.ID, estimate); err != nil {
			e.warnBudgetExceeded(ctx, project, err)
			break // budget exhausted: stop scheduling further tasks for this project this tick
		}

		if !e.sem.TryAcquire(1) {
			e.deps.Enforcer.Release(ctx, project, task.ID)
			break // concurrency gate full; remaining tasks wait for next tick
		}

		e.mu.Lock()
		e.dispatched[taskID] = true
		e.mu.Unlock()

		task.State = contracts.TaskQueued
		if err := e.deps.Store.UpdateTask(ctx, task); err != nil {
			e.deps.Logger.Errorw("persisting queued state failed", "task", taskID, "error", err)
		}

		workerCtx, cancel := context.WithCancel(ctx)
		e.mu.Lock()
		e.inflight[taskID] = cancel
		e.mu.Unlock()

		metrics.TasksDispatched.WithLabelValues(task.TaskType).Inc()
		go e.runWorker(workerCtx, cancel, project, task, bundle, estimate)
	}
}

// warnBudgetExceeded publishes a budget_warning event exactly once per
// project/dimension/period-key combination, so a tick that refuses every
// remaining task in a project doesn't spam one event per refused task.
func (e *Executor) warnBudgetExceeded(ctx context.Context, project *contracts.Project, reserveErr error) {
	kind, periodKey := "unknown", ""
	var exceeded *budget.ExceededError
	if errors.As(reserveErr, &exceeded) {
		kind, periodKey = string(exceeded.Kind), exceeded.PeriodKey
	}
	warnKey := fmt.Sprintf("%s|%s|%s", project.ID, kind, periodKey)

	e.mu.Lock()
	if e.warnedPeriods[warnKey] {
		e.mu.Unlock()
		return
	}
	e.warnedPeriods[warnKey] = true
	e.mu.Unlock()

	e.publish(ctx, project.ID, "budget_warning", map[string]string{"kind": kind, "period_key": periodKey})
}

func (e *Executor) resourcesOnline(task *contracts.Task) bool {
	if e.deps.ResourceMonitor == nil || task.TaskType == "" {
		return true
	}
	return e.deps.ResourceMonitor.IsAvailable(task.TaskType)
}

// checkLiveness implements invariant I7 / dead-project detection: a project
// with no PENDING/QUEUED/RUNNING work but at least one BLOCKED task can
// never make progress and is failed outright. NEEDS_REVIEW tasks are
// excluded from "runnable" but do not count as dead either — a project
// awaiting human action is not dead (Open Question O2).
func (e *Executor) checkLiveness(ctx context.Context, project *contracts.Project) bool {
	hasRunnable := false
	hasBlocked := false
	for id, task := range project.Tasks {
		switch task.State {
		case contracts.TaskPending:
			if decomposer.IsBlocked(project, id) {
				hasBlocked = true
			} else {
				hasRunnable = true
			}
		case contracts.TaskQueued, contracts.TaskRunning:
			hasRunnable = true
		}
	}

	if !hasRunnable && hasBlocked {
		project.State = contracts.ProjectFailed
		_ = e.deps.Store.UpdateProject(ctx, project)
		e.publish(ctx, project.ID, "project_failed", map[string]string{"reason": "unsatisfiable dependencies"})
		return true
	}
	return false
}

func (e *Executor) checkTerminal(ctx context.Context, project *contracts.Project) bool {
	allTerminal := true
	anyFailed := false
	for _, task := range project.Tasks {
		if task.State == contracts.TaskNeedsReview {
			allTerminal = false
			continue
		}
		if !task.State.IsTerminal() {
			allTerminal = false
			continue
		}
		if task.State == contracts.TaskFailed {
			anyFailed = true
		}
	}

	if !allTerminal {
		return false
	}

	if anyFailed {
		project.State = contracts.ProjectFailed
		e.publish(ctx, project.ID, "project_failed", map[string]string{"reason": "task failure"})
	} else {
		project.State = contracts.ProjectCompleted
		e.publish(ctx, project.ID, "project_complete", nil)
	}
	_ = e.deps.Store.UpdateProject(ctx, project)
	return true
}

// publish appends event to the Store's durable event log before fanning it
// out on the Publisher, so every event survives a restart and is replayable
// independent of whether a live subscriber was listening.
func (e *Executor) publish(ctx context.Context, projectID contracts.ProjectID, eventType string, payload map[string]string) {
	event := contracts.Event{
		ID:        contracts.EventID(uuid.NewString()),
		ProjectID: projectID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: contracts.Timestamp(e.now().UnixMilli()),
	}
	if e.deps.Store != nil {
		if err := e.deps.Store.AppendEvent(ctx, &event); err != nil {
			e.deps.Logger.Errorw("persisting event failed", "type", eventType, "project", projectID, "error", err)
		}
	}
	if e.deps.Publisher == nil {
		return
	}
	e.deps.Publisher.Publish(event)
}

// backoffFor computes attempt's retry deadline using an exponential backoff
// with jitter. The duration is never slept on inline: it is stored as a
// deadline that a later tick checks.
func backoffFor(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
