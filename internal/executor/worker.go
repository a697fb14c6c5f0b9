package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vfirsov/agentflow/contracts"
	"github.com/vfirsov/agentflow/internal/audit"
	"github.com/vfirsov/agentflow/internal/metrics"
)

// estimateTask builds and compacts task's context bundle and estimates its
// cost, without reserving anything. It runs synchronously in the dispatch
// loop, before a task is marked QUEUED, so a failure here never consumes a
// concurrency permit or launches a worker goroutine. The returned failCode
// identifies which step failed, for failPermanently's TaskError.Code.
func (e *Executor) estimateTask(project *contracts.Project, task *contracts.Task) (*contracts.ContextBundle, contracts.Cost, string, error) {
	bundle, err := e.deps.ContextBuilder.Build(project, task.ID)
	if err != nil {
		return nil, contracts.Cost{}, "context_build_failed", err
	}
	bundle, err = e.deps.Compactor.Compact(bundle, project.Policy.ContextPolicy)
	if err != nil {
		return nil, contracts.Cost{}, "context_compaction_failed", err
	}

	tokens, err := e.deps.TokenEstimator.Estimate(bundle, task.Description)
	if err != nil {
		return nil, contracts.Cost{}, "estimation_failed", err
	}
	estimate, err := e.deps.CostCalc.Estimate(tokens, task.Model)
	if err != nil {
		return nil, contracts.Cost{}, "unknown_model", err
	}
	return bundle, estimate, "", nil
}

// runWorker executes one dispatched task end to end: call the agent against
// its already-reserved bundle/estimate, then transition the task to its
// outcome state. It always releases the concurrency permit and clears the
// task's dispatch bookkeeping before returning, regardless of outcome.
func (e *Executor) runWorker(ctx context.Context, cancel context.CancelFunc, project *contracts.Project, task *contracts.Task, bundle *contracts.ContextBundle, estimate contracts.Cost) {
	defer func() {
		cancel()
		e.sem.Release(1)
		e.mu.Lock()
		delete(e.dispatched, task.ID)
		delete(e.inflight, task.ID)
		e.mu.Unlock()
	}()

	task.State = contracts.TaskRunning
	task.StartedAt = contracts.Timestamp(e.now().UnixMilli())
	if err := e.deps.Store.UpdateTask(ctx, task); err != nil {
		e.deps.Logger.Errorw("persisting running state failed", "task", task.ID, "error", err)
	}
	e.publish(ctx, project.ID, "task_start", map[string]string{"task_id": string(task.ID)})
	audit.Log("task_start", "project_id", project.ID, "task_id", task.ID, "model", task.Model)

	result, err := e.deps.AgentRunner.Run(ctx, project, task, bundle)

	if err != nil {
		e.handleFailure(ctx, project, task, estimate, err)
		return
	}

	e.handleSuccess(ctx, project, task, result)
}

func (e *Executor) handleSuccess(ctx context.Context, project *contracts.Project, task *contracts.Task, result *contracts.AgentResult) {
	if err := e.deps.Enforcer.Record(ctx, project, task.ID, result.Usage.Cost); err != nil {
		e.deps.Logger.Errorw("recording spend failed", "task", task.ID, "error", err)
	}

	task.PartialResult = result.PartialResult
	task.CompletedAt = contracts.Timestamp(e.now().UnixMilli())
	if err := e.deps.Scheduler.MarkComplete(project, task.ID, result.Output, result.Usage); err != nil {
		e.deps.Logger.Errorw("mark complete failed", "task", task.ID, "error", err)
		return
	}

	record := &contracts.UsageRecord{
		ID:         uuid.NewString(),
		ProjectID:  project.ID,
		TaskID:     task.ID,
		Model:      task.Model,
		Tokens:     result.Usage.Tokens,
		Cost:       result.Usage.Cost,
		PeriodKey:  "",
		RecordedAt: contracts.Timestamp(e.now().UnixMilli()),
	}
	periods := e.deps.Enforcer.Snapshot(ctx, project)

	// Usage record, budget period rows, and the completed task move together
	// or not at all: a crash between them must never leave spend recorded
	// without its task, or vice versa.
	txErr := e.deps.Store.WithTx(ctx, func(txCtx context.Context) error {
		if err := e.deps.Store.RecordUsage(txCtx, record); err != nil {
			return fmt.Errorf("recording usage: %w", err)
		}
		for i := range periods {
			if err := e.deps.Store.UpsertBudgetPeriod(txCtx, &periods[i]); err != nil {
				return fmt.Errorf("upserting %s budget period: %w", periods[i].Kind, err)
			}
		}
		if err := e.deps.Store.UpdateTask(txCtx, task); err != nil {
			return fmt.Errorf("persisting completed task: %w", err)
		}
		return nil
	})
	if txErr != nil {
		e.deps.Logger.Errorw("completing task transaction failed", "task", task.ID, "error", txErr)
	}

	eventType := "task_complete"
	if result.PartialResult {
		eventType = "task_partial_complete"
	}
	e.publish(ctx, project.ID, eventType, map[string]string{"task_id": string(task.ID)})
	audit.Log(eventType, "project_id", project.ID, "task_id", task.ID, "cost", result.Usage.Cost.Amount)
	metrics.TaskOutcomes.WithLabelValues("completed").Inc()
}

func (e *Executor) handleFailure(ctx context.Context, project *contracts.Project, task *contracts.Task, estimate contracts.Cost, err error) {
	e.deps.Enforcer.Release(ctx, project, task.ID)

	if errors.Is(err, context.Canceled) {
		task.State = contracts.TaskCancelled
		task.Error = &contracts.TaskError{Code: "cancelled", Message: "cancelled"}
		_ = e.deps.Store.UpdateTask(ctx, task)
		e.publish(ctx, project.ID, "task_failed", map[string]string{"task_id": string(task.ID), "reason": "cancelled"})
		metrics.TaskOutcomes.WithLabelValues("cancelled").Inc()
		return
	}

	if contracts.IsTransient(err) && task.RetryCount < maxRetries(project) {
		task.RetryCount++
		task.State = contracts.TaskPending
		deadline := e.now().Add(backoffFor(task.RetryCount))
		task.RetryDeadline = contracts.Timestamp(deadline.UnixMilli())
		e.mu.Lock()
		e.retryDeadline[task.ID] = deadline
		e.mu.Unlock()
		_ = e.deps.Store.UpdateTask(ctx, task)
		e.publish(ctx, project.ID, "task_retry", map[string]string{"task_id": string(task.ID), "attempt": fmt.Sprintf("%d", task.RetryCount)})
		return
	}

	if contracts.IsTransient(err) {
		// Retries exhausted: escalate to a human checkpoint rather than fail outright.
		task.State = contracts.TaskNeedsReview
		task.Error = &contracts.TaskError{Code: "retries_exhausted", Message: err.Error()}
		_ = e.deps.Store.UpdateTask(ctx, task)

		checkpoint := &contracts.Checkpoint{
			ID:        contracts.CheckpointID(uuid.NewString()),
			ProjectID: project.ID,
			TaskID:    task.ID,
			State:     contracts.CheckpointOpen,
			Reason:    err.Error(),
			CreatedAt: contracts.Timestamp(e.now().UnixMilli()),
		}
		if cErr := e.deps.Store.CreateCheckpoint(ctx, checkpoint); cErr != nil {
			e.deps.Logger.Errorw("creating checkpoint failed", "task", task.ID, "error", cErr)
		}
		e.publish(ctx, project.ID, "task_needs_review", map[string]string{"task_id": string(task.ID)})
		metrics.TaskOutcomes.WithLabelValues("needs_review").Inc()
		return
	}

	e.failPermanently(ctx, project, task, "permanent_error", err)
}

func (e *Executor) failPermanently(ctx context.Context, project *contracts.Project, task *contracts.Task, code string, err error) {
	task.State = contracts.TaskFailed
	task.Error = &contracts.TaskError{Code: code, Message: err.Error()}
	task.CompletedAt = contracts.Timestamp(e.now().UnixMilli())
	if uErr := e.deps.Store.UpdateTask(ctx, task); uErr != nil {
		e.deps.Logger.Errorw("persisting failed task failed", "task", task.ID, "error", uErr)
	}
	e.publish(ctx, project.ID, "task_failed", map[string]string{"task_id": string(task.ID), "code": code})
	metrics.TaskOutcomes.WithLabelValues("failed").Inc()
}

func maxRetries(project *contracts.Project) int {
	if project.Policy.MaxRetries > 0 {
		return project.Policy.MaxRetries
	}
	return defaultMaxRetries
}

// CancelProject signals the in-flight worker of each of taskIDs; it does not
// change the project's state. Each cancelled worker rolls back its own
// reservation and transitions its task on the way out (see handleFailure).
func (e *Executor) CancelProject(ctx context.Context, project *contracts.Project, taskIDs []contracts.TaskID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range taskIDs {
		if cancel, ok := e.inflight[id]; ok {
			cancel()
		}
	}
}
