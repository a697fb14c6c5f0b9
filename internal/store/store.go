// Package store persists projects, tasks, usage records, budget periods,
// checkpoints, and events to SQLite, implementing contracts.Store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/vfirsov/agentflow/contracts"
)

// Store implements contracts.Store over a single SQLite database file.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn (a file path, or ":memory:" for tests), applies the
// schema, and configures SQLite the way a single-writer embedded database
// needs: WAL journaling so readers never block the writer, and a busy
// timeout so a momentary lock contention retries instead of failing.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite has no native connection pooling story; one writer avoids SQLITE_BUSY entirely

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

type projectRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	State      int    `db:"state"`
	PolicyJSON string `db:"policy_json"`
	DAGJSON    string `db:"dag_json"`
	MemoryJSON string `db:"memory_json"`
	UsageJSON  string `db:"usage_json"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

func toProjectRow(p *contracts.Project) (*projectRow, error) {
	policyJSON, err := json.Marshal(p.Policy)
	if err != nil {
		return nil, err
	}
	dagJSON, err := json.Marshal(p.DAG)
	if err != nil {
		return nil, err
	}
	memoryJSON, err := json.Marshal(p.Memory)
	if err != nil {
		return nil, err
	}
	usageJSON, err := json.Marshal(p.Usage)
	if err != nil {
		return nil, err
	}
	return &projectRow{
		ID:         string(p.ID),
		Name:       p.Name,
		State:      int(p.State),
		PolicyJSON: string(policyJSON),
		DAGJSON:    string(dagJSON),
		MemoryJSON: string(memoryJSON),
		UsageJSON:  string(usageJSON),
		CreatedAt:  int64(p.CreatedAt),
		UpdatedAt:  int64(p.UpdatedAt),
	}, nil
}

func (r *projectRow) toProject() (*contracts.Project, error) {
	p := &contracts.Project{
		ID:        contracts.ProjectID(r.ID),
		Name:      r.Name,
		State:     contracts.ProjectState(r.State),
		CreatedAt: contracts.Timestamp(r.CreatedAt),
		UpdatedAt: contracts.Timestamp(r.UpdatedAt),
		Tasks:     make(map[contracts.TaskID]*contracts.Task),
	}
	if err := json.Unmarshal([]byte(r.PolicyJSON), &p.Policy); err != nil {
		return nil, fmt.Errorf("decoding policy: %w", err)
	}
	if err := json.Unmarshal([]byte(r.DAGJSON), &p.DAG); err != nil {
		return nil, fmt.Errorf("decoding dag: %w", err)
	}
	if err := json.Unmarshal([]byte(r.MemoryJSON), &p.Memory); err != nil {
		return nil, fmt.Errorf("decoding memory: %w", err)
	}
	if err := json.Unmarshal([]byte(r.UsageJSON), &p.Usage); err != nil {
		return nil, fmt.Errorf("decoding usage: %w", err)
	}
	return p, nil
}

type taskRow struct {
	ID            string `db:"id"`
	ProjectID     string `db:"project_id"`
	State         int    `db:"state"`
	Description   string `db:"description"`
	Priority      int    `db:"priority"`
	Wave          int    `db:"wave"`
	DepsJSON      string `db:"deps_json"`
	Model         string `db:"model"`
	TaskType      string `db:"task_type"`
	Complexity    string `db:"complexity"`
	RetryCount    int    `db:"retry_count"`
	MaxRetries    int    `db:"max_retries"`
	RetryDeadline int64  `db:"retry_deadline"`
	Output        string `db:"output"`
	PartialResult bool   `db:"partial_result"`
	ErrorJSON     sql.NullString `db:"error_json"`
	EstimatedJSON string `db:"estimated_json"`
	ActualJSON    string `db:"actual_json"`
	CreatedAt     int64  `db:"created_at"`
	StartedAt     int64  `db:"started_at"`
	CompletedAt   int64  `db:"completed_at"`
}

func toTaskRow(t *contracts.Task) (*taskRow, error) {
	depsJSON, err := json.Marshal(t.Deps)
	if err != nil {
		return nil, err
	}
	estJSON, err := json.Marshal(t.EstimatedUse)
	if err != nil {
		return nil, err
	}
	actJSON, err := json.Marshal(t.ActualUse)
	if err != nil {
		return nil, err
	}
	row := &taskRow{
		ID:            string(t.ID),
		ProjectID:     string(t.ProjectID),
		State:         int(t.State),
		Description:   t.Description,
		Priority:      t.Priority,
		Wave:          t.Wave,
		DepsJSON:      string(depsJSON),
		Model:         string(t.Model),
		TaskType:      t.TaskType,
		Complexity:    t.Complexity,
		RetryCount:    t.RetryCount,
		MaxRetries:    t.MaxRetries,
		RetryDeadline: int64(t.RetryDeadline),
		Output:        t.Output,
		PartialResult: t.PartialResult,
		EstimatedJSON: string(estJSON),
		ActualJSON:    string(actJSON),
		CreatedAt:     int64(t.CreatedAt),
		StartedAt:     int64(t.StartedAt),
		CompletedAt:   int64(t.CompletedAt),
	}
	if t.Error != nil {
		errJSON, err := json.Marshal(t.Error)
		if err != nil {
			return nil, err
		}
		row.ErrorJSON = sql.NullString{String: string(errJSON), Valid: true}
	}
	return row, nil
}

func (r *taskRow) toTask() (*contracts.Task, error) {
	t := &contracts.Task{
		ID:            contracts.TaskID(r.ID),
		ProjectID:     contracts.ProjectID(r.ProjectID),
		State:         contracts.TaskState(r.State),
		Description:   r.Description,
		Priority:      r.Priority,
		Wave:          r.Wave,
		Model:         contracts.ModelID(r.Model),
		TaskType:      r.TaskType,
		Complexity:    r.Complexity,
		RetryCount:    r.RetryCount,
		MaxRetries:    r.MaxRetries,
		RetryDeadline: contracts.Timestamp(r.RetryDeadline),
		Output:        r.Output,
		PartialResult: r.PartialResult,
		CreatedAt:     contracts.Timestamp(r.CreatedAt),
		StartedAt:     contracts.Timestamp(r.StartedAt),
		CompletedAt:   contracts.Timestamp(r.CompletedAt),
	}
	if err := json.Unmarshal([]byte(r.DepsJSON), &t.Deps); err != nil {
		return nil, fmt.Errorf("decoding deps: %w", err)
	}
	if err := json.Unmarshal([]byte(r.EstimatedJSON), &t.EstimatedUse); err != nil {
		return nil, fmt.Errorf("decoding estimated use: %w", err)
	}
	if err := json.Unmarshal([]byte(r.ActualJSON), &t.ActualUse); err != nil {
		return nil, fmt.Errorf("decoding actual use: %w", err)
	}
	if r.ErrorJSON.Valid {
		t.Error = &contracts.TaskError{}
		if err := json.Unmarshal([]byte(r.ErrorJSON.String), t.Error); err != nil {
			return nil, fmt.Errorf("decoding task error: %w", err)
		}
	}
	return t, nil
}

// CreateProject inserts project and every task already present on it.
func (s *Store) CreateProject(ctx context.Context, project *contracts.Project) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		row, err := toProjectRow(project)
		if err != nil {
			return err
		}
		_, err = s.conn(ctx).ExecContext(ctx, `
			INSERT INTO projects (id, name, state, policy_json, dag_json, memory_json, usage_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, row.Name, row.State, row.PolicyJSON, row.DAGJSON, row.MemoryJSON, row.UsageJSON, row.CreatedAt, row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting project: %w", err)
		}
		for _, task := range project.Tasks {
			if err := s.upsertTask(ctx, task); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProject loads a project and all of its tasks.
func (s *Store) GetProject(ctx context.Context, id contracts.ProjectID) (*contracts.Project, error) {
	var row projectRow
	err := s.conn(ctx).GetContext(ctx, &row, `SELECT * FROM projects WHERE id = ?`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading project %q: %w", id, err)
	}
	project, err := row.toProject()
	if err != nil {
		return nil, err
	}

	var taskRows []taskRow
	if err := s.conn(ctx).SelectContext(ctx, &taskRows, `SELECT * FROM tasks WHERE project_id = ?`, string(id)); err != nil {
		return nil, fmt.Errorf("loading tasks for project %q: %w", id, err)
	}
	for _, tr := range taskRows {
		task, err := tr.toTask()
		if err != nil {
			return nil, err
		}
		project.Tasks[task.ID] = task
	}
	return project, nil
}

// ListActiveProjects returns every project not in a terminal state, used by
// the executor's tick loop.
func (s *Store) ListActiveProjects(ctx context.Context) ([]*contracts.Project, error) {
	var rows []projectRow
	err := s.conn(ctx).SelectContext(ctx, &rows, `
		SELECT * FROM projects
		WHERE state NOT IN (?, ?, ?)`,
		int(contracts.ProjectCompleted), int(contracts.ProjectFailed), int(contracts.ProjectCancelled))
	if err != nil {
		return nil, fmt.Errorf("listing active projects: %w", err)
	}

	projects := make([]*contracts.Project, 0, len(rows))
	for _, row := range rows {
		project, err := row.toProject()
		if err != nil {
			return nil, err
		}
		var taskRows []taskRow
		if err := s.conn(ctx).SelectContext(ctx, &taskRows, `SELECT * FROM tasks WHERE project_id = ?`, project.ID); err != nil {
			return nil, fmt.Errorf("loading tasks for project %q: %w", project.ID, err)
		}
		for _, tr := range taskRows {
			task, err := tr.toTask()
			if err != nil {
				return nil, err
			}
			project.Tasks[task.ID] = task
		}
		projects = append(projects, project)
	}
	return projects, nil
}

// UpdateProject persists a project's mutable fields: state, memory, usage,
// updated_at. Policy and DAG are immutable after creation.
func (s *Store) UpdateProject(ctx context.Context, project *contracts.Project) error {
	memoryJSON, err := json.Marshal(project.Memory)
	if err != nil {
		return err
	}
	usageJSON, err := json.Marshal(project.Usage)
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		UPDATE projects SET state = ?, memory_json = ?, usage_json = ?, updated_at = ?
		WHERE id = ?`,
		int(project.State), string(memoryJSON), string(usageJSON), int64(project.UpdatedAt), string(project.ID))
	if err != nil {
		return fmt.Errorf("updating project %q: %w", project.ID, err)
	}
	return nil
}

// UpdateTask upserts a single task row, used for every state transition the
// executor makes.
func (s *Store) UpdateTask(ctx context.Context, task *contracts.Task) error {
	return s.upsertTask(ctx, task)
}

func (s *Store) upsertTask(ctx context.Context, task *contracts.Task) error {
	row, err := toTaskRow(task)
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO tasks (
			id, project_id, state, description, priority, wave, deps_json, model, task_type,
			complexity, retry_count, max_retries, retry_deadline, output, partial_result,
			error_json, estimated_json, actual_json, created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, id) DO UPDATE SET
			state = excluded.state,
			retry_count = excluded.retry_count,
			retry_deadline = excluded.retry_deadline,
			output = excluded.output,
			partial_result = excluded.partial_result,
			error_json = excluded.error_json,
			estimated_json = excluded.estimated_json,
			actual_json = excluded.actual_json,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		row.ID, row.ProjectID, row.State, row.Description, row.Priority, row.Wave, row.DepsJSON,
		row.Model, row.TaskType, row.Complexity, row.RetryCount, row.MaxRetries, row.RetryDeadline,
		row.Output, row.PartialResult, row.ErrorJSON, row.EstimatedJSON, row.ActualJSON,
		row.CreatedAt, row.StartedAt, row.CompletedAt)
	if err != nil {
		return fmt.Errorf("upserting task %q: %w", task.ID, err)
	}
	return nil
}

// RecordUsage inserts an immutable usage ledger entry (invariant I5).
func (s *Store) RecordUsage(ctx context.Context, record *contracts.UsageRecord) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO usage_records (id, project_id, task_id, model, tokens, cost_amount, currency, period_key, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, string(record.ProjectID), string(record.TaskID), string(record.Model),
		int64(record.Tokens), record.Cost.Amount, string(record.Cost.Currency), record.PeriodKey, int64(record.RecordedAt))
	if err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

// UpsertBudgetPeriod persists a BudgetPeriod snapshot for restart recovery.
// Reservations in flight do not survive restart (Open Question O3); only
// Spent and Limit are meaningfully durable here.
func (s *Store) UpsertBudgetPeriod(ctx context.Context, period *contracts.BudgetPeriod) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO budget_periods (project_id, kind, period_key, limit_amount, limit_currency, reserved, spent)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, kind, period_key) DO UPDATE SET
			reserved = excluded.reserved,
			spent = excluded.spent`,
		string(period.ProjectID), string(period.Kind), period.PeriodKey,
		period.Limit.Amount, string(period.Limit.Currency), period.Reserved, period.Spent)
	if err != nil {
		return fmt.Errorf("upserting budget period: %w", err)
	}
	return nil
}

// GetBudgetPeriod loads a single period, or nil if none has been persisted yet.
func (s *Store) GetBudgetPeriod(ctx context.Context, projectID contracts.ProjectID, kind contracts.BudgetPeriodKind, periodKey string) (*contracts.BudgetPeriod, error) {
	var row struct {
		ProjectID     string  `db:"project_id"`
		Kind          string  `db:"kind"`
		PeriodKey     string  `db:"period_key"`
		LimitAmount   float64 `db:"limit_amount"`
		LimitCurrency string  `db:"limit_currency"`
		Reserved      float64 `db:"reserved"`
		Spent         float64 `db:"spent"`
	}
	err := s.conn(ctx).GetContext(ctx, &row, `
		SELECT * FROM budget_periods WHERE project_id = ? AND kind = ? AND period_key = ?`,
		string(projectID), string(kind), periodKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading budget period: %w", err)
	}
	return &contracts.BudgetPeriod{
		ProjectID: contracts.ProjectID(row.ProjectID),
		Kind:      contracts.BudgetPeriodKind(row.Kind),
		PeriodKey: row.PeriodKey,
		Limit:     contracts.Cost{Amount: row.LimitAmount, Currency: contracts.Currency(row.LimitCurrency)},
		Reserved:  row.Reserved,
		Spent:     row.Spent,
	}, nil
}

// CreateCheckpoint raises a new human-in-the-loop gate.
func (s *Store) CreateCheckpoint(ctx context.Context, checkpoint *contracts.Checkpoint) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO checkpoints (id, project_id, task_id, state, reason, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(checkpoint.ID), string(checkpoint.ProjectID), string(checkpoint.TaskID),
		int(checkpoint.State), checkpoint.Reason, int64(checkpoint.CreatedAt), int64(checkpoint.ResolvedAt))
	if err != nil {
		return fmt.Errorf("creating checkpoint: %w", err)
	}
	return nil
}

// ResolveCheckpoint transitions an open checkpoint to approved or rejected.
func (s *Store) ResolveCheckpoint(ctx context.Context, id contracts.CheckpointID, approved bool) (*contracts.Checkpoint, error) {
	checkpoint, err := s.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if checkpoint.State != contracts.CheckpointOpen {
		return nil, contracts.ErrCheckpointResolved
	}

	newState := contracts.CheckpointRejected
	if approved {
		newState = contracts.CheckpointApproved
	}
	resolvedAt := time.Now().UnixMilli()
	_, err = s.conn(ctx).ExecContext(ctx, `
		UPDATE checkpoints SET state = ?, resolved_at = ? WHERE id = ?`,
		int(newState), resolvedAt, string(id))
	if err != nil {
		return nil, fmt.Errorf("resolving checkpoint %q: %w", id, err)
	}
	checkpoint.State = newState
	checkpoint.ResolvedAt = contracts.Timestamp(resolvedAt)
	return checkpoint, nil
}

// GetCheckpoint loads a single checkpoint by id.
func (s *Store) GetCheckpoint(ctx context.Context, id contracts.CheckpointID) (*contracts.Checkpoint, error) {
	var row struct {
		ID         string `db:"id"`
		ProjectID  string `db:"project_id"`
		TaskID     string `db:"task_id"`
		State      int    `db:"state"`
		Reason     string `db:"reason"`
		CreatedAt  int64  `db:"created_at"`
		ResolvedAt int64  `db:"resolved_at"`
	}
	err := s.conn(ctx).GetContext(ctx, &row, `SELECT * FROM checkpoints WHERE id = ?`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %q: %w", id, err)
	}
	return &contracts.Checkpoint{
		ID:         contracts.CheckpointID(row.ID),
		ProjectID:  contracts.ProjectID(row.ProjectID),
		TaskID:     contracts.TaskID(row.TaskID),
		State:      contracts.CheckpointState(row.State),
		Reason:     row.Reason,
		CreatedAt:  contracts.Timestamp(row.CreatedAt),
		ResolvedAt: contracts.Timestamp(row.ResolvedAt),
	}, nil
}

// AppendEvent persists one event to the durable log backing replay for
// subscribers that reconnect after a gap.
func (s *Store) AppendEvent(ctx context.Context, event *contracts.Event) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO events (id, project_id, type, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(event.ID), string(event.ProjectID), event.Type, string(payloadJSON), int64(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}
