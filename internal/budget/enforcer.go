package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vfirsov/agentflow/contracts"
	"github.com/vfirsov/agentflow/internal/metrics"
)

// hardStopMargin is the epsilon used by CanContinue: once remaining budget
// on any configured dimension drops to this fraction of its limit or below,
// the mid-loop check refuses further spend even though a hard Reserve might
// still technically fit.
const hardStopMargin = 0.02

// dimensions lists the three budget dimensions every Reserve/Record/Release
// call is checked against: process-wide daily, process-wide monthly, and
// per-project lifetime.
var dimensions = [...]contracts.BudgetPeriodKind{
	contracts.BudgetPeriodDaily,
	contracts.BudgetPeriodMonthly,
	contracts.BudgetPeriodProject,
}

// PeriodKey computes the rollover key for a budget period kind at time t.
// Daily periods key by calendar day, monthly periods by calendar month, both
// in UTC so a single process's drift across midnight is bounded and
// deterministic rather than timezone-dependent. The project dimension never
// rolls over, so it always keys to the empty string.
func PeriodKey(kind contracts.BudgetPeriodKind, t time.Time) string {
	switch kind {
	case contracts.BudgetPeriodMonthly:
		return t.UTC().Format("2006-01")
	case contracts.BudgetPeriodProject:
		return ""
	default:
		return t.UTC().Format("2006-01-02")
	}
}

// limitFor returns the configured limit for one dimension of project's
// policy, zero meaning that dimension is unenforced.
func limitFor(project *contracts.Project, kind contracts.BudgetPeriodKind) contracts.Cost {
	switch kind {
	case contracts.BudgetPeriodDaily:
		return project.Policy.DailyBudgetLimit
	case contracts.BudgetPeriodMonthly:
		return project.Policy.MonthlyBudgetLimit
	default:
		return project.Policy.ProjectBudgetLimit
	}
}

// ExceededError is returned by Reserve when one dimension's projected spend
// would exceed its limit, identifying which dimension and period tripped so
// callers can raise a budget_warning keyed to it.
type ExceededError struct {
	Kind      contracts.BudgetPeriodKind
	PeriodKey string
	Projected float64
	Limit     float64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("projected %s spend %.4f exceeds limit %.4f", e.Kind, e.Projected, e.Limit)
}

func (e *ExceededError) Unwrap() error { return contracts.ErrBudgetExceeded }

type reservation struct {
	taskID contracts.TaskID
	amount float64
}

type dimKey struct {
	kind      contracts.BudgetPeriodKind
	periodKey string
}

// Enforcer tracks reserved and spent amounts per project across its three
// budget dimensions, guarding against concurrent over-commitment on any one
// of them (invariant I4). Reservations live only in memory and do not
// survive a restart (Open Question O3); each dimension's Spent is hydrated
// from the Store the first time it is seen, so a restarted process picks up
// already-committed spend instead of starting every dimension at zero.
type Enforcer struct {
	mu           sync.Mutex
	store        contracts.Store
	periods      map[contracts.ProjectID]map[dimKey]*contracts.BudgetPeriod
	reservations map[contracts.ProjectID]map[contracts.TaskID]reservation
	now          func() time.Time
}

// NewEnforcer creates a new Enforcer using the wall clock. store may be nil
// in tests that don't care about restart hydration; a nil store simply
// leaves every dimension's Spent at zero until Record is called.
func NewEnforcer(store contracts.Store) *Enforcer {
	return &Enforcer{
		store:        store,
		periods:      make(map[contracts.ProjectID]map[dimKey]*contracts.BudgetPeriod),
		reservations: make(map[contracts.ProjectID]map[contracts.TaskID]reservation),
		now:          time.Now,
	}
}

// period returns the in-memory BudgetPeriod for project's dimension,
// creating and hydrating it from the Store on first sight. Must be called
// with e.mu held.
func (e *Enforcer) period(ctx context.Context, project *contracts.Project, kind contracts.BudgetPeriodKind) *contracts.BudgetPeriod {
	key := PeriodKey(kind, e.now())
	dk := dimKey{kind: kind, periodKey: key}

	byDim, ok := e.periods[project.ID]
	if !ok {
		byDim = make(map[dimKey]*contracts.BudgetPeriod)
		e.periods[project.ID] = byDim
	}
	p, ok := byDim[dk]
	if !ok {
		p = &contracts.BudgetPeriod{
			ProjectID: project.ID,
			Kind:      kind,
			PeriodKey: key,
			Limit:     limitFor(project, kind),
		}
		if e.store != nil {
			if persisted, err := e.store.GetBudgetPeriod(ctx, project.ID, kind, key); err == nil && persisted != nil {
				p.Spent = persisted.Spent
			}
		}
		byDim[dk] = p
	}
	return p
}

// Reserve holds back estimate ahead of dispatch against every dimension
// that has a configured limit. Concurrent reservations within the same tick
// are serialized by the Enforcer's own mutex, so the projected-total check
// below is race-free even when many callers reserve in parallel
// (invariant I4).
func (e *Enforcer) Reserve(ctx context.Context, project *contracts.Project, taskID contracts.TaskID, estimate contracts.Cost) error {
	if project == nil {
		return fmt.Errorf("project nil: %w", contracts.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	configured := make([]*contracts.BudgetPeriod, 0, len(dimensions))
	for _, kind := range dimensions {
		if limitFor(project, kind).Amount <= 0 {
			continue
		}
		p := e.period(ctx, project, kind)
		projected := p.Spent + p.Reserved + estimate.Amount
		if projected > p.Limit.Amount {
			metrics.BudgetRejections.WithLabelValues(string(kind)).Inc()
			return &ExceededError{Kind: kind, PeriodKey: p.PeriodKey, Projected: projected, Limit: p.Limit.Amount}
		}
		configured = append(configured, p)
	}
	if len(configured) == 0 {
		return contracts.ErrBudgetNotSet
	}

	for _, p := range configured {
		p.Reserved += estimate.Amount
	}
	byTask, ok := e.reservations[project.ID]
	if !ok {
		byTask = make(map[contracts.TaskID]reservation)
		e.reservations[project.ID] = byTask
	}
	byTask[taskID] = reservation{taskID: taskID, amount: estimate.Amount}
	return nil
}

// Record converts a task's reservation into actual spend on every
// dimension. If the task had no active reservation (e.g. Record called
// twice), the actual amount is still applied directly to Spent so
// invariant I5 (usage record / spend consistency) holds even on that edge
// case.
func (e *Enforcer) Record(ctx context.Context, project *contracts.Project, taskID contracts.TaskID, actual contracts.Cost) error {
	if project == nil {
		return fmt.Errorf("project nil: %w", contracts.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	reserved := e.takeReservation(project.ID, taskID)
	for _, kind := range dimensions {
		p := e.period(ctx, project, kind)
		p.Reserved -= reserved
		if p.Reserved < 0 {
			p.Reserved = 0
		}
		p.Spent += actual.Amount
	}
	return nil
}

// Release cancels a reservation without recording spend.
func (e *Enforcer) Release(ctx context.Context, project *contracts.Project, taskID contracts.TaskID) {
	if project == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	reserved := e.takeReservation(project.ID, taskID)
	if reserved == 0 {
		return
	}
	for _, kind := range dimensions {
		p := e.period(ctx, project, kind)
		p.Reserved -= reserved
		if p.Reserved < 0 {
			p.Reserved = 0
		}
	}
}

// takeReservation removes and returns taskID's held-back amount for
// project, or zero if it has none. Must be called with e.mu held.
func (e *Enforcer) takeReservation(projectID contracts.ProjectID, taskID contracts.TaskID) float64 {
	byTask, ok := e.reservations[projectID]
	if !ok {
		return 0
	}
	r, ok := byTask[taskID]
	if !ok {
		return 0
	}
	delete(byTask, taskID)
	return r.amount
}

// CanContinue reports whether committed additional spend on top of each
// configured dimension's already-recorded Spent still leaves at least
// hardStopMargin of that dimension's limit unspent. Used by the Agent
// Runner between tool-use rounds. A project with no configured dimension
// can never continue, matching Reserve's ErrBudgetNotSet behavior.
func (e *Enforcer) CanContinue(ctx context.Context, project *contracts.Project, committed contracts.Cost) bool {
	if project == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	checked := false
	for _, kind := range dimensions {
		limit := limitFor(project, kind)
		if limit.Amount <= 0 {
			continue
		}
		checked = true
		p := e.period(ctx, project, kind)
		margin := p.Limit.Amount * hardStopMargin
		remaining := p.Limit.Amount - p.Spent - committed.Amount
		if remaining <= margin {
			return false
		}
	}
	return checked
}

// Snapshot returns a copy of every dimension's current period for project,
// for API reads and Store persistence.
func (e *Enforcer) Snapshot(ctx context.Context, project *contracts.Project) []contracts.BudgetPeriod {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]contracts.BudgetPeriod, 0, len(dimensions))
	for _, kind := range dimensions {
		out = append(out, *e.period(ctx, project, kind))
	}
	return out
}
