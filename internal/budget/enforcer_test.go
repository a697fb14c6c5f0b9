package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vfirsov/agentflow/contracts"
)

func mkProject(limit float64) *contracts.Project {
	return &contracts.Project{
		ID: "p1",
		Policy: contracts.ProjectPolicy{
			DailyBudgetLimit: contracts.Cost{Amount: limit, Currency: "USD"},
		},
	}
}

func dailyPeriod(periods []contracts.BudgetPeriod) contracts.BudgetPeriod {
	for _, p := range periods {
		if p.Kind == contracts.BudgetPeriodDaily {
			return p
		}
	}
	return contracts.BudgetPeriod{}
}

func TestEnforcer_ReserveWithinBudget(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(nil)
	p := mkProject(1.0)

	require.NoError(t, e.Reserve(ctx, p, "t1", contracts.Cost{Amount: 0.5}))
	require.NoError(t, e.Reserve(ctx, p, "t2", contracts.Cost{Amount: 0.5}))
}

func TestEnforcer_ReserveExceedsBudget(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(nil)
	p := mkProject(1.0)

	require.NoError(t, e.Reserve(ctx, p, "t1", contracts.Cost{Amount: 0.9}))
	err := e.Reserve(ctx, p, "t2", contracts.Cost{Amount: 0.2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrBudgetExceeded))

	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, contracts.BudgetPeriodDaily, exceeded.Kind)
}

func TestEnforcer_BudgetNotSet(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(nil)
	p := mkProject(0)

	err := e.Reserve(ctx, p, "t1", contracts.Cost{Amount: 0.01})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrBudgetNotSet))
}

func TestEnforcer_RecordReleasesReservation(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(nil)
	p := mkProject(1.0)

	require.NoError(t, e.Reserve(ctx, p, "t1", contracts.Cost{Amount: 0.5}))
	require.NoError(t, e.Record(ctx, p, "t1", contracts.Cost{Amount: 0.1}))

	snap := dailyPeriod(e.Snapshot(ctx, p))
	assert.InDelta(t, 0.0, snap.Reserved, 1e-9)
	assert.InDelta(t, 0.1, snap.Spent, 1e-9)

	// The freed reservation headroom allows a new reservation that would
	// have been denied while t1's original estimate was still held.
	require.NoError(t, e.Reserve(ctx, p, "t2", contracts.Cost{Amount: 0.8}))
}

func TestEnforcer_ReleaseWithoutRecording(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(nil)
	p := mkProject(1.0)

	require.NoError(t, e.Reserve(ctx, p, "t1", contracts.Cost{Amount: 0.9}))
	e.Release(ctx, p, "t1")

	snap := dailyPeriod(e.Snapshot(ctx, p))
	assert.InDelta(t, 0.0, snap.Reserved, 1e-9)
	assert.InDelta(t, 0.0, snap.Spent, 1e-9)
}

func TestEnforcer_CanContinue_HardStopMargin(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(nil)
	p := mkProject(1.0)

	assert.True(t, e.CanContinue(ctx, p, contracts.Cost{Amount: 0.9}))
	assert.False(t, e.CanContinue(ctx, p, contracts.Cost{Amount: 0.99}))
}

func TestEnforcer_CanContinueFalseWhenNoDimensionConfigured(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(nil)
	p := &contracts.Project{ID: "p1"}
	assert.False(t, e.CanContinue(ctx, p, contracts.Cost{Amount: 0}))
}

// fakePeriodStore lets a single test observe that Reserve hydrates Spent
// from the store on first touch of a (project, dimension) pair.
type fakePeriodStore struct {
	contracts.Store
	periods map[string]*contracts.BudgetPeriod
}

func (s *fakePeriodStore) GetBudgetPeriod(ctx context.Context, projectID contracts.ProjectID, kind contracts.BudgetPeriodKind, periodKey string) (*contracts.BudgetPeriod, error) {
	key := fmt.Sprintf("%s|%s|%s", projectID, kind, periodKey)
	p, ok := s.periods[key]
	if !ok {
		return nil, nil
	}
	return p, nil
}

func TestEnforcer_HydratesSpentFromStore(t *testing.T) {
	ctx := context.Background()
	fixedNow := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	key := fmt.Sprintf("p1|daily|%s", PeriodKey(contracts.BudgetPeriodDaily, fixedNow))
	store := &fakePeriodStore{
		periods: map[string]*contracts.BudgetPeriod{
			key: {ProjectID: "p1", Kind: contracts.BudgetPeriodDaily, Spent: 0.7},
		},
	}
	e := NewEnforcer(store)
	e.now = func() time.Time { return fixedNow }
	p := mkProject(1.0)

	err := e.Reserve(ctx, p, "t1", contracts.Cost{Amount: 0.4})
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrBudgetExceeded)
}

func TestEnforcer_ConcurrentReserveNeverOvercommits(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(nil)
	p := mkProject(1.0)

	const n = 50
	const perReserve = 0.03 // 50 * 0.03 = 1.50, more than the 1.00 limit

	var wg sync.WaitGroup
	var mu sync.Mutex
	var allowed int

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			taskID := contracts.TaskID(fmt.Sprintf("task-%d", i))
			if err := e.Reserve(ctx, p, taskID, contracts.Cost{Amount: perReserve}); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	snap := dailyPeriod(e.Snapshot(ctx, p))
	assert.LessOrEqual(t, snap.Reserved, p.Policy.DailyBudgetLimit.Amount+1e-9)
	assert.Equal(t, perReserve*float64(allowed), snap.Reserved)
}
