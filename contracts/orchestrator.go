package contracts

import "context"

// Executor drives every eligible project from READY to a terminal state,
// ticking on an interval and honoring concurrency, budget, dependency, and
// resource constraints.
//
// Tick returns nil after processing one full pass over active projects.
// Individual project or task failures do not stop the tick; they are
// reflected in project/task state and in published events.
//
// Tick returns an error only when the active projects cannot be loaded
// from the Store, in which case no project is processed; failures to
// persist project or task state and ordinary task failures never surface
// here.
type Executor interface {
	Tick(ctx context.Context) error
}
