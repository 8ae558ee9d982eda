package simcontext

import (
	"context"

	"github.com/simforge/simforge/internal/clock"
	"github.com/simforge/simforge/internal/configtree"
	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/internal/randomness"
)

// Snapshot is a whole-context backup: state table, effective
// configuration, the CRN registration table, clock position, and every
// observation's in-flight accumulator. Pipeline and event-listener
// registrations are not captured — they are references re-resolved from
// the component list a Restore call is given, rather than serialized.
type Snapshot struct {
	Configuration map[string]any
	Population    population.Frame
	Randomness    randomness.State
	Clock         clock.State
	Accumulators  map[string]population.Frame
}

// Snapshot captures the Context's full state. Legal in any phase from
// PopulationInitialization through Report, matching PopulationReadWrite's
// allowed set.
func (c *Context) Snapshot() (Snapshot, error) {
	effective, err := c.Config.Snapshot()
	if err != nil {
		return Snapshot{}, err
	}

	allColumns := c.Population.Schema().Names()
	view, err := c.Population.GetView(allColumns, nil, nil)
	if err != nil {
		return Snapshot{}, err
	}
	popFrame, err := view.Get(view.Index())
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Configuration: effective,
		Population:    popFrame,
		Randomness:    c.Randomness.Snapshot(),
		Clock:         c.Clock.Snapshot(),
		Accumulators:  c.Results.SnapshotAccumulators(),
	}, nil
}

// Restore rebuilds a Context from a prior Snapshot: it replays
// Initialize and Setup against the given component list exactly as Run
// does (so the resource graph, pipelines, and column declarations are
// identical), pins the configuration tree to the snapshot's effective
// values before the tree is frozen, then loads the population, CRN, and
// clock state directly instead of running PopulationInitialization.
func Restore(ctx context.Context, snap Snapshot, opts Options) (*Context, error) {
	c := New(opts)

	if err := c.initialize(); err != nil {
		return nil, err
	}
	if err := c.setup(); err != nil {
		return nil, err
	}
	for key, value := range configtree.Flatten(snap.Configuration) {
		if err := c.Config.SetRuntimeOverride(key, value); err != nil {
			return nil, err
		}
	}
	if err := c.postSetup(ctx); err != nil {
		return nil, err
	}

	if err := c.Lifecycle.Transition(lifecycle.PopulationInitialization); err != nil {
		return nil, err
	}
	if _, err := c.Population.RestoreRows(snap.Population); err != nil {
		return nil, err
	}

	c.Randomness.RestoreState(snap.Randomness)
	c.Clock.RestoreState(snap.Clock)
	c.Results.RestoreAccumulators(snap.Accumulators)

	return c, nil
}
