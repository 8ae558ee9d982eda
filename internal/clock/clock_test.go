package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/population"
)

func TestClock_DoneWithZeroDurationRunsNoIterations(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(start, start, 24*time.Hour)
	assert.True(t, c.Done())
}

func TestClock_AdvanceWithNoModifiersUsesGlobalStep(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * 24 * time.Hour)
	c := New(start, end, 24*time.Hour)

	lc := lifecycle.NewManager()
	require.NoError(t, lc.Transition(lifecycle.Setup))
	pm := population.New(lc)
	pm.FreezeSchema()
	require.NoError(t, lc.Transition(lifecycle.PostSetup))
	require.NoError(t, lc.Transition(lifecycle.PopulationInitialization))
	view, err := pm.GetView(nil, nil, nil)
	require.NoError(t, err)

	eventTime, step, scheduled := c.Advance(view, nil)
	assert.Equal(t, 24*time.Hour, step)
	assert.Equal(t, start.Add(24*time.Hour), eventTime)
	assert.Equal(t, start.Add(24*time.Hour), c.ClockTime())
	assert.Empty(t, scheduled)
}

func TestClock_AdvanceTakesMinimumProposalAboveGlobalFloor(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * 24 * time.Hour)
	c := New(start, end, 12*time.Hour)

	lc := lifecycle.NewManager()
	require.NoError(t, lc.Transition(lifecycle.Setup))
	pm := population.New(lc)
	pm.FreezeSchema()
	require.NoError(t, lc.Transition(lifecycle.PostSetup))
	require.NoError(t, lc.Transition(lifecycle.PopulationInitialization))
	view, err := pm.GetView(nil, nil, nil)
	require.NoError(t, err)

	modA := func(pop *population.View) map[population.SimulantID]time.Duration {
		return map[population.SimulantID]time.Duration{1: 3 * 24 * time.Hour}
	}
	modB := func(pop *population.View) map[population.SimulantID]time.Duration {
		return map[population.SimulantID]time.Duration{1: 1 * 24 * time.Hour, 2: 5 * 24 * time.Hour}
	}

	_, step, scheduled := c.Advance(view, []StepSizeModifier{modA, modB})
	assert.Equal(t, 1*24*time.Hour, step)
	assert.ElementsMatch(t, []population.SimulantID{1, 2}, scheduled)
}

// TestClock_AdvanceFloorsProposalsAtGlobalStep mirrors the scenario of a
// per-simulant step modifier (e.g. an infected cohort proposing a
// shorter step) alongside GlobalStep as the configured minimum: on a
// tick where no simulant proposes below GlobalStep, the step taken is
// the smallest proposal actually present, never something GlobalStep
// would have capped it down to.
func TestClock_AdvanceFloorsProposalsAtGlobalStep(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * 24 * time.Hour)
	c := New(start, end, 12*time.Hour) // 0.5 day global minimum

	lc := lifecycle.NewManager()
	require.NoError(t, lc.Transition(lifecycle.Setup))
	pm := population.New(lc)
	pm.FreezeSchema()
	require.NoError(t, lc.Transition(lifecycle.PostSetup))
	require.NoError(t, lc.Transition(lifecycle.PopulationInitialization))
	view, err := pm.GetView(nil, nil, nil)
	require.NoError(t, err)

	// No infected simulant this tick: the only modifier proposal is the
	// uninfected cohort's 3-day step, well above the 0.5-day global
	// minimum.
	uninfected := func(pop *population.View) map[population.SimulantID]time.Duration {
		return map[population.SimulantID]time.Duration{1: 3 * 24 * time.Hour, 2: 3 * 24 * time.Hour}
	}

	_, step, scheduled := c.Advance(view, []StepSizeModifier{uninfected})
	assert.Equal(t, 3*24*time.Hour, step)
	assert.ElementsMatch(t, []population.SimulantID{1, 2}, scheduled)
}

func TestClock_EventTimeIsClockTimePlusNextStep(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(start, start.Add(100*time.Hour), 10*time.Hour)

	assert.Equal(t, start, c.ClockTime())
	assert.Equal(t, start.Add(10*time.Hour), c.EventTime())
}
