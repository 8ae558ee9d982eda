// Package clock implements the simulation clock: start/end/step, with
// per-simulant optional step sizes via StepSizeModifier.
package clock

import (
	"time"

	"github.com/simforge/simforge/internal/population"
)

// StepSizeModifier maps a subset of simulants to a proposed step size for
// the upcoming tick. A simulant absent from the returned map is not
// scheduled this iteration.
type StepSizeModifier func(pop *population.View) map[population.SimulantID]time.Duration

// Clock drives the main loop's time axis.
type Clock struct {
	Start      time.Time
	End        time.Time
	GlobalStep time.Duration

	current  time.Time
	nextStep time.Duration
}

// New constructs a Clock positioned at start.
func New(start, end time.Time, globalStep time.Duration) *Clock {
	return &Clock{Start: start, End: end, GlobalStep: globalStep, current: start, nextStep: globalStep}
}

// State is the JSON-serializable snapshot of a Clock's position, for
// simcontext.Context.Snapshot/Restore.
type State struct {
	Current  time.Time     `json:"current"`
	NextStep time.Duration `json:"next_step"`
}

// Snapshot captures the Clock's current position.
func (c *Clock) Snapshot() State {
	return State{Current: c.current, NextStep: c.nextStep}
}

// RestoreState repositions an existing Clock to a prior Snapshot, for
// simcontext.Context.Restore.
func (c *Clock) RestoreState(state State) {
	c.current = state.Current
	c.nextStep = state.NextStep
}

// ClockTime is "now" — the time of the most recent completed tick.
func (c *Clock) ClockTime() time.Time {
	return c.current
}

// EventTime is the time components should use for time-dependent values
// during the tick that is about to run: ClockTime() + the step about to
// be taken.
func (c *Clock) EventTime() time.Time {
	return c.current.Add(c.nextStep)
}

// Done reports whether the clock has reached or passed End. With
// Start == End this is true immediately, so the main loop runs zero
// iterations after PopulationInitialization.
func (c *Clock) Done() bool {
	return !c.current.Before(c.End)
}

// Advance computes the next tick's step size as the minimum across every
// modifier's proposals, floored at GlobalStep (GlobalStep is a lower
// bound, never an upper cap), defaulting to GlobalStep when no modifier
// proposes anything this tick. It then commits current += step. It
// returns the event time for the tick just entered, the step taken, and
// the index of simulants scheduled this tick (the union of every
// modifier's proposal keys; a simulant no modifier proposed for is
// excluded when any modifiers are registered — with none registered,
// every active simulant is scheduled at GlobalStep).
func (c *Clock) Advance(pop *population.View, modifiers []StepSizeModifier) (time.Time, time.Duration, []population.SimulantID) {
	if len(modifiers) == 0 {
		c.nextStep = c.GlobalStep
		eventTime := c.EventTime()
		c.current = c.current.Add(c.nextStep)
		return eventTime, c.nextStep, pop.Index()
	}

	proposals := make(map[population.SimulantID]time.Duration)
	for _, mod := range modifiers {
		for idx, step := range mod(pop) {
			existing, ok := proposals[idx]
			if !ok || step < existing {
				proposals[idx] = step
			}
		}
	}

	// step defaults to GlobalStep when no modifier proposed anything this
	// tick; otherwise it is the minimum proposal, floored at GlobalStep so
	// no modifier can drive the clock below the configured global minimum.
	step := c.GlobalStep
	hasProposal := false
	var minProposed time.Duration
	for _, proposed := range proposals {
		if !hasProposal || proposed < minProposed {
			minProposed = proposed
			hasProposal = true
		}
	}
	if hasProposal && minProposed > c.GlobalStep {
		step = minProposed
	}

	scheduled := make([]population.SimulantID, 0, len(proposals))
	for idx := range proposals {
		scheduled = append(scheduled, idx)
	}

	c.nextStep = step
	eventTime := c.EventTime()
	c.current = c.current.Add(step)

	return eventTime, step, scheduled
}
