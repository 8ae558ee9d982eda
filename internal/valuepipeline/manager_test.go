package valuepipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/pkg/simerrors"
)

func newManagerAtCallPhase(t *testing.T) (*Manager, *lifecycle.Manager) {
	t.Helper()
	lc := lifecycle.NewManager()
	require.NoError(t, lc.Transition(lifecycle.Setup))
	m := New(lc)
	return m, lc
}

func advanceToCallPhase(t *testing.T, lc *lifecycle.Manager) {
	t.Helper()
	require.NoError(t, lc.Transition(lifecycle.PostSetup))
}

func TestManager_ReplaceCombinerFoldsModifiersInRegistrationOrder(t *testing.T) {
	m, lc := newManagerAtCallPhase(t)

	_, err := m.Declare("mortality_rate")
	require.NoError(t, err)
	require.NoError(t, m.SetSource("mortality_rate", func(ctx context.Context, idx []population.SimulantID, args ...population.Frame) (population.Frame, error) {
		f := population.NewFrame(idx)
		f.Float64["rate"] = []float64{0.01}
		return f, nil
	}))
	require.NoError(t, m.AddModifier("mortality_rate", Modifier{
		Name: "smoking",
		Fn: func(ctx context.Context, idx []population.SimulantID, prior population.Frame, args ...population.Frame) (population.Frame, error) {
			prior.Float64["rate"][0] *= 1.5
			return prior, nil
		},
	}))
	require.NoError(t, m.SetCombinerAndPostProcessor("mortality_rate", ReplaceCombiner, PostProcessor{Kind: Identity}))

	advanceToCallPhase(t, lc)

	out, err := m.Call(context.Background(), "mortality_rate", []population.SimulantID{1})
	require.NoError(t, err)
	assert.InDelta(t, 0.015, out.Float64["rate"][0], 1e-9)
}

func TestManager_CallWithoutSourceFails(t *testing.T) {
	m, lc := newManagerAtCallPhase(t)
	_, err := m.Declare("untouched")
	require.NoError(t, err)
	advanceToCallPhase(t, lc)

	_, err = m.Call(context.Background(), "untouched", []population.SimulantID{1})
	require.Error(t, err)

	var unsourced *simerrors.UnsourcedPipelineError
	require.ErrorAs(t, err, &unsourced)
}

func TestManager_ReentrantCallCycleDetected(t *testing.T) {
	m, lc := newManagerAtCallPhase(t)

	_, err := m.Declare("a")
	require.NoError(t, err)
	_, err = m.Declare("b")
	require.NoError(t, err)

	require.NoError(t, m.SetSource("a", func(ctx context.Context, idx []population.SimulantID, args ...population.Frame) (population.Frame, error) {
		return m.Call(ctx, "b", idx)
	}))
	require.NoError(t, m.SetSource("b", func(ctx context.Context, idx []population.SimulantID, args ...population.Frame) (population.Frame, error) {
		return m.Call(ctx, "a", idx)
	}))
	require.NoError(t, m.SetCombinerAndPostProcessor("a", ReplaceCombiner, PostProcessor{Kind: Identity}))
	require.NoError(t, m.SetCombinerAndPostProcessor("b", ReplaceCombiner, PostProcessor{Kind: Identity}))

	advanceToCallPhase(t, lc)

	_, err = m.Call(context.Background(), "a", []population.SimulantID{1})
	require.Error(t, err)

	var cyclic *simerrors.CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)
}

func TestManager_RescalePostProcessorExponential(t *testing.T) {
	m, lc := newManagerAtCallPhase(t)
	_, err := m.Declare("mortality_rate")
	require.NoError(t, err)
	require.NoError(t, m.SetSource("mortality_rate", func(ctx context.Context, idx []population.SimulantID, args ...population.Frame) (population.Frame, error) {
		f := population.NewFrame(idx)
		f.Float64["rate"] = []float64{0.1}
		f.Float64["step_years"] = []float64{1.0 / 12}
		return f, nil
	}))
	require.NoError(t, m.SetCombinerAndPostProcessor("mortality_rate", ReplaceCombiner, PostProcessor{Kind: Rescale, Formula: Exponential}))
	advanceToCallPhase(t, lc)

	out, err := m.Call(context.Background(), "mortality_rate", []population.SimulantID{1})
	require.NoError(t, err)
	assert.InDelta(t, 1-0.99171, out.Float64["rate"][0], 1e-3)
}

func TestManager_UnionPostProcessorCombinesIndependentProbabilities(t *testing.T) {
	m, lc := newManagerAtCallPhase(t)
	_, err := m.Declare("combined_risk")
	require.NoError(t, err)
	require.NoError(t, m.SetSource("combined_risk", func(ctx context.Context, idx []population.SimulantID, args ...population.Frame) (population.Frame, error) {
		f := population.NewFrame(idx)
		f.Float64["values"] = []float64{0.1}
		return f, nil
	}))
	require.NoError(t, m.AddModifier("combined_risk", Modifier{
		Name: "second_risk",
		Fn: func(ctx context.Context, idx []population.SimulantID, prior population.Frame, args ...population.Frame) (population.Frame, error) {
			out := population.NewFrame(idx)
			out.Float64["values"] = []float64{0.2}
			return out, nil
		},
	}))
	require.NoError(t, m.SetCombinerAndPostProcessor("combined_risk", ListCombiner, PostProcessor{Kind: Union}))
	advanceToCallPhase(t, lc)

	out, err := m.Call(context.Background(), "combined_risk", []population.SimulantID{1})
	require.NoError(t, err)
	assert.InDelta(t, 1-(0.9*0.8), out.Float64["rate"][0], 1e-9)
}

func TestManager_DeclareAfterPostSetupFails(t *testing.T) {
	m, lc := newManagerAtCallPhase(t)
	advanceToCallPhase(t, lc)

	_, err := m.Declare("too_late")
	require.Error(t, err)

	var phaseErr *simerrors.LifecyclePhaseError
	require.ErrorAs(t, err, &phaseErr)
}
