package results

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/pkg/simerrors"
)

func newManagerAtSetup(t *testing.T) (*Manager, *lifecycle.Manager) {
	t.Helper()
	lc := lifecycle.NewManager()
	require.NoError(t, lc.Transition(lifecycle.Setup))
	return New(lc), lc
}

func sexStratification() Stratification {
	return Stratification{
		Name:       "sex",
		Categories: []string{"male", "female"},
		Mapper: func(f population.Frame) ([]string, error) {
			return f.String["sex"], nil
		},
	}
}

func TestManager_RegisterStratificationValidatesExhaustiveCategories(t *testing.T) {
	m, _ := newManagerAtSetup(t)
	err := m.RegisterStratification(Stratification{Name: "sex"})
	require.Error(t, err)
}

func TestManager_GatherAccumulatesAddingObservation(t *testing.T) {
	m, _ := newManagerAtSetup(t)
	require.NoError(t, m.RegisterStratification(sexStratification()))

	obs := NewAddingObservation("deaths", lifecycle.TimeStep, "deaths", []string{"sex"}, nil,
		func(f population.Frame) (population.Frame, error) {
			out := population.NewFrame(nil)
			out.Float64["deaths"] = []float64{float64(len(f.Index))}
			return out, nil
		})
	require.NoError(t, m.RegisterObservation(obs))

	pop := population.NewFrame([]population.SimulantID{1, 2, 3})
	pop.String["sex"] = []string{"male", "female", "female"}

	require.NoError(t, m.Gather(context.Background(), lifecycle.TimeStep, pop))

	report, err := m.Report()
	require.NoError(t, err)
	require.Contains(t, report, "deaths")
	assert.NotEmpty(t, report["deaths"].Rows)
}

func TestManager_ExcludedCategoryRowsAreDroppedFromAccumulation(t *testing.T) {
	m, _ := newManagerAtSetup(t)
	strat := sexStratification()
	strat.ExcludedCategories = []string{"male"}
	require.NoError(t, m.RegisterStratification(strat))

	var gatheredCount int
	obs := NewAddingObservation("deaths", lifecycle.TimeStep, "deaths", []string{"sex"}, nil,
		func(f population.Frame) (population.Frame, error) {
			gatheredCount += len(f.Index)
			out := population.NewFrame(nil)
			out.Float64["deaths"] = []float64{float64(len(f.Index))}
			return out, nil
		})
	require.NoError(t, m.RegisterObservation(obs))

	pop := population.NewFrame([]population.SimulantID{1, 2})
	pop.String["sex"] = []string{"male", "female"}

	require.NoError(t, m.Gather(context.Background(), lifecycle.TimeStep, pop))
	assert.Equal(t, 1, gatheredCount) // only the female row gathered
}

func TestManager_StratificationOutsideCategorySetFails(t *testing.T) {
	m, _ := newManagerAtSetup(t)
	require.NoError(t, m.RegisterStratification(sexStratification()))

	obs := NewAddingObservation("deaths", lifecycle.TimeStep, "deaths", []string{"sex"}, nil,
		func(f population.Frame) (population.Frame, error) {
			out := population.NewFrame(nil)
			out.Float64["deaths"] = []float64{1}
			return out, nil
		})
	require.NoError(t, m.RegisterObservation(obs))

	pop := population.NewFrame([]population.SimulantID{1})
	pop.String["sex"] = []string{"nonbinary"}

	err := m.Gather(context.Background(), lifecycle.TimeStep, pop)
	require.Error(t, err)

	var stratErr *simerrors.StratificationError
	require.ErrorAs(t, err, &stratErr)
}

func TestManager_RegisterObservationRejectsInvalidPhase(t *testing.T) {
	m, _ := newManagerAtSetup(t)
	obs := Observation{Name: "bad", When: lifecycle.Report}
	err := m.RegisterObservation(obs)
	require.Error(t, err)
}

func TestManager_ConcatenatingObservationAppends(t *testing.T) {
	m, _ := newManagerAtSetup(t)

	obs := NewConcatenatingObservation("ages_at_death", lifecycle.TimeStep, "age", nil,
		func(f population.Frame) (population.Frame, error) {
			return f, nil
		})
	require.NoError(t, m.RegisterObservation(obs))

	pop := population.NewFrame([]population.SimulantID{1, 2})
	pop.Float64["age"] = []float64{34, 51}

	require.NoError(t, m.Gather(context.Background(), lifecycle.TimeStep, pop))
	require.NoError(t, m.Gather(context.Background(), lifecycle.TimeStep, pop))

	report, err := m.Report()
	require.NoError(t, err)
	assert.Len(t, report["ages_at_death"].Rows, 4)
}

func TestManager_SaveAndLoadRoundTrip(t *testing.T) {
	m, _ := newManagerAtSetup(t)
	obs := NewAddingObservation("deaths", lifecycle.TimeStep, "deaths", nil, nil,
		func(f population.Frame) (population.Frame, error) {
			out := population.NewFrame(nil)
			out.Float64["deaths"] = []float64{float64(len(f.Index))}
			return out, nil
		})
	require.NoError(t, m.RegisterObservation(obs))

	pop := population.NewFrame([]population.SimulantID{1, 2})
	require.NoError(t, m.Gather(context.Background(), lifecycle.TimeStep, pop))

	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, m.Save(path))

	m2, _ := newManagerAtSetup(t)
	require.NoError(t, m2.RegisterObservation(obs))
	require.NoError(t, m2.Load(path))

	report, err := m2.Report()
	require.NoError(t, err)
	assert.NotEmpty(t, report["deaths"].Rows)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestManager_BindMetricsRegistersGaugePerObservation(t *testing.T) {
	m, _ := newManagerAtSetup(t)
	obs := NewAddingObservation("deaths", lifecycle.TimeStep, "deaths", nil, nil,
		func(f population.Frame) (population.Frame, error) { return population.NewFrame(nil), nil })
	require.NoError(t, m.RegisterObservation(obs))

	reg := prometheus.NewRegistry()
	require.NoError(t, m.BindMetrics(reg))
	require.NoError(t, m.BindMetrics(reg)) // idempotent: already-bound observations are skipped
}
