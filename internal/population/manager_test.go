package population

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simforge/simforge/internal/lifecycle"
	"github.com/simforge/simforge/pkg/simerrors"
)

var testNow = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func setupManager(t *testing.T) *Manager {
	t.Helper()
	lc := lifecycle.NewManager()
	require.NoError(t, lc.Transition(lifecycle.Setup))
	m := New(lc)
	require.NoError(t, m.DeclareColumn("age", ColumnSpec{Type: Float64, Owner: "demography"}))
	require.NoError(t, m.DeclareColumn("sex", ColumnSpec{Type: Categorical, Owner: "demography", Categories: []string{"male", "female"}}))
	require.NoError(t, m.RegisterInitializer(Initializer{
		Name:    "demography.age",
		Columns: []string{"age", "sex"},
		Fn: func(data SimulantData) (Frame, error) {
			f := NewFrame(data.Index)
			ages := make([]float64, len(data.Index))
			sexes := make([]string, len(data.Index))
			for i := range data.Index {
				ages[i] = 0
				sexes[i] = "female"
			}
			f.Float64["age"] = ages
			f.String["sex"] = sexes
			return f, nil
		},
	}))
	m.SetInitializerOrder([]string{"demography.age"})
	m.FreezeSchema()
	require.NoError(t, lc.Transition(lifecycle.PostSetup))
	require.NoError(t, lc.Transition(lifecycle.PopulationInitialization))
	return m
}

func TestManager_CreateSimulantsRunsInitializers(t *testing.T) {
	m := setupManager(t)

	idx, err := m.CreateSimulants(3, nil, testNow)
	require.NoError(t, err)
	assert.Len(t, idx, 3)
	assert.Equal(t, 3, m.Table().RowCount())

	view, err := m.GetView([]string{"age", "sex"}, nil, nil)
	require.NoError(t, err)
	frame, err := view.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"female", "female", "female"}, frame.String["sex"])
}

func TestManager_CreateSimulantsRollsBackOnInitializerError(t *testing.T) {
	lc := lifecycle.NewManager()
	require.NoError(t, lc.Transition(lifecycle.Setup))
	m := New(lc)
	require.NoError(t, m.DeclareColumn("age", ColumnSpec{Type: Float64, Owner: "demography"}))
	require.NoError(t, m.RegisterInitializer(Initializer{
		Name:    "demography.age",
		Columns: []string{"age"},
		Fn: func(data SimulantData) (Frame, error) {
			return Frame{}, simerrors.NewComponentContractError("demography", "boom", nil)
		},
	}))
	m.SetInitializerOrder([]string{"demography.age"})
	m.FreezeSchema()
	require.NoError(t, lc.Transition(lifecycle.PostSetup))
	require.NoError(t, lc.Transition(lifecycle.PopulationInitialization))

	_, err := m.CreateSimulants(5, nil, testNow)
	require.Error(t, err)
	assert.Equal(t, 0, m.Table().RowCount())

	idx, err := m.CreateSimulants(2, nil, testNow)
	require.Error(t, err) // same broken initializer still fails
	_ = idx
	assert.Equal(t, 0, m.Table().RowCount())
}

func TestManager_DeclareColumnCollisionFails(t *testing.T) {
	lc := lifecycle.NewManager()
	require.NoError(t, lc.Transition(lifecycle.Setup))
	m := New(lc)
	require.NoError(t, m.DeclareColumn("age", ColumnSpec{Type: Float64, Owner: "demography"}))

	err := m.DeclareColumn("age", ColumnSpec{Type: Float64, Owner: "other"})
	require.Error(t, err)
}

func TestManager_CreateSimulantsOutsideAllowedPhaseFails(t *testing.T) {
	lc := lifecycle.NewManager()
	m := New(lc)
	_, err := m.CreateSimulants(1, nil, testNow)
	require.Error(t, err)

	var phaseErr *simerrors.LifecyclePhaseError
	require.ErrorAs(t, err, &phaseErr)
}

func TestView_UpdateRejectsNonWritableColumn(t *testing.T) {
	m := setupManager(t)
	idx, err := m.CreateSimulants(2, nil, testNow)
	require.NoError(t, err)

	view, err := m.GetView([]string{"age"}, []string{"sex"}, nil)
	require.NoError(t, err)

	frame := NewFrame(idx)
	frame.Float64["age"] = []float64{1, 2}
	err = view.Update(frame)
	require.Error(t, err)
}

func TestView_UpdateRejectsIndexOutsideViewScope(t *testing.T) {
	m := setupManager(t)
	idx, err := m.CreateSimulants(2, nil, testNow)
	require.NoError(t, err)

	view, err := m.GetView([]string{"age"}, []string{"age"}, nil)
	require.NoError(t, err)

	frame := NewFrame([]SimulantID{idx[0], 999})
	frame.Float64["age"] = []float64{1, 2}
	err = view.Update(frame)
	require.Error(t, err)
}

func TestView_UpdateWritesWithinWritableColumns(t *testing.T) {
	m := setupManager(t)
	idx, err := m.CreateSimulants(2, nil, testNow)
	require.NoError(t, err)

	view, err := m.GetView([]string{"age"}, []string{"age"}, nil)
	require.NoError(t, err)

	frame := NewFrame(idx)
	frame.Float64["age"] = []float64{5, 6}
	require.NoError(t, view.Update(frame))

	read, err := view.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, read.Float64["age"])
}

func TestTable_UntrackedRowsExcludedFromActiveIndex(t *testing.T) {
	m := setupManager(t)
	idx, err := m.CreateSimulants(2, nil, testNow)
	require.NoError(t, err)

	m.Table().SetTracked(idx[0], false)
	active := m.Table().ActiveIndex()
	assert.NotContains(t, active, idx[0])
	assert.Contains(t, active, idx[1])
	assert.Contains(t, m.Table().FullIndex(), idx[0])
}

func TestTable_CategoricalRejectsUndeclaredCategory(t *testing.T) {
	m := setupManager(t)
	idx, err := m.CreateSimulants(1, nil, testNow)
	require.NoError(t, err)

	view, err := m.GetView([]string{"sex"}, []string{"sex"}, nil)
	require.NoError(t, err)

	frame := NewFrame(idx)
	frame.String["sex"] = []string{"unknown"}
	err = view.Update(frame)
	require.Error(t, err)
}
