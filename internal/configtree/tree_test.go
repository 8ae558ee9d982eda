package configtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simforge/simforge/pkg/simerrors"
)

func TestTree_PriorityOrder(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetBuiltinDefault("population.size", 1000))
	require.NoError(t, tree.SetComponentDefault("mortality", "population.size", 2000))

	v, err := tree.Get("population.size")
	require.NoError(t, err)
	assert.Equal(t, 2000, v)

	require.NoError(t, tree.SetModelOverride("population.size", 5000))
	v, err = tree.Get("population.size")
	require.NoError(t, err)
	assert.Equal(t, 5000, v)

	require.NoError(t, tree.SetRuntimeOverride("population.size", 10000))
	v, err = tree.Get("population.size")
	require.NoError(t, err)
	assert.Equal(t, 10000, v)
}

func TestTree_MissingKeyFails(t *testing.T) {
	tree := New()
	_, err := tree.Get("nope")
	require.Error(t, err)

	var cfgErr *simerrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, simerrors.ConfigurationMissing, cfgErr.Reason)
}

func TestTree_FrozenRejectsWrites(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetBuiltinDefault("a", 1))
	tree.Freeze()

	err := tree.SetRuntimeOverride("a", 2)
	require.Error(t, err)

	var cfgErr *simerrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, simerrors.ConfigurationFrozen, cfgErr.Reason)
}

func TestTree_ConflictingComponentDefaultsFail(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetComponentDefault("mortality", "rate", 0.01))

	err := tree.SetComponentDefault("fertility", "rate", 0.02)
	require.Error(t, err)

	var cfgErr *simerrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, simerrors.ConfigurationConflict, cfgErr.Reason)

	// The same component re-declaring its own default (e.g. re-running
	// Setup in a test) is not a conflict.
	require.NoError(t, tree.SetComponentDefault("mortality", "rate", 0.03))
}

func TestTree_ReprReturnsAllSources(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetBuiltinDefault("rate", 0.01))
	require.NoError(t, tree.SetModelOverride("rate", 0.05))

	sources := tree.Repr("rate")
	require.Len(t, sources, 2)
	assert.Equal(t, LayerBuiltinDefault, sources[0].Layer)
	assert.Equal(t, LayerModelOverride, sources[1].Layer)
}

func TestTree_LoadComponentDefaultsFlattensNestedDoc(t *testing.T) {
	tree := New()
	require.NoError(t, tree.LoadComponentDefaults("mortality", map[string]any{
		"mortality": map[string]any{
			"rate": 0.01,
			"nested": map[string]any{
				"enabled": true,
			},
		},
	}))

	v, err := tree.Get("mortality.rate")
	require.NoError(t, err)
	assert.Equal(t, 0.01, v)

	v, err = tree.Get("mortality.nested.enabled")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

type mortalitySettings struct {
	Rate    float64 `yaml:"rate" validate:"required,gt=0"`
	Enabled bool    `yaml:"enabled"`
}

func TestTree_DecodeSubtree(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetBuiltinDefault("mortality.rate", 0.01))
	require.NoError(t, tree.SetBuiltinDefault("mortality.enabled", true))

	var dst mortalitySettings
	require.NoError(t, tree.Decode("mortality", &dst))
	assert.Equal(t, 0.01, dst.Rate)
	assert.True(t, dst.Enabled)
}

func TestTree_GetStringSliceFromYAMLList(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetModelOverride("key_columns", []any{"entrance_time", "age"}))

	cols, err := tree.GetStringSlice("key_columns")
	require.NoError(t, err)
	assert.Equal(t, []string{"entrance_time", "age"}, cols)
}
